// Package rabbitmq publishes outbox events to an AMQP exchange with
// publisher confirms. The dispatcher retries on failure, so a nack or a
// confirm timeout here surfaces as an error rather than a lost message.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"

	"github.com/morebnyemba/smart-contracts-escrow/internal/domain"
	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
	"github.com/morebnyemba/smart-contracts-escrow/internal/outbox"
)

var (
	ErrChannelRequired   = errors.New("rabbitmq channel is required")
	ErrPublishNacked     = errors.New("message was nacked by broker")
	ErrConfirmTimeout    = errors.New("confirmation timed out")
	ErrPublisherClosed   = errors.New("publisher is closed")
	ErrExchangeRequired  = errors.New("exchange name is required")
	ErrPublisherRequired = errors.New("publisher is required")
)

const (
	// DefaultConfirmTimeout bounds the wait for one broker confirmation.
	DefaultConfirmTimeout = 5 * time.Second

	// confirmChannelBuffer must cover the max unconfirmed messages in flight.
	confirmChannelBuffer = 256
)

// Channel is the subset of *amqp.Channel the publisher needs. Tests inject a
// fake implementation.
type Channel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends messages with confirm mode enabled. Publishes are
// serialized so each confirmation matches the in-flight message without
// delivery-tag correlation state.
type Publisher struct {
	ch             Channel
	confirms       chan amqp.Confirmation
	confirmTimeout time.Duration
	logger         log.Logger

	publishMu sync.Mutex
	mu        sync.Mutex
	closed    bool
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithConfirmTimeout overrides the broker confirmation timeout.
func WithConfirmTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		if timeout > 0 {
			p.confirmTimeout = timeout
		}
	}
}

// WithLogger sets a structured logger for the publisher.
func WithLogger(logger log.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher enables confirm mode on the channel and wires the
// confirmation stream.
func NewPublisher(ch Channel, opts ...PublisherOption) (*Publisher, error) {
	if ch == nil {
		return nil, ErrChannelRequired
	}

	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}

	confirms := make(chan amqp.Confirmation, confirmChannelBuffer)
	ch.NotifyPublish(confirms)

	p := &Publisher{
		ch:             ch,
		confirms:       confirms,
		confirmTimeout: DefaultConfirmTimeout,
		logger:         log.NewNop(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p, nil
}

// Publish sends one message and waits for the broker confirmation.
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	if p == nil {
		return ErrPublisherRequired
	}

	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()

		return ErrPublisherClosed
	}

	p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return p.waitForConfirm(ctx)
}

func (p *Publisher) waitForConfirm(ctx context.Context) error {
	timeout := time.NewTimer(p.confirmTimeout)
	defer timeout.Stop()

	select {
	case confirmed, ok := <-p.confirms:
		if !ok {
			return ErrPublisherClosed
		}

		if !confirmed.Ack {
			return fmt.Errorf("%w: delivery_tag=%d", ErrPublishNacked, confirmed.DeliveryTag)
		}

		return nil

	case <-timeout.C:
		return ErrConfirmTimeout

	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	}
}

// Close closes the underlying channel. Idempotent.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}

	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()

		return nil
	}

	p.closed = true
	p.mu.Unlock()

	if err := p.ch.Close(); err != nil {
		return fmt.Errorf("closing publisher channel: %w", err)
	}

	return nil
}

// EventPublisher adapts the Publisher to the outbox handler signature. A
// circuit breaker sheds publishes while the broker is down so the dispatcher
// fails fast and leaves the rows for the retry window.
type EventPublisher struct {
	publisher *Publisher
	exchange  string
	breaker   *gobreaker.CircuitBreaker
	logger    log.Logger
}

// NewEventPublisher creates the outbox-facing publisher for one exchange.
func NewEventPublisher(publisher *Publisher, exchange string, logger log.Logger) (*EventPublisher, error) {
	if publisher == nil {
		return nil, ErrPublisherRequired
	}

	if exchange == "" {
		return nil, ErrExchangeRequired
	}

	if logger == nil {
		logger = log.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "rabbitmq-publisher",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log(context.Background(), log.LevelWarn, "circuit breaker state changed",
				log.String("name", name),
				log.String("from", from.String()),
				log.String("to", to.String()),
			)
		},
	})

	return &EventPublisher{
		publisher: publisher,
		exchange:  exchange,
		breaker:   breaker,
		logger:    logger,
	}, nil
}

// Register subscribes the publisher to every transition event kind.
func (ep *EventPublisher) Register(handlers *outbox.HandlerRegistry) error {
	for _, kind := range domain.EventKinds() {
		if err := handlers.Register(string(kind), ep.Handle); err != nil {
			return err
		}
	}

	return nil
}

// Handle publishes one outbox event. The event id doubles as the AMQP
// message id so consumers can deduplicate redeliveries.
func (ep *EventPublisher) Handle(ctx context.Context, event *outbox.Event) error {
	_, err := ep.breaker.Execute(func() (any, error) {
		return nil, ep.publisher.Publish(ctx, ep.exchange, RoutingKey(event.EventType), amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID.String(),
			Type:         event.EventType,
			Timestamp:    event.CreatedAt,
			Body:         event.Payload,
		})
	})
	if err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}

	return nil
}

// RoutingKey maps an event type to its routing key, e.g.
// ESCROW_FUNDED -> escrow.event.escrow_funded.
func RoutingKey(eventType string) string {
	return "escrow.event." + strings.ToLower(eventType)
}
