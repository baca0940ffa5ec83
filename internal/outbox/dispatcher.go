package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/morebnyemba/smart-contracts-escrow/internal/backoff"
	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
)

// DispatcherConfig tunes the polling loop.
type DispatcherConfig struct {
	// DispatchInterval is the poll period between cycles.
	DispatchInterval time.Duration
	// BatchSize bounds how many events one cycle processes.
	BatchSize int
	// MaxDispatchAttempts is the ceiling after which a failed event is no
	// longer retried.
	MaxDispatchAttempts int
	// RetryWindow is how long a FAILED event rests before it is retried.
	RetryWindow time.Duration
	// PublishMaxAttempts bounds in-cycle publish retries per event.
	PublishMaxAttempts int
	// PublishBackoff is the base delay for in-cycle publish retries.
	PublishBackoff time.Duration
}

// DefaultDispatcherConfig returns production defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		DispatchInterval:    time.Second,
		BatchSize:           100,
		MaxDispatchAttempts: 10,
		RetryWindow:         30 * time.Second,
		PublishMaxAttempts:  3,
		PublishBackoff:      100 * time.Millisecond,
	}
}

func (c *DispatcherConfig) normalize() {
	defaults := DefaultDispatcherConfig()

	if c.DispatchInterval <= 0 {
		c.DispatchInterval = defaults.DispatchInterval
	}

	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}

	if c.MaxDispatchAttempts <= 0 {
		c.MaxDispatchAttempts = defaults.MaxDispatchAttempts
	}

	if c.RetryWindow <= 0 {
		c.RetryWindow = defaults.RetryWindow
	}

	if c.PublishMaxAttempts <= 0 {
		c.PublishMaxAttempts = defaults.PublishMaxAttempts
	}

	if c.PublishBackoff <= 0 {
		c.PublishBackoff = defaults.PublishBackoff
	}
}

// DispatchResult captures one dispatch cycle outcome.
type DispatchResult struct {
	Processed         int
	Published         int
	Failed            int
	StateUpdateFailed int
}

// Dispatcher polls the outbox and pushes pending events through registered
// handlers.
type Dispatcher struct {
	repo     Repository
	handlers *HandlerRegistry
	logger   log.Logger
	tracer   trace.Tracer
	cfg      DispatcherConfig

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDispatcher creates an outbox dispatcher.
func NewDispatcher(repo Repository, handlers *HandlerRegistry, logger log.Logger, tracer trace.Tracer, cfg DispatcherConfig) (*Dispatcher, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox dispatcher: repository is required")
	}

	if handlers == nil {
		return nil, fmt.Errorf("outbox dispatcher: handler registry is required")
	}

	if logger == nil {
		logger = log.NewNop()
	}

	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("outbox.noop")
	}

	cfg.normalize()

	return &Dispatcher{
		repo:     repo,
		handlers: handlers,
		logger:   logger,
		tracer:   tracer,
		cfg:      cfg,
		stop:     make(chan struct{}),
	}, nil
}

// Run starts the dispatcher loop until Stop is called or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Log(ctx, log.LevelInfo, "outbox dispatcher started")
	defer d.logger.Log(ctx, log.LevelInfo, "outbox dispatcher stopped")

	ticker := time.NewTicker(d.cfg.DispatchInterval)
	defer ticker.Stop()

	d.dispatchCycle(ctx)

	for {
		select {
		case <-d.stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.dispatchCycle(ctx)
		}
	}
}

func (d *Dispatcher) dispatchCycle(ctx context.Context) {
	d.wg.Add(1)
	defer d.wg.Done()

	ctx, span := d.tracer.Start(ctx, "outbox.dispatch")
	defer span.End()

	result := d.DispatchOnce(ctx)
	if result.Processed > 0 {
		d.logger.Log(ctx, log.LevelDebug, "dispatch cycle complete", log.Any("counters", result))
	}
}

// Stop signals the dispatcher loop to stop.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// Shutdown stops the loop and waits for the in-flight cycle.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.Stop()

	done := make(chan struct{})

	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

// DispatchOnce processes one cycle and returns its counters.
//
// Delivery is at-least-once: publish happens before MarkPublished. If state
// persistence fails after publish, the event is retried and consumers must
// remain idempotent.
func (d *Dispatcher) DispatchOnce(ctx context.Context) DispatchResult {
	events := d.collectEvents(ctx)

	var result DispatchResult

	for _, event := range events {
		if ctx.Err() != nil {
			break
		}

		result.Processed++

		if err := d.publishWithRetry(ctx, event); err != nil {
			result.Failed++

			if markErr := d.repo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				d.logger.Log(ctx, log.LevelError, "failed to mark outbox event failed",
					log.String("event_id", event.ID.String()), log.Err(markErr))
			}

			continue
		}

		result.Published++

		if err := d.repo.MarkPublished(ctx, event.ID, time.Now().UTC()); err != nil {
			result.StateUpdateFailed++

			d.logger.Log(ctx, log.LevelError,
				"outbox event delivered but failed to persist PUBLISHED state; event may be redelivered",
				log.String("event_id", event.ID.String()), log.Err(err))
		}
	}

	return result
}

func (d *Dispatcher) collectEvents(ctx context.Context) []*Event {
	failedBefore := time.Now().UTC().Add(-d.cfg.RetryWindow)

	retried, err := d.repo.ResetForRetry(ctx, d.cfg.BatchSize, failedBefore, d.cfg.MaxDispatchAttempts)
	if err != nil {
		d.logger.Log(ctx, log.LevelError, "failed to reset failed outbox events", log.Err(err))
	}

	remaining := d.cfg.BatchSize - len(retried)
	if remaining <= 0 {
		return retried
	}

	pending, err := d.repo.ListPending(ctx, remaining)
	if err != nil {
		d.logger.Log(ctx, log.LevelError, "failed to list pending outbox events", log.Err(err))

		return retried
	}

	return dedupe(append(retried, pending...))
}

func dedupe(events []*Event) []*Event {
	seen := make(map[string]bool, len(events))
	result := events[:0]

	for _, event := range events {
		if event == nil || seen[event.ID.String()] {
			continue
		}

		seen[event.ID.String()] = true
		result = append(result, event)
	}

	return result
}

func (d *Dispatcher) publishWithRetry(ctx context.Context, event *Event) error {
	var lastErr error

	for attempt := 0; attempt < d.cfg.PublishMaxAttempts; attempt++ {
		err := d.handlers.Handle(ctx, event)
		if err == nil {
			return nil
		}

		lastErr = fmt.Errorf("publish attempt %d/%d failed: %w", attempt+1, d.cfg.PublishMaxAttempts, err)
		if attempt == d.cfg.PublishMaxAttempts-1 {
			break
		}

		delay := backoff.ExponentialWithJitter(d.cfg.PublishBackoff, attempt)
		if waitErr := backoff.SleepWithContext(ctx, delay); waitErr != nil {
			return fmt.Errorf("publish retry wait interrupted: %w", waitErr)
		}
	}

	return lastErr
}
