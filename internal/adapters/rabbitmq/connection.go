package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
)

// Connection manages the AMQP connection and declares the event exchange.
type Connection struct {
	URI      string
	Exchange string
	Logger   log.Logger

	conn *amqp.Connection
	mu   sync.Mutex
}

// Connect dials the broker and declares the durable topic exchange.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Logger == nil {
		c.Logger = log.NewNop()
	}

	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}

	c.Logger.Log(ctx, log.LevelInfo, "connecting to rabbitmq")

	conn, err := amqp.Dial(c.URI)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()

		return fmt.Errorf("open channel: %w", err)
	}

	defer ch.Close()

	if err := ch.ExchangeDeclare(c.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()

		return fmt.Errorf("declare exchange %s: %w", c.Exchange, err)
	}

	c.conn = conn

	c.Logger.Log(ctx, log.LevelInfo, "connected to rabbitmq")

	return nil
}

// Channel opens a dedicated channel for one publisher.
func (c *Connection) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return nil, ErrChannelRequired
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	return ch, nil
}

// Close shuts the connection down.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil

	return err
}
