package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrEventRequired            = errors.New("outbox event is required")
	ErrEventTypeRequired        = errors.New("event type is required")
	ErrEventHandlerRequired     = errors.New("event handler is required")
	ErrHandlerAlreadyRegistered = errors.New("handler already registered for event type")
	ErrHandlerNotRegistered     = errors.New("no handler registered for event type")
)

// EventHandler handles one outbox event.
type EventHandler func(ctx context.Context, event *Event) error

// HandlerRegistry stores event handlers by event type.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: map[string]EventHandler{}}
}

func (r *HandlerRegistry) Register(eventType string, handler EventHandler) error {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return ErrEventTypeRequired
	}

	if handler == nil {
		return ErrEventHandlerRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[eventType]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerAlreadyRegistered, eventType)
	}

	r.handlers[eventType] = handler

	return nil
}

// Chain composes handlers into one. A failure stops the chain and fails the
// event; on redelivery the earlier handlers run again, so each link must be
// idempotent.
func Chain(handlers ...EventHandler) EventHandler {
	return func(ctx context.Context, event *Event) error {
		for _, handler := range handlers {
			if err := handler(ctx, event); err != nil {
				return err
			}
		}

		return nil
	}
}

func (r *HandlerRegistry) Handle(ctx context.Context, event *Event) error {
	if event == nil {
		return ErrEventRequired
	}

	r.mu.RLock()
	handler, ok := r.handlers[event.EventType]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrHandlerNotRegistered, event.EventType)
	}

	return handler(ctx, event)
}
