package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu     sync.Mutex
	events []*Event

	markPublishedErr error
}

func (r *fakeRepo) add(eventType string) *Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &Event{
		ID:          uuid.New(),
		EventType:   eventType,
		AggregateID: uuid.New(),
		Payload:     []byte(`{"kind":"` + eventType + `"}`),
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	r.events = append(r.events, e)

	return e
}

func (r *fakeRepo) ListPending(_ context.Context, limit int) ([]*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Event

	for _, e := range r.events {
		if e.Status == StatusPending && len(out) < limit {
			out = append(out, e)
		}
	}

	return out, nil
}

func (r *fakeRepo) MarkPublished(_ context.Context, id uuid.UUID, publishedAt time.Time) error {
	if r.markPublishedErr != nil {
		return r.markPublishedErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.events {
		if e.ID == id {
			e.Status = StatusPublished
			e.PublishedAt = &publishedAt
		}
	}

	return nil
}

func (r *fakeRepo) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.events {
		if e.ID == id {
			e.Attempts++
			e.Status = StatusFailed
			e.LastError = errMsg
		}
	}

	return nil
}

func (r *fakeRepo) ResetForRetry(_ context.Context, limit int, failedBefore time.Time, maxAttempts int) ([]*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Event

	for _, e := range r.events {
		if e.Status == StatusFailed && e.Attempts < maxAttempts && e.UpdatedAt.Before(failedBefore) && len(out) < limit {
			e.Status = StatusPending
			out = append(out, e)
		}
	}

	return out, nil
}

func (r *fakeRepo) statusOf(id uuid.UUID) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.events {
		if e.ID == id {
			return e.Status
		}
	}

	return ""
}

func newTestDispatcher(t *testing.T, repo Repository, handlers *HandlerRegistry) *Dispatcher {
	t.Helper()

	cfg := DefaultDispatcherConfig()
	cfg.PublishMaxAttempts = 2
	cfg.PublishBackoff = time.Millisecond

	d, err := NewDispatcher(repo, handlers, nil, nil, cfg)
	require.NoError(t, err)

	return d
}

func TestDispatchOncePublishesPending(t *testing.T) {
	repo := &fakeRepo{}
	e1 := repo.add("ESCROW_FUNDED")
	e2 := repo.add("WORK_SUBMITTED")

	var handled []string

	handlers := NewHandlerRegistry()
	for _, kind := range []string{"ESCROW_FUNDED", "WORK_SUBMITTED"} {
		kind := kind
		require.NoError(t, handlers.Register(kind, func(ctx context.Context, event *Event) error {
			handled = append(handled, kind)
			return nil
		}))
	}

	d := newTestDispatcher(t, repo, handlers)

	result := d.DispatchOnce(context.Background())

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Published)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, StatusPublished, repo.statusOf(e1.ID))
	assert.Equal(t, StatusPublished, repo.statusOf(e2.ID))
	assert.Len(t, handled, 2)
}

func TestDispatchOnceMarksFailed(t *testing.T) {
	repo := &fakeRepo{}
	e := repo.add("ESCROW_FUNDED")

	handlers := NewHandlerRegistry()
	require.NoError(t, handlers.Register("ESCROW_FUNDED", func(context.Context, *Event) error {
		return errors.New("broker unreachable")
	}))

	d := newTestDispatcher(t, repo, handlers)

	result := d.DispatchOnce(context.Background())

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, StatusFailed, repo.statusOf(e.ID))
}

func TestDispatchOnceRedeliversOnStateUpdateFailure(t *testing.T) {
	// at-least-once: when MarkPublished fails after a successful publish the
	// event stays pending and is delivered again next cycle
	repo := &fakeRepo{markPublishedErr: errors.New("db down")}
	e := repo.add("ESCROW_FUNDED")

	deliveries := 0

	handlers := NewHandlerRegistry()
	require.NoError(t, handlers.Register("ESCROW_FUNDED", func(context.Context, *Event) error {
		deliveries++
		return nil
	}))

	d := newTestDispatcher(t, repo, handlers)

	first := d.DispatchOnce(context.Background())
	assert.Equal(t, 1, first.StateUpdateFailed)
	assert.Equal(t, StatusPending, repo.statusOf(e.ID))

	repo.markPublishedErr = nil

	second := d.DispatchOnce(context.Background())
	assert.Equal(t, 1, second.Published)
	assert.Equal(t, 2, deliveries)
	assert.Equal(t, StatusPublished, repo.statusOf(e.ID))
}

func TestExhaustedEventsAreNotRetried(t *testing.T) {
	repo := &fakeRepo{}
	exhausted := repo.add("ESCROW_FUNDED")
	rested := repo.add("ESCROW_FUNDED")

	cfg := DefaultDispatcherConfig()
	restedAt := time.Now().UTC().Add(-2 * cfg.RetryWindow)

	repo.mu.Lock()
	exhausted.Status = StatusFailed
	exhausted.Attempts = cfg.MaxDispatchAttempts
	exhausted.UpdatedAt = restedAt
	rested.Status = StatusFailed
	rested.Attempts = 1
	rested.UpdatedAt = restedAt
	repo.mu.Unlock()

	handlers := NewHandlerRegistry()
	require.NoError(t, handlers.Register("ESCROW_FUNDED", func(context.Context, *Event) error {
		return nil
	}))

	d := newTestDispatcher(t, repo, handlers)

	result := d.DispatchOnce(context.Background())

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, StatusPublished, repo.statusOf(rested.ID))
	assert.Equal(t, StatusFailed, repo.statusOf(exhausted.ID))
}

func TestDispatcherRunAndShutdown(t *testing.T) {
	repo := &fakeRepo{}
	repo.add("ESCROW_FUNDED")

	published := make(chan struct{}, 1)

	handlers := NewHandlerRegistry()
	require.NoError(t, handlers.Register("ESCROW_FUNDED", func(context.Context, *Event) error {
		select {
		case published <- struct{}{}:
		default:
		}

		return nil
	}))

	cfg := DefaultDispatcherConfig()
	cfg.DispatchInterval = 5 * time.Millisecond

	d, err := NewDispatcher(repo, handlers, nil, nil, cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("event was not published")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	require.NoError(t, <-done)
}

func TestHandlerRegistry(t *testing.T) {
	handlers := NewHandlerRegistry()

	require.NoError(t, handlers.Register("A", func(context.Context, *Event) error { return nil }))

	assert.ErrorIs(t, handlers.Register("A", func(context.Context, *Event) error { return nil }), ErrHandlerAlreadyRegistered)
	assert.ErrorIs(t, handlers.Register("", func(context.Context, *Event) error { return nil }), ErrEventTypeRequired)
	assert.ErrorIs(t, handlers.Register("B", nil), ErrEventHandlerRequired)

	err := handlers.Handle(context.Background(), &Event{EventType: "unknown"})
	assert.ErrorIs(t, err, ErrHandlerNotRegistered)
}

func TestChain(t *testing.T) {
	var calls []string

	first := func(context.Context, *Event) error {
		calls = append(calls, "first")

		return nil
	}
	second := func(context.Context, *Event) error {
		calls = append(calls, "second")

		return nil
	}

	require.NoError(t, Chain(first, second)(context.Background(), &Event{}))
	assert.Equal(t, []string{"first", "second"}, calls)

	calls = nil
	failing := func(context.Context, *Event) error {
		calls = append(calls, "failing")

		return errors.New("boom")
	}

	err := Chain(failing, second)(context.Background(), &Event{})

	require.Error(t, err)
	assert.Equal(t, []string{"failing"}, calls, "a failed link stops the chain")
}
