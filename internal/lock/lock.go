// Package lock serializes transitions per transaction. Every write path runs
// under the transaction's lock, so at most one transition executes per
// transaction at a time while different transactions proceed concurrently.
//
// The manager is in-process. A deployment with multiple replicas must pin a
// transaction's requests to one replica or swap this for a distributed lock.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/morebnyemba/smart-contracts-escrow/internal/domain"
)

// DefaultWait is how long an acquisition waits on a busy key before giving
// up with Contended.
const DefaultWait = 2 * time.Second

type entry struct {
	sem  chan struct{}
	refs int
}

// Manager hands out per-key mutual exclusion with a bounded wait.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	wait    time.Duration
}

// NewManager creates a lock manager. A non-positive maxWait falls back to
// DefaultWait.
func NewManager(maxWait time.Duration) *Manager {
	if maxWait <= 0 {
		maxWait = DefaultWait
	}

	return &Manager{
		entries: make(map[string]*entry),
		wait:    maxWait,
	}
}

// WithLock executes fn while holding the lock for key. When the lock cannot
// be acquired within the configured wait, it returns Contended without
// running fn; the caller may retry. Context cancellation also aborts the
// wait.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	e := m.retain(key)
	defer m.release(key)

	timer := time.NewTimer(m.wait)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
	case <-timer.C:
		return domain.ErrContended
	case <-ctx.Done():
		return ctx.Err()
	}

	defer func() { <-e.sem }()

	return fn(ctx)
}

func (m *Manager) retain(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.entries[key] = e
	}

	e.refs++

	return e
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return
	}

	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}
