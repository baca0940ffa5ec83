package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morebnyemba/smart-contracts-escrow/internal/domain"
)

func TestWithLockSerializesSameKey(t *testing.T) {
	m := NewManager(time.Second)

	var (
		mu      sync.Mutex
		running int
		maxSeen int
		wg      sync.WaitGroup
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := m.WithLock(context.Background(), "txn-1", func(context.Context) error {
				mu.Lock()
				running++
				if running > maxSeen {
					maxSeen = running
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()

				return nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestWithLockContended(t *testing.T) {
	m := NewManager(20 * time.Millisecond)

	acquired := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = m.WithLock(context.Background(), "txn-1", func(context.Context) error {
			close(acquired)
			<-done

			return nil
		})
	}()

	<-acquired

	err := m.WithLock(context.Background(), "txn-1", func(context.Context) error {
		t.Error("critical section ran while the lock was held")
		return nil
	})

	assert.ErrorIs(t, err, domain.ErrContended)
	close(done)
}

func TestWithLockIndependentKeys(t *testing.T) {
	m := NewManager(50 * time.Millisecond)

	blocked := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = m.WithLock(context.Background(), "txn-1", func(context.Context) error {
			close(blocked)
			<-done

			return nil
		})
	}()

	<-blocked

	// a different transaction's key is not affected by txn-1's holder
	err := m.WithLock(context.Background(), "txn-2", func(context.Context) error {
		return nil
	})

	require.NoError(t, err)
	close(done)
}

func TestWithLockContextCancelled(t *testing.T) {
	m := NewManager(time.Second)

	acquired := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = m.WithLock(context.Background(), "txn-1", func(context.Context) error {
			close(acquired)
			<-done

			return nil
		})
	}()

	<-acquired

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.WithLock(ctx, "txn-1", func(context.Context) error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
	close(done)
}

func TestWithLockPropagatesError(t *testing.T) {
	m := NewManager(time.Second)

	want := domain.ErrNotFound
	err := m.WithLock(context.Background(), "txn-1", func(context.Context) error {
		return want
	})

	assert.ErrorIs(t, err, want)
}
