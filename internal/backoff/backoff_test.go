package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponential(t *testing.T) {
	base := 100 * time.Millisecond

	assert.Equal(t, base, Exponential(base, 0))
	assert.Equal(t, 2*base, Exponential(base, 1))
	assert.Equal(t, 8*base, Exponential(base, 3))
	assert.Equal(t, base, Exponential(base, -5))
	assert.Equal(t, time.Duration(0), Exponential(0, 3))
	// large attempts saturate instead of overflowing
	assert.Equal(t, time.Duration(1<<63-1), Exponential(time.Hour, 62))
}

func TestFullJitter(t *testing.T) {
	delay := 50 * time.Millisecond

	for i := 0; i < 100; i++ {
		jittered := FullJitter(delay)
		assert.GreaterOrEqual(t, jittered, time.Duration(0))
		assert.Less(t, jittered, delay)
	}

	assert.Equal(t, time.Duration(0), FullJitter(0))
	assert.Equal(t, time.Duration(0), FullJitter(-time.Second))
}

func TestSleepWithContext(t *testing.T) {
	t.Run("completes a short sleep", func(t *testing.T) {
		require.NoError(t, SleepWithContext(context.Background(), time.Millisecond))
	})

	t.Run("returns immediately for non-positive durations", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.NoError(t, SleepWithContext(ctx, 0))
	})

	t.Run("aborts on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := SleepWithContext(ctx, time.Minute)

		assert.ErrorIs(t, err, context.Canceled)
	})
}
