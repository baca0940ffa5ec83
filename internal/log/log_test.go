package log_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]log.Level{
		"debug":   log.LevelDebug,
		"info":    log.LevelInfo,
		"warn":    log.LevelWarn,
		"warning": log.LevelWarn,
		"ERROR":   log.LevelError,
	}

	for input, want := range cases {
		got, err := log.ParseLevel(input)
		require.NoError(t, err)
		assert.Equal(t, want, got, input)
	}

	_, err := log.ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "debug", log.LevelDebug.String())
	assert.Equal(t, "error", log.LevelError.String())
	assert.Equal(t, "unknown", log.Level(200).String())
}

func TestFieldConstructors(t *testing.T) {
	boom := errors.New("boom")

	assert.Equal(t, log.Field{Key: "transaction_id", Value: "t-1"}, log.String("transaction_id", "t-1"))
	assert.Equal(t, log.Field{Key: "milestones", Value: 4}, log.Int("milestones", 4))
	assert.Equal(t, log.Field{Key: "redis", Value: true}, log.Bool("redis", true))
	assert.Equal(t, log.Field{Key: "counters", Value: []int{1, 2}}, log.Any("counters", []int{1, 2}))
	assert.Equal(t, log.Field{Key: "error", Value: boom}, log.Err(boom))
}
