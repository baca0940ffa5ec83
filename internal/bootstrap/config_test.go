package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
)

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("ESCROW_JWT_SECRET", "")

	_, err := LoadConfig()

	assert.ErrorIs(t, err, ErrJWTSecretRequired)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ESCROW_JWT_SECRET", "test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, log.LevelInfo, cfg.LogLevel)
	assert.Equal(t, []byte("test-secret"), cfg.JWTSecret)
	assert.Equal(t, []string{"HS256"}, cfg.JWTAlgorithms)
	assert.Equal(t, 2*time.Second, cfg.LockWait)
	assert.Empty(t, cfg.PostgresDSN)
	assert.Equal(t, "escrow", cfg.PostgresDatabase)
	assert.Equal(t, "escrow.events", cfg.RabbitMQExchange)
	assert.Equal(t, time.Second, cfg.DispatchInterval)
	assert.Equal(t, 100, cfg.DispatchBatch)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ESCROW_JWT_SECRET", "test-secret")
	t.Setenv("ESCROW_SERVER_ADDRESS", ":9090")
	t.Setenv("ESCROW_LOG_LEVEL", "debug")
	t.Setenv("ESCROW_JWT_ALGORITHMS", "HS256, HS512")
	t.Setenv("ESCROW_LOCK_WAIT", "500ms")
	t.Setenv("ESCROW_DISPATCH_INTERVAL", "250ms")
	t.Setenv("ESCROW_DISPATCH_BATCH", "10")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddress)
	assert.Equal(t, log.LevelDebug, cfg.LogLevel)
	assert.Equal(t, []string{"HS256", "HS512"}, cfg.JWTAlgorithms)
	assert.Equal(t, 500*time.Millisecond, cfg.LockWait)
	assert.Equal(t, 250*time.Millisecond, cfg.DispatchInterval)
	assert.Equal(t, 10, cfg.DispatchBatch)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("ESCROW_JWT_SECRET", "test-secret")
	t.Setenv("ESCROW_LOG_LEVEL", "verbose")

	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("ESCROW_LOG_LEVEL", "info")
	t.Setenv("ESCROW_LOCK_WAIT", "soon")

	_, err = LoadConfig()
	assert.Error(t, err)
}
