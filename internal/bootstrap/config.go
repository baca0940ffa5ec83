// Package bootstrap loads configuration and wires the application together.
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
)

// ErrJWTSecretRequired indicates the signing secret env var is missing.
var ErrJWTSecretRequired = errors.New("ESCROW_JWT_SECRET is required")

// Config holds everything the process reads from the environment. Postgres,
// RabbitMQ and Redis are optional: leaving an address empty selects the
// in-memory store, no broker fan-out, and no counter cache respectively.
type Config struct {
	ServerAddress string
	LogLevel      log.Level

	JWTSecret     []byte
	JWTAlgorithms []string

	LockWait time.Duration

	PostgresDSN      string
	PostgresDatabase string

	RabbitMQURI      string
	RabbitMQExchange string

	RedisAddress string
	RedisTTL     time.Duration

	DispatchInterval time.Duration
	DispatchBatch    int
}

// LoadConfig reads the environment.
func LoadConfig() (Config, error) {
	secret := os.Getenv("ESCROW_JWT_SECRET")
	if secret == "" {
		return Config{}, ErrJWTSecretRequired
	}

	level, err := log.ParseLevel(envString("ESCROW_LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, fmt.Errorf("ESCROW_LOG_LEVEL: %w", err)
	}

	lockWait, err := envDuration("ESCROW_LOCK_WAIT", 2*time.Second)
	if err != nil {
		return Config{}, err
	}

	redisTTL, err := envDuration("ESCROW_REDIS_TTL", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}

	dispatchInterval, err := envDuration("ESCROW_DISPATCH_INTERVAL", time.Second)
	if err != nil {
		return Config{}, err
	}

	dispatchBatch, err := envInt("ESCROW_DISPATCH_BATCH", 100)
	if err != nil {
		return Config{}, err
	}

	return Config{
		ServerAddress:    envString("ESCROW_SERVER_ADDRESS", ":8080"),
		LogLevel:         level,
		JWTSecret:        []byte(secret),
		JWTAlgorithms:    envList("ESCROW_JWT_ALGORITHMS", "HS256"),
		LockWait:         lockWait,
		PostgresDSN:      os.Getenv("ESCROW_POSTGRES_DSN"),
		PostgresDatabase: envString("ESCROW_POSTGRES_DATABASE", "escrow"),
		RabbitMQURI:      os.Getenv("ESCROW_RABBITMQ_URI"),
		RabbitMQExchange: envString("ESCROW_RABBITMQ_EXCHANGE", "escrow.events"),
		RedisAddress:     os.Getenv("ESCROW_REDIS_ADDRESS"),
		RedisTTL:         redisTTL,
		DispatchInterval: dispatchInterval,
		DispatchBatch:    dispatchBatch,
	}, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envList(key, fallback string) []string {
	raw := envString(key, fallback)

	var out []string

	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}

	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}

	return n, nil
}
