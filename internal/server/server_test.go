package server_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
	"github.com/morebnyemba/smart-contracts-escrow/internal/server"
)

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) Log(_ context.Context, _ log.Level, msg string, _ ...log.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, msg)
}

func (l *recordingLogger) With(_ ...log.Field) log.Logger { return l }
func (l *recordingLogger) Enabled(_ log.Level) bool       { return true }
func (l *recordingLogger) Sync(_ context.Context) error   { return nil }

func (l *recordingLogger) getMessages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := make([]string, len(l.messages))
	copy(cp, l.messages)

	return cp
}

func freeAddress(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	return addr
}

func TestRunWithoutServer(t *testing.T) {
	err := server.NewManager(nil).Run()

	assert.ErrorIs(t, err, server.ErrNoServerConfigured)
}

func TestRunAndShutdown(t *testing.T) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	shutdown := make(chan struct{})
	logger := &recordingLogger{}

	var hookOrder []string

	m := server.NewManager(logger).
		WithHTTPServer(app, freeAddress(t)).
		WithShutdownChannel(shutdown).
		WithShutdownTimeout(2 * time.Second).
		WithShutdownHook("dispatcher", func(context.Context) error {
			hookOrder = append(hookOrder, "dispatcher")

			return nil
		}).
		WithShutdownHook("database", func(context.Context) error {
			hookOrder = append(hookOrder, "database")

			return errors.New("already closed")
		})

	done := make(chan error, 1)

	go func() {
		done <- m.Run()
	}()

	<-m.Started()
	close(shutdown)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not shut down")
	}

	assert.Equal(t, []string{"dispatcher", "database"}, hookOrder)
	assert.Contains(t, logger.getMessages(), "shutdown completed")
}

func TestStartupFailureTriggersShutdown(t *testing.T) {
	// Occupy a port so the second listener fails at startup.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer listener.Close()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	done := make(chan error, 1)

	go func() {
		done <- server.NewManager(nil).
			WithHTTPServer(app, listener.Addr().String()).
			WithShutdownChannel(make(chan struct{})).
			Run()
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not observe startup failure")
	}
}
