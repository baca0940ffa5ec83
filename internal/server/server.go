// Package server runs the HTTP listener and coordinates graceful shutdown of
// the listener and its background workers.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
)

// ErrNoServerConfigured indicates the manager was started without a server.
var ErrNoServerConfigured = errors.New("no server configured: use WithHTTPServer()")

// ShutdownHook releases a resource during shutdown. Hooks run in registration
// order after the listener has stopped accepting connections.
type ShutdownHook struct {
	Name string
	Stop func(ctx context.Context) error
}

// Manager starts the HTTP server and shuts everything down in order when a
// termination signal arrives.
type Manager struct {
	httpServer      *fiber.App
	httpAddress     string
	hooks           []ShutdownHook
	logger          log.Logger
	started         chan struct{}
	startedOnce     sync.Once
	shutdownChan    <-chan struct{}
	shutdownOnce    sync.Once
	shutdownTimeout time.Duration
	startupErrors   chan error
}

// NewManager creates a Manager. A nil logger is replaced with a no-op one.
func NewManager(logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Manager{
		logger:          logger,
		started:         make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startupErrors:   make(chan error, 1),
	}
}

// WithHTTPServer configures the fiber app and listen address.
func (m *Manager) WithHTTPServer(app *fiber.App, address string) *Manager {
	m.httpServer = app
	m.httpAddress = address

	return m
}

// WithShutdownHook registers a resource to release during shutdown, such as
// the outbox dispatcher or the database pool.
func (m *Manager) WithShutdownHook(name string, stop func(ctx context.Context) error) *Manager {
	m.hooks = append(m.hooks, ShutdownHook{Name: name, Stop: stop})

	return m
}

// WithShutdownChannel configures a custom shutdown trigger so tests can stop
// the manager deterministically instead of sending OS signals.
func (m *Manager) WithShutdownChannel(ch <-chan struct{}) *Manager {
	m.shutdownChan = ch

	return m
}

// WithShutdownTimeout bounds how long each shutdown hook may take.
func (m *Manager) WithShutdownTimeout(d time.Duration) *Manager {
	m.shutdownTimeout = d

	return m
}

// Started returns a channel closed once the server goroutine has been
// launched. It signals launch, not that the socket is bound.
func (m *Manager) Started() <-chan struct{} {
	return m.started
}

// Run starts the server and blocks until a termination signal is received,
// the shutdown channel is closed, or startup fails. It then executes the
// shutdown sequence.
func (m *Manager) Run() error {
	if m.httpServer == nil {
		return ErrNoServerConfigured
	}

	go func() {
		m.logInfof("starting HTTP server on %s", m.httpAddress)

		if err := m.httpServer.Listen(m.httpAddress); err != nil {
			m.logErrorf("HTTP server error: %v", err)

			select {
			case m.startupErrors <- fmt.Errorf("http server: %w", err):
			default:
			}
		}
	}()

	m.startedOnce.Do(func() {
		close(m.started)
	})

	m.waitForShutdown()
	m.executeShutdown()

	return nil
}

func (m *Manager) waitForShutdown() {
	if m.shutdownChan != nil {
		select {
		case <-m.shutdownChan:
		case err := <-m.startupErrors:
			m.logErrorf("server startup failed: %v", err)
		}

		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case <-c:
		signal.Stop(c)
	case err := <-m.startupErrors:
		m.logErrorf("server startup failed: %v", err)
	}
}

// executeShutdown stops the listener first so no new work arrives, then runs
// the hooks in registration order. Idempotent.
func (m *Manager) executeShutdown() {
	m.shutdownOnce.Do(func() {
		m.logInfof("gracefully shutting down")

		if err := m.httpServer.ShutdownWithTimeout(m.shutdownTimeout); err != nil {
			m.logErrorf("error during HTTP server shutdown: %v", err)
		}

		for _, hook := range m.hooks {
			ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)

			m.logInfof("shutting down %s", hook.Name)

			if err := hook.Stop(ctx); err != nil {
				m.logErrorf("error shutting down %s: %v", hook.Name, err)
			}

			cancel()
		}

		if err := m.logger.Sync(context.Background()); err != nil {
			m.logErrorf("failed to sync logger: %v", err)
		}

		m.logInfof("shutdown completed")
	})
}

func (m *Manager) logInfof(format string, args ...any) {
	m.logger.Log(context.Background(), log.LevelInfo, fmt.Sprintf(format, args...))
}

func (m *Manager) logErrorf(format string, args ...any) {
	m.logger.Log(context.Background(), log.LevelError, fmt.Sprintf(format, args...))
}
