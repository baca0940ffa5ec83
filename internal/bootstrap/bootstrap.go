package bootstrap

import (
	"context"
	"fmt"

	"github.com/morebnyemba/smart-contracts-escrow/internal/adapters/http"
	"github.com/morebnyemba/smart-contracts-escrow/internal/adapters/memory"
	"github.com/morebnyemba/smart-contracts-escrow/internal/adapters/postgres"
	"github.com/morebnyemba/smart-contracts-escrow/internal/adapters/rabbitmq"
	"github.com/morebnyemba/smart-contracts-escrow/internal/adapters/rediscache"
	"github.com/morebnyemba/smart-contracts-escrow/internal/application"
	"github.com/morebnyemba/smart-contracts-escrow/internal/domain"
	"github.com/morebnyemba/smart-contracts-escrow/internal/jwt"
	"github.com/morebnyemba/smart-contracts-escrow/internal/lock"
	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
	"github.com/morebnyemba/smart-contracts-escrow/internal/notification"
	"github.com/morebnyemba/smart-contracts-escrow/internal/outbox"
	"github.com/morebnyemba/smart-contracts-escrow/internal/server"
	zaplog "github.com/morebnyemba/smart-contracts-escrow/internal/zap"
)

// App is the assembled process: HTTP server plus the outbox dispatcher.
type App struct {
	logger     log.Logger
	manager    *server.Manager
	dispatcher *outbox.Dispatcher
}

// closer pairs a resource name with its release function so hooks can be
// registered after the dispatcher, which must stop first.
type closer struct {
	name string
	stop func(ctx context.Context) error
}

// New wires the application from config. Optional backends degrade
// gracefully: without postgres the in-memory store serves, without rabbitmq
// events only feed the notification projector, without redis the unread
// counter reads the repository every time.
func New(ctx context.Context, cfg Config) (*App, error) {
	logger := zaplog.New(cfg.LogLevel, "escrowd")

	repo, outboxRepo, notifications, closers, err := buildStorage(ctx, cfg, logger, nil)
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddress != "" {
		client, err := rediscache.Connect(ctx, cfg.RedisAddress)
		if err != nil {
			return nil, err
		}

		closers = append(closers, closer{"redis client", func(context.Context) error {
			return client.Close()
		}})

		notifications = rediscache.NewCountCache(notifications, client, cfg.RedisTTL, logger)
	}

	handlers := outbox.NewHandlerRegistry()
	projector := notification.NewProjector(notifications, logger)

	closers, err = registerHandlers(ctx, cfg, logger, closers, handlers, projector)
	if err != nil {
		return nil, err
	}

	dispatcher, err := outbox.NewDispatcher(outboxRepo, handlers, logger, nil, outbox.DispatcherConfig{
		DispatchInterval: cfg.DispatchInterval,
		BatchSize:        cfg.DispatchBatch,
	})
	if err != nil {
		return nil, err
	}

	service := application.NewService(repo, lock.NewManager(cfg.LockWait), logger)
	verifier := jwt.NewVerifier(cfg.JWTSecret, cfg.JWTAlgorithms...)
	router := http.NewRouter(service, notifications, verifier, logger)

	manager := server.NewManager(logger).
		WithHTTPServer(router, cfg.ServerAddress).
		WithShutdownHook("outbox dispatcher", dispatcher.Shutdown)

	for _, c := range closers {
		manager.WithShutdownHook(c.name, c.stop)
	}

	logger.Log(ctx, log.LevelInfo, "escrowd wired",
		log.String("address", cfg.ServerAddress),
		log.Bool("postgres", cfg.PostgresDSN != ""),
		log.Bool("rabbitmq", cfg.RabbitMQURI != ""),
		log.Bool("redis", cfg.RedisAddress != ""),
	)

	return &App{
		logger:     logger,
		manager:    manager,
		dispatcher: dispatcher,
	}, nil
}

func buildStorage(
	ctx context.Context,
	cfg Config,
	logger log.Logger,
	closers []closer,
) (application.Repository, outbox.Repository, notification.Repository, []closer, error) {
	if cfg.PostgresDSN == "" {
		logger.Log(ctx, log.LevelWarn, "no postgres DSN configured, using in-memory storage")

		store := memory.NewStore()

		return store, store, store.Notifications(), closers, nil
	}

	conn := &postgres.Connection{
		ConnectionString: cfg.PostgresDSN,
		DatabaseName:     cfg.PostgresDatabase,
		Logger:           logger,
	}

	if err := conn.Connect(ctx); err != nil {
		return nil, nil, nil, nil, err
	}

	db, err := conn.GetDB(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	closers = append(closers, closer{"postgres connection", func(context.Context) error {
		return conn.Close()
	}})

	store := postgres.NewStore(db)

	return store, store, store.Notifications(), closers, nil
}

// registerHandlers subscribes every event kind to the projector and, when a
// broker is configured, to the confirm-mode publisher behind it.
func registerHandlers(
	ctx context.Context,
	cfg Config,
	logger log.Logger,
	closers []closer,
	handlers *outbox.HandlerRegistry,
	projector *notification.Projector,
) ([]closer, error) {
	if cfg.RabbitMQURI == "" {
		return closers, projector.Register(handlers)
	}

	conn := &rabbitmq.Connection{
		URI:      cfg.RabbitMQURI,
		Exchange: cfg.RabbitMQExchange,
		Logger:   logger,
	}

	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()

		return nil, err
	}

	publisher, err := rabbitmq.NewPublisher(ch, rabbitmq.WithLogger(logger))
	if err != nil {
		conn.Close()

		return nil, err
	}

	closers = append(closers,
		closer{"rabbitmq publisher", func(context.Context) error {
			return publisher.Close()
		}},
		closer{"rabbitmq connection", func(context.Context) error {
			return conn.Close()
		}},
	)

	eventPublisher, err := rabbitmq.NewEventPublisher(publisher, cfg.RabbitMQExchange, logger)
	if err != nil {
		return nil, err
	}

	for _, kind := range domain.EventKinds() {
		handler := outbox.Chain(projector.Handle, eventPublisher.Handle)

		if err := handlers.Register(string(kind), handler); err != nil {
			return nil, fmt.Errorf("register handler for %s: %w", kind, err)
		}
	}

	return closers, nil
}

// Run starts the dispatcher and blocks on the HTTP server until shutdown.
func (a *App) Run(ctx context.Context) error {
	go func() {
		if err := a.dispatcher.Run(ctx); err != nil {
			a.logger.Log(ctx, log.LevelError, "outbox dispatcher exited", log.Err(err))
		}
	}()

	return a.manager.Run()
}
