package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/morebnyemba/smart-contracts-escrow/internal/application"
	"github.com/morebnyemba/smart-contracts-escrow/internal/jwt"
	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
	"github.com/morebnyemba/smart-contracts-escrow/internal/notification"
)

// NewRouter assembles the fiber application. Everything under /api requires a
// verified bearer token; /health is open for probes.
func NewRouter(service *application.Service, notifications notification.Repository, verifier *jwt.Verifier, logger log.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "escrowd",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return OK(c, fiber.Map{"status": "healthy"})
	})

	transactions := NewTransactionHandler(service, logger)
	notifs := NewNotificationHandler(notifications, logger)

	api := app.Group("/api", WithAuth(verifier))

	tx := api.Group("/transactions")
	tx.Post("/", transactions.Create)
	tx.Get("/", transactions.List)
	tx.Get("/:id", transactions.Get)
	tx.Post("/:id/fund", transactions.Fund)

	milestones := api.Group("/milestones")
	milestones.Post("/:id/submit", transactions.SubmitWork)
	milestones.Post("/:id/approve", transactions.Approve)
	milestones.Post("/:id/request_revision", transactions.RequestRevision)
	milestones.Post("/:id/dispute", transactions.OpenDispute)
	milestones.Post("/:id/resolve", transactions.ResolveDispute)

	n := api.Group("/notifications")
	n.Get("/", notifs.List)
	n.Get("/unread_count", notifs.UnreadCount)
	n.Post("/mark_all_as_read", notifs.MarkAllRead)
	n.Post("/:id/mark_as_read", notifs.MarkRead)

	return app
}
