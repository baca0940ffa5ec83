package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
	"github.com/morebnyemba/smart-contracts-escrow/internal/notification"
)

// defaultNotificationLimit bounds one notification page.
const defaultNotificationLimit = 50

// NotificationHandler serves the notification read-model routes.
type NotificationHandler struct {
	repo   notification.Repository
	logger log.Logger
}

// NewNotificationHandler creates the handler.
func NewNotificationHandler(repo notification.Repository, logger log.Logger) *NotificationHandler {
	if logger == nil {
		logger = log.NewNop()
	}

	return &NotificationHandler{repo: repo, logger: logger}
}

// List handles GET /api/notifications/.
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	actor := ActorFromContext(c)

	limit := c.QueryInt("limit", defaultNotificationLimit)
	if limit <= 0 || limit > defaultNotificationLimit {
		limit = defaultNotificationLimit
	}

	rows, err := h.repo.ListByRecipient(c.UserContext(), actor.ID, limit)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	results := make([]notificationResponse, 0, len(rows))
	for _, n := range rows {
		results = append(results, toNotificationResponse(n))
	}

	return OK(c, listResponse[notificationResponse]{Count: len(results), Results: results})
}

// MarkRead handles POST /api/notifications/:id/mark_as_read/.
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	actor := ActorFromContext(c)

	if err := h.repo.MarkRead(c.UserContext(), id, actor.ID); err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	return OK(c, fiber.Map{"status": "marked as read"})
}

// MarkAllRead handles POST /api/notifications/mark_all_as_read/.
func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	actor := ActorFromContext(c)

	updated, err := h.repo.MarkAllRead(c.UserContext(), actor.ID)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	return OK(c, markAllReadResponse{Updated: updated})
}

// UnreadCount handles GET /api/notifications/unread_count/.
func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	actor := ActorFromContext(c)

	count, err := h.repo.UnreadCount(c.UserContext(), actor.ID)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	return OK(c, unreadCountResponse{UnreadCount: count})
}
