// Package http exposes the REST surface over fiber. Routes mirror the
// marketplace API conventions: resource paths with trailing slashes, bearer
// token auth, JSON bodies with decimal-string money.
package http

import (
	"errors"
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/morebnyemba/smart-contracts-escrow/internal/domain"
	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
)

// Response is the envelope for every error body.
type Response struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// OK sends an HTTP 200 response with a JSON body.
func OK(c *fiber.Ctx, body any) error {
	return c.Status(nethttp.StatusOK).JSON(body)
}

// Created sends an HTTP 201 response with a JSON body.
func Created(c *fiber.Ctx, body any) error {
	return c.Status(nethttp.StatusCreated).JSON(body)
}

// Unauthorized sends an HTTP 401 response.
func Unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(nethttp.StatusUnauthorized).JSON(Response{
		Code:    "unauthorized",
		Title:   "Unauthorized",
		Message: message,
	})
}

// ErrorResponse maps a service error onto its HTTP status and envelope.
// Internal consistency failures are reported generically: the details go to
// the log, never to the client.
func ErrorResponse(c *fiber.Ctx, logger log.Logger, err error) error {
	switch {
	case errors.Is(err, domain.ErrInternalConsistency):
		logger.Log(c.UserContext(), log.LevelError, "custody invariant violated", log.Err(err))

		return c.Status(nethttp.StatusInternalServerError).JSON(Response{
			Code:    "internal_error",
			Title:   "Internal Server Error",
			Message: "An internal error occurred. The operation was aborted.",
		})
	case errors.Is(err, domain.ErrValidation):
		return c.Status(nethttp.StatusBadRequest).JSON(Response{
			Code:    "validation_error",
			Title:   "Bad Request",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrAmountMismatch):
		return c.Status(nethttp.StatusBadRequest).JSON(Response{
			Code:    "amount_mismatch",
			Title:   "Bad Request",
			Message: "The deposit must equal the transaction total exactly.",
		})
	case errors.Is(err, domain.ErrAuthorizationDenied):
		return c.Status(nethttp.StatusForbidden).JSON(Response{
			Code:    "authorization_denied",
			Title:   "Forbidden",
			Message: "You are not allowed to perform this action.",
		})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(nethttp.StatusNotFound).JSON(Response{
			Code:    "not_found",
			Title:   "Not Found",
			Message: "The requested resource does not exist.",
		})
	case errors.Is(err, domain.ErrAlreadyApproved):
		return c.Status(nethttp.StatusConflict).JSON(Response{
			Code:    "already_approved",
			Title:   "Conflict",
			Message: "This milestone is already approved; its funds were released once.",
		})
	case errors.Is(err, domain.ErrAlreadyFunded):
		return c.Status(nethttp.StatusConflict).JSON(Response{
			Code:    "already_funded",
			Title:   "Conflict",
			Message: "The escrow for this transaction is already funded.",
		})
	case errors.Is(err, domain.ErrInvalidTransition):
		return c.Status(nethttp.StatusConflict).JSON(Response{
			Code:    "invalid_transition",
			Title:   "Conflict",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrContended):
		c.Set(fiber.HeaderRetryAfter, "1")

		return c.Status(nethttp.StatusServiceUnavailable).JSON(Response{
			Code:    "contended",
			Title:   "Service Unavailable",
			Message: "The transaction is busy; retry shortly.",
		})
	case errors.Is(err, domain.ErrUnavailable):
		return c.Status(nethttp.StatusServiceUnavailable).JSON(Response{
			Code:    "unavailable",
			Title:   "Service Unavailable",
			Message: "A backing service is unavailable; retry shortly.",
		})
	default:
		logger.Log(c.UserContext(), log.LevelError, "unhandled service error", log.Err(err))

		return c.Status(nethttp.StatusInternalServerError).JSON(Response{
			Code:    "internal_error",
			Title:   "Internal Server Error",
			Message: "An internal error occurred.",
		})
	}
}
