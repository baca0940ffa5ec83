package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/morebnyemba/smart-contracts-escrow/internal/application"
	"github.com/morebnyemba/smart-contracts-escrow/internal/domain"
	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
)

// TransactionHandler serves the transaction and milestone routes.
type TransactionHandler struct {
	service *application.Service
	logger  log.Logger
}

// NewTransactionHandler creates the handler.
func NewTransactionHandler(service *application.Service, logger log.Logger) *TransactionHandler {
	if logger == nil {
		logger = log.NewNop()
	}

	return &TransactionHandler{service: service, logger: logger}
}

// Create handles POST /api/transactions/.
func (h *TransactionHandler) Create(c *fiber.Ctx) error {
	var req createTransactionRequest

	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, h.logger, domain.NewValidationError("body", "request body must be valid JSON"))
	}

	milestones := make([]application.MilestoneInput, 0, len(req.Milestones))
	for _, m := range req.Milestones {
		milestones = append(milestones, application.MilestoneInput{
			Title:       m.Title,
			Description: m.Description,
			Value:       m.Value,
		})
	}

	t, err := h.service.CreateTransaction(c.UserContext(), ActorFromContext(c), application.CreateTransactionInput{
		SellerID:    req.SellerID,
		Title:       req.Title,
		Description: req.Description,
		Milestones:  milestones,
	})
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	return Created(c, toTransactionResponse(t))
}

// List handles GET /api/transactions/.
func (h *TransactionHandler) List(c *fiber.Ctx) error {
	transactions, err := h.service.List(c.UserContext(), ActorFromContext(c))
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	results := make([]transactionResponse, 0, len(transactions))
	for _, t := range transactions {
		results = append(results, toTransactionResponse(t))
	}

	return OK(c, listResponse[transactionResponse]{Count: len(results), Results: results})
}

// Get handles GET /api/transactions/:id/.
func (h *TransactionHandler) Get(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	t, err := h.service.Get(c.UserContext(), ActorFromContext(c), id)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	return OK(c, toTransactionResponse(t))
}

// Fund handles POST /api/transactions/:id/fund/.
func (h *TransactionHandler) Fund(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	var req fundRequest

	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, h.logger, domain.NewValidationError("body", "request body must be valid JSON"))
	}

	t, err := h.service.Fund(c.UserContext(), ActorFromContext(c), id, req.Amount)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	return OK(c, toTransactionResponse(t))
}

// SubmitWork handles POST /api/milestones/:id/submit/.
func (h *TransactionHandler) SubmitWork(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	var req submitWorkRequest

	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, h.logger, domain.NewValidationError("body", "request body must be valid JSON"))
	}

	t, err := h.service.SubmitWork(c.UserContext(), ActorFromContext(c), id, req.SubmissionDetails)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	return OK(c, toTransactionResponse(t))
}

// Approve handles POST /api/milestones/:id/approve/.
func (h *TransactionHandler) Approve(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	t, err := h.service.Approve(c.UserContext(), ActorFromContext(c), id)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	return OK(c, toTransactionResponse(t))
}

// RequestRevision handles POST /api/milestones/:id/request_revision/.
func (h *TransactionHandler) RequestRevision(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	var req requestRevisionRequest

	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, h.logger, domain.NewValidationError("body", "request body must be valid JSON"))
	}

	t, err := h.service.RequestRevision(c.UserContext(), ActorFromContext(c), id, req.Reason)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	return OK(c, toTransactionResponse(t))
}

// OpenDispute handles POST /api/milestones/:id/dispute/.
func (h *TransactionHandler) OpenDispute(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	t, err := h.service.OpenDispute(c.UserContext(), ActorFromContext(c), id)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	return OK(c, toTransactionResponse(t))
}

// ResolveDispute handles POST /api/milestones/:id/resolve/.
func (h *TransactionHandler) ResolveDispute(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	var req resolveRequest

	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, h.logger, domain.NewValidationError("body", "request body must be valid JSON"))
	}

	t, err := h.service.ResolveDispute(c.UserContext(), ActorFromContext(c), id, domain.ResolutionOutcome(req.Outcome))
	if err != nil {
		return ErrorResponse(c, h.logger, err)
	}

	return OK(c, toTransactionResponse(t))
}

// pathID parses the :id path parameter. Malformed ids map to NotFound so the
// route namespace never leaks which ids are syntactically plausible.
func pathID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, domain.ErrNotFound
	}

	return id, nil
}
