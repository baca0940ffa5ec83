// Package application orchestrates transitions: acquire the transaction
// lock, check authorization, run the domain state machine, and persist the
// new state atomically with its outbox event.
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/morebnyemba/smart-contracts-escrow/internal/assert"
	"github.com/morebnyemba/smart-contracts-escrow/internal/authz"
	"github.com/morebnyemba/smart-contracts-escrow/internal/domain"
	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
	"github.com/morebnyemba/smart-contracts-escrow/internal/outbox"
)

// MilestoneInput is the creation-time shape of one milestone. Value is a
// decimal string; floats never enter the money path.
type MilestoneInput struct {
	Title       string
	Description string
	Value       string
}

// CreateTransactionInput is the input for CreateTransaction. The buyer is
// the authenticated actor.
type CreateTransactionInput struct {
	SellerID    string
	Title       string
	Description string
	Milestones  []MilestoneInput
}

// Service is the transaction application service.
type Service struct {
	repo   Repository
	locker Locker
	logger log.Logger
	now    func() time.Time
}

// NewService creates the application service.
func NewService(repo Repository, locker Locker, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Service{
		repo:   repo,
		locker: locker,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateTransaction creates a transaction with its milestones. The actor
// becomes the buyer.
func (s *Service) CreateTransaction(ctx context.Context, actor authz.Actor, input CreateTransactionInput) (*domain.Transaction, error) {
	specs := make([]domain.MilestoneSpec, 0, len(input.Milestones))

	for _, m := range input.Milestones {
		value, err := parseAmount("milestones.value", m.Value)
		if err != nil {
			return nil, err
		}

		specs = append(specs, domain.MilestoneSpec{
			Title:       m.Title,
			Description: m.Description,
			Value:       value,
		})
	}

	t, event, err := domain.NewTransaction(actor.ID, input.SellerID, input.Title, input.Description, specs, s.now())
	if err != nil {
		return nil, err
	}

	row, err := outbox.FromDomainEvent(event)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, t, row); err != nil {
		return nil, err
	}

	s.logger.Log(ctx, log.LevelInfo, "transaction created",
		log.String("transaction_id", t.ID.String()),
		log.String("total_value", t.TotalValue.String()),
		log.Int("milestones", len(t.Milestones)),
	)

	return t, nil
}

// Get returns one transaction. Non-parties receive NotFound so existence is
// not leaked.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*domain.Transaction, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !authz.CanView(actor, t) {
		return nil, domain.ErrNotFound
	}

	return t, nil
}

// List returns the actor's transactions. Arbiters see every transaction.
func (s *Service) List(ctx context.Context, actor authz.Actor) ([]*domain.Transaction, error) {
	if actor.Arbiter {
		return s.repo.ListAll(ctx)
	}

	return s.repo.ListByParty(ctx, actor.ID)
}

// Fund records the buyer's escrow deposit.
func (s *Service) Fund(ctx context.Context, actor authz.Actor, id uuid.UUID, amount string) (*domain.Transaction, error) {
	value, err := parseAmount("amount", amount)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, actor, id, domain.ActionFund, func(t *domain.Transaction) (*domain.Event, error) {
		return t.Fund(actor.ID, value, s.now())
	})
}

// SubmitWork records a seller submission on a milestone.
func (s *Service) SubmitWork(ctx context.Context, actor authz.Actor, milestoneID uuid.UUID, details string) (*domain.Transaction, error) {
	return s.milestoneTransition(ctx, actor, milestoneID, domain.ActionSubmitWork, func(t *domain.Transaction) (*domain.Event, error) {
		return t.SubmitWork(actor.ID, milestoneID, details, s.now())
	})
}

// Approve accepts submitted work and releases its escrow share.
func (s *Service) Approve(ctx context.Context, actor authz.Actor, milestoneID uuid.UUID) (*domain.Transaction, error) {
	return s.milestoneTransition(ctx, actor, milestoneID, domain.ActionApprove, func(t *domain.Transaction) (*domain.Event, error) {
		return t.Approve(actor.ID, milestoneID, s.now())
	})
}

// RequestRevision sends submitted work back to the seller.
func (s *Service) RequestRevision(ctx context.Context, actor authz.Actor, milestoneID uuid.UUID, reason string) (*domain.Transaction, error) {
	return s.milestoneTransition(ctx, actor, milestoneID, domain.ActionRequestRevision, func(t *domain.Transaction) (*domain.Event, error) {
		return t.RequestRevision(actor.ID, milestoneID, reason, s.now())
	})
}

// OpenDispute escalates a milestone to arbitration.
func (s *Service) OpenDispute(ctx context.Context, actor authz.Actor, milestoneID uuid.UUID) (*domain.Transaction, error) {
	return s.milestoneTransition(ctx, actor, milestoneID, domain.ActionOpenDispute, func(t *domain.Transaction) (*domain.Event, error) {
		return t.OpenDispute(actor.ID, milestoneID, s.now())
	})
}

// ResolveDispute settles a disputed milestone. Arbiter only.
func (s *Service) ResolveDispute(ctx context.Context, actor authz.Actor, milestoneID uuid.UUID, outcome domain.ResolutionOutcome) (*domain.Transaction, error) {
	return s.milestoneTransition(ctx, actor, milestoneID, domain.ActionResolveDispute, func(t *domain.Transaction) (*domain.Event, error) {
		return t.ResolveDispute(actor.ID, milestoneID, outcome, s.now())
	})
}

// milestoneTransition resolves the owning transaction first, then runs the
// transition under that transaction's lock. The aggregate is reloaded inside
// the lock so the transition always sees the latest committed state.
func (s *Service) milestoneTransition(ctx context.Context, actor authz.Actor, milestoneID uuid.UUID, action domain.Action, step func(*domain.Transaction) (*domain.Event, error)) (*domain.Transaction, error) {
	owner, err := s.repo.GetByMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, actor, owner.ID, action, step)
}

func (s *Service) transition(ctx context.Context, actor authz.Actor, id uuid.UUID, action domain.Action, step func(*domain.Transaction) (*domain.Event, error)) (*domain.Transaction, error) {
	var result *domain.Transaction

	err := s.locker.WithLock(ctx, id.String(), func(ctx context.Context) error {
		t, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}

		// Authorization runs before legality so a denied actor learns nothing
		// about the transaction's state.
		if err := authz.Decide(actor, action, t); err != nil {
			return err
		}

		event, err := step(t)
		if err != nil {
			return err
		}

		// The domain already aborts on conservation failures; this is the
		// loud last line before anything reaches storage.
		asserter := assert.New(s.logger, "application", string(action))
		if err := asserter.NoError(ctx, t.Ledger.CheckConservation(),
			"escrow ledger conservation violated", "transaction_id", id.String()); err != nil {
			return err
		}

		row, err := outbox.FromDomainEvent(event)
		if err != nil {
			return err
		}

		if err := s.repo.SaveTransition(ctx, t, row); err != nil {
			return err
		}

		result = t

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Log(ctx, log.LevelInfo, "transition committed",
		log.String("transaction_id", id.String()),
		log.String("action", string(action)),
		log.String("actor_id", actor.ID),
	)

	return result, nil
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, domain.NewValidationError(field, "amount must be a decimal string")
	}

	if err := domain.ValidateAmount(field, value); err != nil {
		return decimal.Decimal{}, err
	}

	return value, nil
}
