package application

import (
	"context"

	"github.com/google/uuid"

	"github.com/morebnyemba/smart-contracts-escrow/internal/domain"
	"github.com/morebnyemba/smart-contracts-escrow/internal/outbox"
)

// Repository persists transactions together with their outbox events. Create
// and SaveTransition must be atomic: the state change and the event row
// commit or roll back together.
type Repository interface {
	Create(ctx context.Context, t *domain.Transaction, event *outbox.Event) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// GetByMilestone resolves the owning transaction of a milestone.
	GetByMilestone(ctx context.Context, milestoneID uuid.UUID) (*domain.Transaction, error)
	// ListByParty returns transactions where the party is buyer or seller,
	// newest first.
	ListByParty(ctx context.Context, partyID string) ([]*domain.Transaction, error)
	// ListAll returns every transaction, newest first. Arbiter-only surface.
	ListAll(ctx context.Context) ([]*domain.Transaction, error)
	SaveTransition(ctx context.Context, t *domain.Transaction, event *outbox.Event) error
}

// Locker serializes transitions per transaction key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}
