// Package notification maintains the per-user notification read model. Rows
// are projected from outbox events; the HTTP surface only ever reads, marks
// read, and counts.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type classifies a notification for client rendering.
type Type string

const (
	TypeTransactionAccepted  Type = "TRANSACTION_ACCEPTED"
	TypeEscrowFunded         Type = "ESCROW_FUNDED"
	TypeWorkSubmitted        Type = "WORK_SUBMITTED"
	TypeMilestoneApproved    Type = "MILESTONE_APPROVED"
	TypeRevisionRequested    Type = "REVISION_REQUESTED"
	TypeTransactionCompleted Type = "TRANSACTION_COMPLETED"
	TypeDisputeOpened        Type = "DISPUTE_OPENED"
	TypeDisputeResolved      Type = "DISPUTE_RESOLVED"
)

// Notification is one row of the read model.
type Notification struct {
	ID            uuid.UUID
	RecipientID   string
	Type          Type
	Message       string
	TransactionID uuid.UUID
	MilestoneID   *uuid.UUID
	IsRead        bool
	CreatedAt     time.Time
}

// Repository persists the read model. Create must be idempotent on the
// notification id: the projector runs under at-least-once delivery and will
// replay events.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*Notification, error)
	// MarkRead flips one notification owned by recipientID. Unknown ids and
	// foreign rows report NotFound.
	MarkRead(ctx context.Context, id uuid.UUID, recipientID string) error
	// MarkAllRead flips every unread row for the recipient and returns how
	// many changed.
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
}
