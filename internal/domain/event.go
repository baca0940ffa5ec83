package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the transition a recorded event describes.
type EventKind string

const (
	EventTransactionCreated EventKind = "TRANSACTION_CREATED"
	EventEscrowFunded       EventKind = "ESCROW_FUNDED"
	EventWorkSubmitted      EventKind = "WORK_SUBMITTED"
	EventMilestoneApproved  EventKind = "MILESTONE_APPROVED"
	EventRevisionRequested  EventKind = "REVISION_REQUESTED"
	EventDisputeOpened      EventKind = "DISPUTE_OPENED"
	EventDisputeResolved    EventKind = "DISPUTE_RESOLVED"
)

// EventKinds returns every transition event kind in declaration order.
func EventKinds() []EventKind {
	return []EventKind{
		EventTransactionCreated,
		EventEscrowFunded,
		EventWorkSubmitted,
		EventMilestoneApproved,
		EventRevisionRequested,
		EventDisputeOpened,
		EventDisputeResolved,
	}
}

// Event is an immutable record of one committed state transition. Events are
// appended synchronously with the transition's commit and fanned out to the
// notification subsystem asynchronously, at-least-once.
type Event struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	// MilestoneID is nil for transaction-level transitions (create, fund).
	MilestoneID *uuid.UUID
	ActorID     string
	Kind        EventKind
	FromStatus  string
	ToStatus    string
	// TransactionStatus is the derived aggregate status after the transition.
	TransactionStatus TransactionStatus
	TransactionTitle  string
	BuyerID           string
	SellerID          string
	OccurredAt        time.Time
}

func newEvent(t *Transaction, milestoneID *uuid.UUID, actorID string, kind EventKind, from, to string, now time.Time) *Event {
	return &Event{
		ID:                uuid.New(),
		TransactionID:     t.ID,
		MilestoneID:       milestoneID,
		ActorID:           actorID,
		Kind:              kind,
		FromStatus:        from,
		ToStatus:          to,
		TransactionStatus: t.Status(),
		TransactionTitle:  t.Title,
		BuyerID:           t.BuyerID,
		SellerID:          t.SellerID,
		OccurredAt:        now,
	}
}
