package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/morebnyemba/smart-contracts-escrow/internal/domain"
	"github.com/morebnyemba/smart-contracts-escrow/internal/log"
	"github.com/morebnyemba/smart-contracts-escrow/internal/outbox"
)

// Projector turns transition events into notification rows. One event can
// notify several recipients; the row id is derived deterministically from the
// event id and recipient, so redelivered events upsert instead of duplicating.
type Projector struct {
	repo   Repository
	logger log.Logger
}

// NewProjector creates a projector over the given read-model repository.
func NewProjector(repo Repository, logger log.Logger) *Projector {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Projector{repo: repo, logger: logger}
}

// Register subscribes the projector to every event kind it renders.
func (p *Projector) Register(registry *outbox.HandlerRegistry) error {
	for _, kind := range domain.EventKinds() {
		if err := registry.Register(string(kind), p.Handle); err != nil {
			return fmt.Errorf("register projector for %s: %w", kind, err)
		}
	}

	return nil
}

// Handle projects one outbox event into zero or more notification rows.
func (p *Projector) Handle(ctx context.Context, event *outbox.Event) error {
	payload, err := outbox.DecodePayload(event.Payload)
	if err != nil {
		return err
	}

	for _, target := range targetsFor(payload) {
		n, err := buildNotification(payload, target)
		if err != nil {
			return err
		}

		if err := p.repo.Create(ctx, n); err != nil {
			return fmt.Errorf("project notification for %s: %w", target.recipientID, err)
		}

		p.logger.Log(ctx, log.LevelDebug, "notification projected",
			log.String("recipient", target.recipientID),
			log.String("type", string(target.kind)),
		)
	}

	return nil
}

type target struct {
	recipientID string
	kind        Type
	message     string
}

// targetsFor maps an event onto its recipients. The party that performed the
// action is never notified about their own move.
func targetsFor(p outbox.Payload) []target {
	title := p.TransactionTitle

	switch domain.EventKind(p.Kind) {
	case domain.EventTransactionCreated:
		return []target{{
			recipientID: p.SellerID,
			kind:        TypeTransactionAccepted,
			message:     fmt.Sprintf("You were added as the seller on %q.", title),
		}}
	case domain.EventEscrowFunded:
		return []target{{
			recipientID: p.SellerID,
			kind:        TypeEscrowFunded,
			message:     fmt.Sprintf("Escrow for %q has been funded. You can start working.", title),
		}}
	case domain.EventWorkSubmitted:
		return []target{{
			recipientID: p.BuyerID,
			kind:        TypeWorkSubmitted,
			message:     fmt.Sprintf("Work was submitted for review on %q.", title),
		}}
	case domain.EventMilestoneApproved:
		targets := []target{{
			recipientID: p.SellerID,
			kind:        TypeMilestoneApproved,
			message:     fmt.Sprintf("A milestone on %q was approved and its funds released.", title),
		}}

		if p.TransactionStatus == string(domain.TransactionCompleted) {
			targets = append(targets,
				target{
					recipientID: p.BuyerID,
					kind:        TypeTransactionCompleted,
					message:     fmt.Sprintf("All milestones on %q are settled. The transaction is complete.", title),
				},
				target{
					recipientID: p.SellerID,
					kind:        TypeTransactionCompleted,
					message:     fmt.Sprintf("All milestones on %q are settled. The transaction is complete.", title),
				},
			)
		}

		return targets
	case domain.EventRevisionRequested:
		return []target{{
			recipientID: p.SellerID,
			kind:        TypeRevisionRequested,
			message:     fmt.Sprintf("The buyer requested changes on %q.", title),
		}}
	case domain.EventDisputeOpened:
		counterparty := p.SellerID
		if p.ActorID == p.SellerID {
			counterparty = p.BuyerID
		}

		return []target{{
			recipientID: counterparty,
			kind:        TypeDisputeOpened,
			message:     fmt.Sprintf("A dispute was opened on %q. The transaction is frozen pending arbitration.", title),
		}}
	case domain.EventDisputeResolved:
		message := fmt.Sprintf("The dispute on %q was resolved by arbitration.", title)

		return []target{
			{recipientID: p.BuyerID, kind: TypeDisputeResolved, message: message},
			{recipientID: p.SellerID, kind: TypeDisputeResolved, message: message},
		}
	}

	return nil
}

func buildNotification(p outbox.Payload, t target) (*Notification, error) {
	transactionID, err := uuid.Parse(p.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("parse transaction id: %w", err)
	}

	var milestoneID *uuid.UUID

	if p.MilestoneID != nil {
		id, err := uuid.Parse(*p.MilestoneID)
		if err != nil {
			return nil, fmt.Errorf("parse milestone id: %w", err)
		}

		milestoneID = &id
	}

	createdAt, err := time.Parse(time.RFC3339Nano, p.OccurredAt)
	if err != nil {
		createdAt = time.Now().UTC()
	}

	return &Notification{
		ID:            deterministicID(p.EventID, t.recipientID, t.kind),
		RecipientID:   t.recipientID,
		Type:          t.kind,
		Message:       t.message,
		TransactionID: transactionID,
		MilestoneID:   milestoneID,
		CreatedAt:     createdAt,
	}, nil
}

// deterministicID derives the row id from the event, recipient and type so a
// redelivered event maps onto the same row.
func deterministicID(eventID, recipientID string, kind Type) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(eventID+"|"+recipientID+"|"+string(kind)))
}
