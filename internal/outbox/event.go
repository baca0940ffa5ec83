// Package outbox implements the durable event emitter. Transition events are
// appended in the same storage transaction as the state change and fanned out
// asynchronously by a polling dispatcher. Delivery is at-least-once; handlers
// must be idempotent.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/morebnyemba/smart-contracts-escrow/internal/domain"
)

const (
	StatusPending   = "PENDING"
	StatusPublished = "PUBLISHED"
	StatusFailed    = "FAILED"
)

// Event is a transition event stored for reliable delivery.
type Event struct {
	ID          uuid.UUID
	EventType   string
	AggregateID uuid.UUID
	Payload     []byte
	Status      string
	Attempts    int
	PublishedAt *time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Payload is the JSON body carried by every outbox event. It is
// self-contained: consumers never need to read the transaction back to route
// or render a notification.
type Payload struct {
	EventID           string  `json:"event_id"`
	TransactionID     string  `json:"transaction_id"`
	MilestoneID       *string `json:"milestone_id,omitempty"`
	ActorID           string  `json:"actor_id"`
	Kind              string  `json:"kind"`
	FromStatus        string  `json:"from_status,omitempty"`
	ToStatus          string  `json:"to_status"`
	TransactionStatus string  `json:"transaction_status"`
	TransactionTitle  string  `json:"transaction_title"`
	BuyerID           string  `json:"buyer_id"`
	SellerID          string  `json:"seller_id"`
	OccurredAt        string  `json:"occurred_at"`
}

// FromDomainEvent wraps a committed transition event for the outbox. The
// outbox row reuses the domain event's id, which doubles as the idempotency
// key for consumers.
func FromDomainEvent(e *domain.Event) (*Event, error) {
	if e == nil {
		return nil, fmt.Errorf("outbox event: %w", domain.ErrInternalConsistency)
	}

	var milestoneID *string

	if e.MilestoneID != nil {
		s := e.MilestoneID.String()
		milestoneID = &s
	}

	payload, err := json.Marshal(Payload{
		EventID:           e.ID.String(),
		TransactionID:     e.TransactionID.String(),
		MilestoneID:       milestoneID,
		ActorID:           e.ActorID,
		Kind:              string(e.Kind),
		FromStatus:        e.FromStatus,
		ToStatus:          e.ToStatus,
		TransactionStatus: string(e.TransactionStatus),
		TransactionTitle:  e.TransactionTitle,
		BuyerID:           e.BuyerID,
		SellerID:          e.SellerID,
		OccurredAt:        e.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}

	return &Event{
		ID:          e.ID,
		EventType:   string(e.Kind),
		AggregateID: e.TransactionID,
		Payload:     payload,
		Status:      StatusPending,
		CreatedAt:   e.OccurredAt,
		UpdatedAt:   e.OccurredAt,
	}, nil
}

// DecodePayload unmarshals an outbox event body.
func DecodePayload(raw []byte) (Payload, error) {
	var p Payload

	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode outbox payload: %w", err)
	}

	return p, nil
}
