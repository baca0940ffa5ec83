// Package memory provides in-memory repositories for tests and local
// development. One Store backs the transaction, outbox and notification
// repositories so a transition and its event row commit under the same
// mutex, mirroring the transactional guarantees of the postgres adapter.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/morebnyemba/smart-contracts-escrow/internal/application"
	"github.com/morebnyemba/smart-contracts-escrow/internal/domain"
	"github.com/morebnyemba/smart-contracts-escrow/internal/notification"
	"github.com/morebnyemba/smart-contracts-escrow/internal/outbox"
)

// Store is the shared in-memory state.
type Store struct {
	mu sync.RWMutex

	transactions   map[uuid.UUID]*domain.Transaction
	order          []uuid.UUID
	milestoneOwner map[uuid.UUID]uuid.UUID

	outboxRows  map[uuid.UUID]*outbox.Event
	outboxOrder []uuid.UUID

	notifications map[uuid.UUID]*notification.Notification
	notifOrder    []uuid.UUID
}

var (
	_ application.Repository = (*Store)(nil)
	_ outbox.Repository      = (*Store)(nil)
)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		transactions:   make(map[uuid.UUID]*domain.Transaction),
		milestoneOwner: make(map[uuid.UUID]uuid.UUID),
		outboxRows:     make(map[uuid.UUID]*outbox.Event),
		notifications:  make(map[uuid.UUID]*notification.Notification),
	}
}

// Create persists a new transaction with its creation event.
func (s *Store) Create(_ context.Context, t *domain.Transaction, event *outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[t.ID]; exists {
		return domain.ErrInternalConsistency
	}

	clone := cloneTransaction(t)
	s.transactions[t.ID] = clone
	s.order = append(s.order, t.ID)

	for _, m := range clone.Milestones {
		s.milestoneOwner[m.ID] = t.ID
	}

	s.appendOutboxLocked(event)

	return nil
}

// Get returns a copy of the transaction.
func (s *Store) Get(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transactions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return cloneTransaction(t), nil
}

// GetByMilestone resolves the owning transaction of a milestone.
func (s *Store) GetByMilestone(_ context.Context, milestoneID uuid.UUID) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ownerID, ok := s.milestoneOwner[milestoneID]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return cloneTransaction(s.transactions[ownerID]), nil
}

// ListByParty returns transactions where the party is buyer or seller,
// newest first.
func (s *Store) ListByParty(_ context.Context, partyID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Transaction

	for i := len(s.order) - 1; i >= 0; i-- {
		t := s.transactions[s.order[i]]
		if t.BuyerID == partyID || t.SellerID == partyID {
			out = append(out, cloneTransaction(t))
		}
	}

	return out, nil
}

// ListAll returns every transaction, newest first.
func (s *Store) ListAll(_ context.Context) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Transaction, 0, len(s.order))

	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, cloneTransaction(s.transactions[s.order[i]]))
	}

	return out, nil
}

// SaveTransition overwrites the transaction state and appends the event
// atomically.
func (s *Store) SaveTransition(_ context.Context, t *domain.Transaction, event *outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[t.ID]; !exists {
		return domain.ErrNotFound
	}

	s.transactions[t.ID] = cloneTransaction(t)
	s.appendOutboxLocked(event)

	return nil
}

func (s *Store) appendOutboxLocked(event *outbox.Event) {
	if event == nil {
		return
	}

	row := *event
	s.outboxRows[event.ID] = &row
	s.outboxOrder = append(s.outboxOrder, event.ID)
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	clone := *t
	clone.Milestones = make([]*domain.Milestone, len(t.Milestones))

	for i, m := range t.Milestones {
		mc := *m
		clone.Milestones[i] = &mc
	}

	return &clone
}

// ---------------------------------------------------------------------------
// outbox.Repository
// ---------------------------------------------------------------------------

// ListPending returns pending events in append order.
func (s *Store) ListPending(_ context.Context, limit int) ([]*outbox.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*outbox.Event

	for _, id := range s.outboxOrder {
		if len(out) >= limit {
			break
		}

		if e := s.outboxRows[id]; e.Status == outbox.StatusPending {
			row := *e
			out = append(out, &row)
		}
	}

	return out, nil
}

// MarkPublished flips one event to PUBLISHED.
func (s *Store) MarkPublished(_ context.Context, id uuid.UUID, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.outboxRows[id]
	if !ok {
		return domain.ErrNotFound
	}

	e.Status = outbox.StatusPublished
	e.PublishedAt = &publishedAt
	e.UpdatedAt = publishedAt

	return nil
}

// MarkFailed records a delivery failure.
func (s *Store) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.outboxRows[id]
	if !ok {
		return domain.ErrNotFound
	}

	e.Attempts++
	e.Status = outbox.StatusFailed
	e.LastError = errMsg
	e.UpdatedAt = time.Now().UTC()

	return nil
}

// ResetForRetry flips rested FAILED events back to PENDING.
func (s *Store) ResetForRetry(_ context.Context, limit int, failedBefore time.Time, maxAttempts int) ([]*outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*outbox.Event

	for _, id := range s.outboxOrder {
		if len(out) >= limit {
			break
		}

		e := s.outboxRows[id]
		if e.Status == outbox.StatusFailed && e.Attempts < maxAttempts && e.UpdatedAt.Before(failedBefore) {
			e.Status = outbox.StatusPending

			row := *e
			out = append(out, &row)
		}
	}

	return out, nil
}

// ---------------------------------------------------------------------------
// notification.Repository
// ---------------------------------------------------------------------------

// Notifications returns the notification.Repository view of the store.
func (s *Store) Notifications() notification.Repository {
	return &notificationView{store: s}
}

type notificationView struct {
	store *Store
}

func (v *notificationView) Create(ctx context.Context, n *notification.Notification) error {
	return v.store.CreateNotification(ctx, n)
}

func (v *notificationView) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*notification.Notification, error) {
	return v.store.ListByRecipient(ctx, recipientID, limit)
}

func (v *notificationView) MarkRead(ctx context.Context, id uuid.UUID, recipientID string) error {
	return v.store.MarkRead(ctx, id, recipientID)
}

func (v *notificationView) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	return v.store.MarkAllRead(ctx, recipientID)
}

func (v *notificationView) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return v.store.UnreadCount(ctx, recipientID)
}

// CreateNotification is idempotent on the notification id.
func (s *Store) CreateNotification(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notifications[n.ID]; exists {
		return nil
	}

	row := *n
	s.notifications[n.ID] = &row
	s.notifOrder = append(s.notifOrder, n.ID)

	return nil
}

// ListByRecipient returns the recipient's notifications, newest first.
func (s *Store) ListByRecipient(_ context.Context, recipientID string, limit int) ([]*notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*notification.Notification

	for i := len(s.notifOrder) - 1; i >= 0; i-- {
		if len(out) >= limit {
			break
		}

		if n := s.notifications[s.notifOrder[i]]; n.RecipientID == recipientID {
			row := *n
			out = append(out, &row)
		}
	}

	return out, nil
}

// MarkRead flips one notification owned by the recipient.
func (s *Store) MarkRead(_ context.Context, id uuid.UUID, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return domain.ErrNotFound
	}

	n.IsRead = true

	return nil
}

// MarkAllRead flips every unread notification for the recipient.
func (s *Store) MarkAllRead(_ context.Context, recipientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0

	for _, n := range s.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			n.IsRead = true
			updated++
		}
	}

	return updated, nil
}

// UnreadCount counts unread notifications for the recipient.
func (s *Store) UnreadCount(_ context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0

	for _, n := range s.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}

	return count, nil
}
