package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/morebnyemba/smart-contracts-escrow/internal/application"
	"github.com/morebnyemba/smart-contracts-escrow/internal/domain"
	"github.com/morebnyemba/smart-contracts-escrow/internal/notification"
	"github.com/morebnyemba/smart-contracts-escrow/internal/outbox"
)

// Store is the postgres-backed repository set.
type Store struct {
	db *sql.DB
}

var (
	_ application.Repository = (*Store)(nil)
	_ outbox.Repository      = (*Store)(nil)
)

// NewStore creates a Store on an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const transactionColumns = `id, title, description, buyer_id, seller_id, total_value, held, released, refunded, created_at, updated_at`

const milestoneColumns = `id, transaction_id, title, description, value, status, submission_details, revision_reason, position, created_at, updated_at`

// Create persists a new transaction, its milestones and the creation event in
// one database transaction.
func (s *Store) Create(ctx context.Context, t *domain.Transaction, event *outbox.Event) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (`+transactionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			t.ID, t.Title, t.Description, t.BuyerID, t.SellerID, t.TotalValue,
			t.Ledger.Held, t.Ledger.Released, t.Ledger.Refunded, t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		for _, m := range t.Milestones {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO milestones (`+milestoneColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				m.ID, m.TransactionID, m.Title, m.Description, m.Value, m.Status,
				m.SubmissionDetails, m.RevisionReason, m.Position, m.CreatedAt, m.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert milestone: %w", err)
			}
		}

		return insertOutboxEvent(ctx, tx, event)
	})
}

// Get loads one transaction with its milestones.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return getTransaction(ctx, s.db, id)
}

// GetByMilestone resolves the owning transaction of a milestone.
func (s *Store) GetByMilestone(ctx context.Context, milestoneID uuid.UUID) (*domain.Transaction, error) {
	var transactionID uuid.UUID

	err := s.db.QueryRowContext(ctx,
		`SELECT transaction_id FROM milestones WHERE id = $1`, milestoneID,
	).Scan(&transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("resolve milestone owner: %w", err)
	}

	return getTransaction(ctx, s.db, transactionID)
}

// ListByParty returns transactions where the party is buyer or seller,
// newest first.
func (s *Store) ListByParty(ctx context.Context, partyID string) ([]*domain.Transaction, error) {
	return s.list(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC, id`, partyID)
}

// ListAll returns every transaction, newest first.
func (s *Store) ListAll(ctx context.Context) ([]*domain.Transaction, error) {
	return s.list(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		ORDER BY created_at DESC, id`)
}

// SaveTransition overwrites the transaction state and appends the event in
// one database transaction.
func (s *Store) SaveTransition(ctx context.Context, t *domain.Transaction, event *outbox.Event) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE transactions
			SET held = $2, released = $3, refunded = $4, updated_at = $5
			WHERE id = $1`,
			t.ID, t.Ledger.Held, t.Ledger.Released, t.Ledger.Refunded, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}

		if affected == 0 {
			return domain.ErrNotFound
		}

		for _, m := range t.Milestones {
			_, err := tx.ExecContext(ctx, `
				UPDATE milestones
				SET status = $2, submission_details = $3, revision_reason = $4, updated_at = $5
				WHERE id = $1`,
				m.ID, m.Status, m.SubmissionDetails, m.RevisionReason, m.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("update milestone: %w", err)
			}
		}

		return insertOutboxEvent(ctx, tx, event)
	})
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rollbackErr))
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	defer rows.Close()

	var out []*domain.Transaction

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	if err := attachMilestones(ctx, s.db, out); err != nil {
		return nil, err
	}

	return out, nil
}

func getTransaction(ctx context.Context, q querier, id uuid.UUID) (*domain.Transaction, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)

	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	if err := attachMilestones(ctx, q, []*domain.Transaction{t}); err != nil {
		return nil, err
	}

	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*domain.Transaction, error) {
	var t domain.Transaction

	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.BuyerID, &t.SellerID, &t.TotalValue,
		&t.Ledger.Held, &t.Ledger.Released, &t.Ledger.Refunded, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	return &t, nil
}

// attachMilestones loads the milestones for every transaction in one query.
func attachMilestones(ctx context.Context, q querier, transactions []*domain.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.Transaction, len(transactions))
	placeholders := make([]string, 0, len(transactions))
	args := make([]any, 0, len(transactions))

	for i, t := range transactions {
		byID[t.ID] = t
		placeholders = append(placeholders, "$"+strconv.Itoa(i+1))
		args = append(args, t.ID)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+milestoneColumns+` FROM milestones
		WHERE transaction_id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY transaction_id, position`, args...)
	if err != nil {
		return fmt.Errorf("list milestones: %w", err)
	}

	defer rows.Close()

	for rows.Next() {
		var m domain.Milestone

		err := rows.Scan(
			&m.ID, &m.TransactionID, &m.Title, &m.Description, &m.Value, &m.Status,
			&m.SubmissionDetails, &m.RevisionReason, &m.Position, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("scan milestone: %w", err)
		}

		owner, ok := byID[m.TransactionID]
		if !ok {
			return fmt.Errorf("milestone %s has unknown transaction %s: %w",
				m.ID, m.TransactionID, domain.ErrInternalConsistency)
		}

		owner.Milestones = append(owner.Milestones, &m)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("list milestones: %w", err)
	}

	return nil
}

// ---------------------------------------------------------------------------
// outbox.Repository
// ---------------------------------------------------------------------------

const outboxColumns = `id, event_type, aggregate_id, payload, status, attempts, published_at, last_error, created_at, updated_at`

func insertOutboxEvent(ctx context.Context, q querier, event *outbox.Event) error {
	if event == nil {
		return nil
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO outbox_events (`+outboxColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.EventType, event.AggregateID, event.Payload, event.Status,
		event.Attempts, event.PublishedAt, event.LastError, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return nil
}

// ListPending returns pending events oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]*outbox.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+outboxColumns+` FROM outbox_events
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2`, outbox.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}

	defer rows.Close()

	return scanOutboxEvents(rows)
}

// MarkPublished flips one event to PUBLISHED.
func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = $2, published_at = $3, updated_at = $3
		WHERE id = $1`,
		id, outbox.StatusPublished, publishedAt,
	)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}

	return requireAffected(res)
}

// MarkFailed records a delivery failure.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET status = $2, attempts = attempts + 1, last_error = $3, updated_at = $4
		WHERE id = $1`,
		id, outbox.StatusFailed, errMsg, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}

	return requireAffected(res)
}

// ResetForRetry flips rested FAILED events back to PENDING and returns them.
func (s *Store) ResetForRetry(ctx context.Context, limit int, failedBefore time.Time, maxAttempts int) ([]*outbox.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE outbox_events
		SET status = $1
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = $2 AND attempts < $3 AND updated_at < $4
			ORDER BY created_at, id
			LIMIT $5
		)
		RETURNING `+outboxColumns,
		outbox.StatusPending, outbox.StatusFailed, maxAttempts, failedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("reset events for retry: %w", err)
	}

	defer rows.Close()

	return scanOutboxEvents(rows)
}

func scanOutboxEvents(rows *sql.Rows) ([]*outbox.Event, error) {
	var out []*outbox.Event

	for rows.Next() {
		var e outbox.Event

		err := rows.Scan(
			&e.ID, &e.EventType, &e.AggregateID, &e.Payload, &e.Status,
			&e.Attempts, &e.PublishedAt, &e.LastError, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}

		out = append(out, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan outbox events: %w", err)
	}

	return out, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// ---------------------------------------------------------------------------
// notification.Repository
// ---------------------------------------------------------------------------

// Notifications returns the notification.Repository view of the store.
func (s *Store) Notifications() notification.Repository {
	return &notificationStore{db: s.db}
}

type notificationStore struct {
	db *sql.DB
}

// Create inserts one notification row; replays of the same id are no-ops.
func (ns *notificationStore) Create(ctx context.Context, n *notification.Notification) error {
	_, err := ns.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, type, message, transaction_id, milestone_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.RecipientID, n.Type, n.Message, n.TransactionID, n.MilestoneID, n.IsRead, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

// ListByRecipient returns the recipient's notifications, newest first.
func (ns *notificationStore) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*notification.Notification, error) {
	rows, err := ns.db.QueryContext(ctx, `
		SELECT id, recipient_id, type, message, transaction_id, milestone_id, is_read, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	defer rows.Close()

	var out []*notification.Notification

	for rows.Next() {
		var n notification.Notification

		err := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Message,
			&n.TransactionID, &n.MilestoneID, &n.IsRead, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}

		out = append(out, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	return out, nil
}

// MarkRead flips one notification owned by the recipient.
func (ns *notificationStore) MarkRead(ctx context.Context, id uuid.UUID, recipientID string) error {
	res, err := ns.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}

	return requireAffected(res)
}

// MarkAllRead flips every unread notification for the recipient.
func (ns *notificationStore) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	res, err := ns.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE recipient_id = $1 AND NOT is_read`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return int(affected), nil
}

// UnreadCount counts unread notifications for the recipient.
func (ns *notificationStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var count int

	err := ns.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND NOT is_read`, recipientID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}

	return count, nil
}
