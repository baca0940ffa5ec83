package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence operations for outbox events. Appending
// happens inside the application's storage transaction; the dispatcher only
// lists and marks.
type Repository interface {
	ListPending(ctx context.Context, limit int) ([]*Event, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
	// MarkFailed flips the event to FAILED and counts the attempt. The retry
	// ceiling is enforced when ResetForRetry picks events back up.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	// ResetForRetry returns FAILED events older than failedBefore with
	// remaining attempts, flipping them back to PENDING.
	ResetForRetry(ctx context.Context, limit int, failedBefore time.Time, maxAttempts int) ([]*Event, error)
}
