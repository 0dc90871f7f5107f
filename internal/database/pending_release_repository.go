package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tripnest/booking-backend/internal/models"
)

const pendingReleaseColumns = `id, departure_id, seats, booking_id, reason, status, attempts,
	last_error, next_attempt_at, claimed_at, created_at, updated_at`

// PendingReleaseRepository is the durable queue of compensating seat releases
type PendingReleaseRepository struct {
	db DB
}

// NewPendingReleaseRepository creates a new PendingReleaseRepository
func NewPendingReleaseRepository(db DB) *PendingReleaseRepository {
	return &PendingReleaseRepository{db: db}
}

// Enqueue stores a release to be retried by the release worker
func (r *PendingReleaseRepository) Enqueue(ctx context.Context, pr *models.PendingRelease) error {
	if pr.ID == "" {
		pr.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	pr.CreatedAt, pr.UpdatedAt = now, now
	if pr.Status == "" {
		pr.Status = models.PendingReleaseStatusPending
	}
	if pr.NextAttemptAt.IsZero() {
		pr.NextAttemptAt = now
	}

	query := `
		INSERT INTO pending_releases (` + pendingReleaseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		pr.ID, pr.DepartureID, pr.Seats, pr.BookingID, pr.Reason, pr.Status, pr.Attempts,
		pr.LastError, pr.NextAttemptAt, pr.ClaimedAt, pr.CreatedAt, pr.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue pending release: %w", err)
	}
	return nil
}

// ClaimDue atomically claims up to limit due items. Rows locked by another
// worker are skipped, so concurrent instances never claim the same item.
func (r *PendingReleaseRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.PendingRelease, error) {
	items := []*models.PendingRelease{}
	query := `
		UPDATE pending_releases
		SET status = 'claimed', claimed_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM pending_releases
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + pendingReleaseColumns

	if err := r.db.SelectContext(ctx, &items, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to claim pending releases: %w", err)
	}
	return items, nil
}

// MarkDone records a successful release
func (r *PendingReleaseRepository) MarkDone(ctx context.Context, id string) error {
	return r.exec(ctx, "mark pending release done", `
		UPDATE pending_releases
		SET status = 'done', updated_at = NOW()
		WHERE id = $1 AND status = 'claimed'`, id)
}

// Reschedule returns a claimed item to the queue after a failed attempt
func (r *PendingReleaseRepository) Reschedule(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error {
	return r.exec(ctx, "reschedule pending release", `
		UPDATE pending_releases
		SET status = 'pending', attempts = $2, last_error = $3, next_attempt_at = $4,
			claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'claimed'`, id, attempts, lastErr, next)
}

// MarkManualReview parks an item for an operator
func (r *PendingReleaseRepository) MarkManualReview(ctx context.Context, id string, attempts int, lastErr string) error {
	return r.exec(ctx, "flag pending release for review", `
		UPDATE pending_releases
		SET status = 'manual_review', attempts = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1`, id, attempts, lastErr)
}

// FlagStaleClaims parks items claimed before cutoff whose outcome is unknown
func (r *PendingReleaseRepository) FlagStaleClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE pending_releases
		SET status = 'manual_review',
			last_error = COALESCE(last_error, 'claim expired before completion'),
			updated_at = NOW()
		WHERE status = 'claimed' AND claimed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to flag stale pending releases: %w", err)
	}
	return result.RowsAffected()
}

// ListByStatus returns queue items in a status, oldest first
func (r *PendingReleaseRepository) ListByStatus(ctx context.Context, status models.PendingReleaseStatus, limit int) ([]*models.PendingRelease, error) {
	items := []*models.PendingRelease{}
	query := `SELECT ` + pendingReleaseColumns + `
		FROM pending_releases
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &items, query, status, limit); err != nil {
		return nil, fmt.Errorf("failed to list pending releases: %w", err)
	}
	return items, nil
}

func (r *PendingReleaseRepository) exec(ctx context.Context, what, query string, args ...interface{}) error {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	return nil
}
