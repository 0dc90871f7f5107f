package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tripnest/booking-backend/internal/models"
)

const bookingColumns = `id, departure_id, plan_id, user_id, vendor_id, trip_date, num_people,
	total_amount, platform_cut, refund_amount, vendor_payout_amount,
	payment_status, booking_status, refund_status, vendor_payout_status,
	payment_reference, refund_reference, payout_reference,
	seats_released, release_state, release_claimed_at, release_attempts,
	refunded_at, paid_out_at, version, created_at, updated_at`

// BookingRepository handles database operations for the bookings table
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// ============================================================================
// WRITES
// ============================================================================

// Create inserts a new booking
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18,
			$19, $20, $21, $22,
			$23, $24, $25, $26, $27
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.DepartureID, b.PlanID, b.UserID, b.VendorID, b.TripDate, b.NumPeople,
		b.TotalAmount, b.PlatformCut, b.RefundAmount, b.VendorPayoutAmount,
		b.PaymentStatus, b.BookingStatus, b.RefundStatus, b.VendorPayoutStatus,
		b.PaymentReference, b.RefundReference, b.PayoutReference,
		b.SeatsReleased, b.ReleaseState, b.ReleaseClaimedAt, b.ReleaseAttempts,
		b.RefundedAt, b.PaidOutAt, b.Version, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// Update writes the lifecycle fields of b only if the stored version still
// equals expectedVersion. On success b.Version is advanced.
func (r *BookingRepository) Update(ctx context.Context, b *models.Booking, expectedVersion int64) (bool, error) {
	query := `
		UPDATE bookings
		SET payment_status = $3,
			booking_status = $4,
			refund_status = $5,
			vendor_payout_status = $6,
			refund_amount = $7,
			payment_reference = $8,
			refund_reference = $9,
			payout_reference = $10,
			seats_released = $11,
			release_state = $12,
			release_claimed_at = $13,
			refunded_at = $14,
			paid_out_at = $15,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		b.ID, expectedVersion,
		b.PaymentStatus, b.BookingStatus, b.RefundStatus, b.VendorPayoutStatus,
		b.RefundAmount, b.PaymentReference, b.RefundReference, b.PayoutReference,
		b.SeatsReleased, b.ReleaseState, b.ReleaseClaimedAt,
		b.RefundedAt, b.PaidOutAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update booking: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	b.Version = expectedVersion + 1
	b.UpdatedAt = time.Now().UTC()
	return true, nil
}

// TransitionRelease moves release_state from one value to another if the
// booking is still in from. Entering the claimed state stamps release_claimed_at;
// handing a claim back to pending counts a failed delivery in release_attempts.
func (r *BookingRepository) TransitionRelease(ctx context.Context, id string, from, to models.ReleaseState) (bool, error) {
	query := `
		UPDATE bookings
		SET release_state = $3,
			release_claimed_at = CASE WHEN $3 = 'claimed' THEN NOW() ELSE release_claimed_at END,
			release_attempts = release_attempts + CASE WHEN $2 = 'claimed' AND $3 = 'pending' THEN 1 ELSE 0 END,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND release_state = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to transition release state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows == 1, nil
}

// ============================================================================
// READS
// ============================================================================

// GetByID retrieves a booking. Returns nil, nil when it does not exist.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	err := r.db.GetContext(ctx, &b, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// ListByUser returns a user's bookings, newest first (idx_bookings_user_id)
func (r *BookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Booking, error) {
	return r.list(ctx, "list bookings for user", `
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
}

// ListByVendor returns bookings on a vendor's plans, newest first (idx_bookings_vendor_id)
func (r *BookingRepository) ListByVendor(ctx context.Context, vendorID string, limit, offset int) ([]*models.Booking, error) {
	return r.list(ctx, "list bookings for vendor", `
		WHERE vendor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, vendorID, limit, offset)
}

// ListByDeparture returns every booking on a departure (idx_bookings_departure_id)
func (r *BookingRepository) ListByDeparture(ctx context.Context, departureID string) ([]*models.Booking, error) {
	return r.list(ctx, "list bookings for departure", `
		WHERE departure_id = $1
		ORDER BY created_at`, departureID)
}

// ListByReleaseState returns bookings whose seat release is in state
func (r *BookingRepository) ListByReleaseState(ctx context.Context, state models.ReleaseState, limit int) ([]*models.Booking, error) {
	return r.list(ctx, "list bookings by release state", `
		WHERE release_state = $1
		ORDER BY updated_at
		LIMIT $2`, state, limit)
}

// ListStaleReleaseClaims returns bookings claimed for release before cutoff
func (r *BookingRepository) ListStaleReleaseClaims(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error) {
	return r.list(ctx, "list stale release claims", `
		WHERE release_state = 'claimed' AND release_claimed_at < $1
		ORDER BY release_claimed_at
		LIMIT $2`, cutoff, limit)
}

// ListDueForTripCompletion returns confirmed bookings whose trip date is before now
func (r *BookingRepository) ListDueForTripCompletion(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	return r.list(ctx, "list bookings due for trip completion", `
		WHERE booking_status = 'confirmed' AND trip_date < $1
		ORDER BY trip_date
		LIMIT $2`, now, limit)
}

// ListDueForPayout returns payout-eligible bookings whose trip date is before cutoff
func (r *BookingRepository) ListDueForPayout(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error) {
	return r.list(ctx, "list bookings due for payout", `
		WHERE payment_status = 'completed'
			AND refund_status IN ('none', 'rejected')
			AND vendor_payout_status = 'pending'
			AND trip_date < $1
		ORDER BY trip_date
		LIMIT $2`, cutoff, limit)
}

func (r *BookingRepository) list(ctx context.Context, what, where string, args ...interface{}) ([]*models.Booking, error) {
	bookings := []*models.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings ` + where

	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	return bookings, nil
}
