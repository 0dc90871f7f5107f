package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tripnest/booking-backend/internal/models"
)

// BookingAuditRepository appends and reads booking audit entries
type BookingAuditRepository struct {
	db DB
}

// NewBookingAuditRepository creates a new booking audit repository
func NewBookingAuditRepository(db DB) *BookingAuditRepository {
	return &BookingAuditRepository{db: db}
}

// Log appends an audit entry
func (r *BookingAuditRepository) Log(ctx context.Context, audit *models.BookingAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO booking_audits (
			id, booking_id, event, source, actor_id, replayed,
			payment_status, booking_status, refund_status, vendor_payout_status,
			ip_address, device_type, platform, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.BookingID, audit.Event, audit.Source, audit.ActorID, audit.Replayed,
		audit.PaymentStatus, audit.BookingStatus, audit.RefundStatus, audit.VendorPayoutStatus,
		audit.IPAddress, audit.DeviceType, audit.Platform, audit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to log booking audit: %w", err)
	}
	return nil
}

// ListByBooking returns a booking's audit trail in order
func (r *BookingAuditRepository) ListByBooking(ctx context.Context, bookingID string) ([]*models.BookingAudit, error) {
	entries := []*models.BookingAudit{}
	query := `
		SELECT id, booking_id, event, source, actor_id, replayed,
			payment_status, booking_status, refund_status, vendor_payout_status,
			ip_address, device_type, platform, created_at
		FROM booking_audits
		WHERE booking_id = $1
		ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &entries, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list booking audits: %w", err)
	}
	return entries, nil
}
