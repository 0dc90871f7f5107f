package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/booking-backend/internal/models"
)

func TestBookingAuditRepository_Log(t *testing.T) {
	ctx := context.Background()

	t.Run("insert", func(t *testing.T) {
		db, mock := newMockDB(t)
		booking := &models.Booking{
			ID:                 "b-1",
			PaymentStatus:      models.PaymentStatusCompleted,
			BookingStatus:      models.BookingStatusConfirmed,
			RefundStatus:       models.RefundStatusNone,
			VendorPayoutStatus: models.PayoutStatusPending,
		}
		audit := models.NewBookingAudit(booking, models.EventPaymentSucceeded, false, models.AuditContext{
			Source:    models.AuditSourceWebhook,
			IPAddress: "203.0.113.7",
		})

		mock.ExpectExec(`INSERT INTO booking_audits`).
			WithArgs(audit.ID, "b-1", models.EventPaymentSucceeded, models.AuditSourceWebhook, nil, false,
				models.PaymentStatusCompleted, models.BookingStatusConfirmed, models.RefundStatusNone, models.PayoutStatusPending,
				"203.0.113.7", nil, nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewBookingAuditRepository(db).Log(ctx, audit))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil entry", func(t *testing.T) {
		db, _ := newMockDB(t)
		assert.Error(t, NewBookingAuditRepository(db).Log(ctx, nil))
	})
}

func TestBookingAuditRepository_ListByBooking(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	id := uuid.New()

	mock.ExpectQuery(`FROM booking_audits\s+WHERE booking_id = \$1\s+ORDER BY created_at`).
		WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "booking_id", "event", "source", "actor_id", "replayed",
			"payment_status", "booking_status", "refund_status", "vendor_payout_status",
			"ip_address", "device_type", "platform", "created_at",
		}).AddRow(
			id.String(), "b-1", "created", "api", "user-1", false,
			"pending", "", "none", "pending",
			"198.51.100.4", "mobile", "android", now,
		))

	entries, err := NewBookingAuditRepository(db).ListByBooking(context.Background(), "b-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, models.EventCreated, entries[0].Event)
	require.NotNil(t, entries[0].DeviceType)
	assert.Equal(t, "mobile", *entries[0].DeviceType)
}
