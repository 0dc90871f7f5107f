package services

import (
	"context"
	"time"

	"github.com/tripnest/booking-backend/internal/models"
)

// Stores are implemented by the repositories in internal/database and by the
// in-memory store. Get methods return nil, nil for a missing row.

// DepartureStore persists departures with version-conditional writes
type DepartureStore interface {
	Create(ctx context.Context, d *models.Departure) error
	GetByID(ctx context.Context, id string) (*models.Departure, error)
	CompareAndSwap(ctx context.Context, d *models.Departure, expectedVersion int64) (bool, error)
	ListByPlan(ctx context.Context, planID string) ([]*models.Departure, error)
	ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]*models.Departure, error)
}

// BookingStore persists bookings with version-conditional writes
type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	Update(ctx context.Context, b *models.Booking, expectedVersion int64) (bool, error)
	TransitionRelease(ctx context.Context, id string, from, to models.ReleaseState) (bool, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Booking, error)
	ListByVendor(ctx context.Context, vendorID string, limit, offset int) ([]*models.Booking, error)
	ListByDeparture(ctx context.Context, departureID string) ([]*models.Booking, error)
	ListByReleaseState(ctx context.Context, state models.ReleaseState, limit int) ([]*models.Booking, error)
	ListStaleReleaseClaims(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error)
	ListDueForTripCompletion(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error)
	ListDueForPayout(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error)
}

// PlanStore reads plans
type PlanStore interface {
	Create(ctx context.Context, p *models.Plan) error
	GetByID(ctx context.Context, id string) (*models.Plan, error)
}

// ReleaseQueue is the durable queue of compensating releases
type ReleaseQueue interface {
	Enqueue(ctx context.Context, pr *models.PendingRelease) error
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.PendingRelease, error)
	MarkDone(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error
	MarkManualReview(ctx context.Context, id string, attempts int, lastErr string) error
	FlagStaleClaims(ctx context.Context, cutoff time.Time) (int64, error)
	ListByStatus(ctx context.Context, status models.PendingReleaseStatus, limit int) ([]*models.PendingRelease, error)
}

// AuditLog records applied booking events
type AuditLog interface {
	Log(ctx context.Context, audit *models.BookingAudit) error
	ListByBooking(ctx context.Context, bookingID string) ([]*models.BookingAudit, error)
}
