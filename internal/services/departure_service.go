package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tripnest/booking-backend/internal/models"
)

// DepartureService schedules and cancels departures of a vendor's plans.
// Seat counts and status changes go through the ledger.
type DepartureService struct {
	ledger     *InventoryLedger
	departures DepartureStore
	plans      PlanStore
	retry      RetryPolicy
	now        func() time.Time
	logger     *logrus.Logger
}

// NewDepartureService creates a new departure service
func NewDepartureService(ledger *InventoryLedger, departures DepartureStore, plans PlanStore, retry RetryPolicy, logger *logrus.Logger) *DepartureService {
	return &DepartureService{
		ledger:     ledger,
		departures: departures,
		plans:      plans,
		retry:      retry,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// ScheduleDeparture opens a departure on a plan. Vendors may only schedule
// their own plans; admins may schedule any.
func (s *DepartureService) ScheduleDeparture(ctx context.Context, vendorID string, isAdmin bool, req *models.CreateDepartureRequest) (*models.Departure, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !req.DepartureTime.After(s.now()) {
		return nil, fmt.Errorf("%w: departure_time must be in the future", ErrInvalidPayload)
	}

	plan, err := s.ownedPlan(ctx, req.PlanID, vendorID, isAdmin)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanUnavailable
	}

	d := &models.Departure{
		PlanID:         plan.ID,
		DepartureTime:  req.DepartureTime.UTC(),
		PickupLocation: req.PickupLocation,
		PickupTime:     req.PickupTime,
		TotalCapacity:  req.TotalCapacity,
		Status:         models.DepartureStatusScheduled,
	}
	if err := s.ledger.Open(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to schedule departure: %w", err)
	}
	return d, nil
}

// GetDeparture returns a departure or ErrDepartureNotFound
func (s *DepartureService) GetDeparture(ctx context.Context, departureID string) (*models.Departure, error) {
	return s.ledger.Get(ctx, departureID)
}

// ListPlanDepartures returns a plan's departures ordered by departure time
func (s *DepartureService) ListPlanDepartures(ctx context.Context, planID string) ([]*models.Departure, error) {
	return withRetry(ctx, s.retry, func() ([]*models.Departure, error) {
		return s.departures.ListByPlan(ctx, planID)
	})
}

// CancelDeparture closes a departure to new reservations. Existing bookings
// keep their seats until they are refunded.
func (s *DepartureService) CancelDeparture(ctx context.Context, departureID, vendorID string, isAdmin bool) (*models.Departure, error) {
	d, err := s.ledger.Get(ctx, departureID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedPlan(ctx, d.PlanID, vendorID, isAdmin); err != nil {
		return nil, err
	}

	cancelled, err := s.ledger.SetStatus(ctx, departureID, models.DepartureStatusCancelled)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"departure_id": departureID,
		"vendor_id":    vendorID,
		"booked_seats": cancelled.BookedSeats,
	}).Info("Departure cancelled")
	return cancelled, nil
}

func (s *DepartureService) ownedPlan(ctx context.Context, planID, vendorID string, isAdmin bool) (*models.Plan, error) {
	plan, err := withRetry(ctx, s.retry, func() (*models.Plan, error) {
		return s.plans.GetByID(ctx, planID)
	})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrPlanUnavailable
	}
	if !isAdmin && plan.VendorID != vendorID {
		return nil, ErrNotPlanOwner
	}
	return plan, nil
}
