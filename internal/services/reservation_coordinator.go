package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tripnest/booking-backend/internal/models"
	"github.com/tripnest/booking-backend/pkg/events"
)

// ReservationCoordinatorConfig holds configuration for the coordinator
type ReservationCoordinatorConfig struct {
	VendorCutFallback float64       // vendor share when a plan has none (default 85)
	PublishTimeout    time.Duration // upper bound for a best-effort event publish
	Retry             RetryPolicy
}

// DefaultReservationCoordinatorConfig returns default configuration
func DefaultReservationCoordinatorConfig() ReservationCoordinatorConfig {
	return ReservationCoordinatorConfig{
		VendorCutFallback: models.DefaultVendorCut,
		PublishTimeout:    5 * time.Second,
		Retry:             DefaultRetryPolicy(),
	}
}

// ReservationCoordinator ties bookings to seat inventory. It creates bookings
// against reserved seats, compensates failed creations and delivers the seat
// releases that lifecycle transitions owe.
type ReservationCoordinator struct {
	ledger    *InventoryLedger
	lifecycle *BookingLifecycleService
	bookings  BookingStore
	plans     PlanStore
	releases  ReleaseQueue
	audits    AuditLog
	publisher events.Publisher
	config    ReservationCoordinatorConfig
	now       func() time.Time
	logger    *logrus.Logger
}

// NewReservationCoordinator creates a new coordinator
func NewReservationCoordinator(
	ledger *InventoryLedger,
	lifecycle *BookingLifecycleService,
	bookings BookingStore,
	plans PlanStore,
	releases ReleaseQueue,
	audits AuditLog,
	publisher events.Publisher,
	config ReservationCoordinatorConfig,
	logger *logrus.Logger,
) *ReservationCoordinator {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &ReservationCoordinator{
		ledger:    ledger,
		lifecycle: lifecycle,
		bookings:  bookings,
		plans:     plans,
		releases:  releases,
		audits:    audits,
		publisher: publisher,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// ============================================================================
// SEATS
// ============================================================================

// ReserveSeats holds seats on a departure without creating a booking
func (c *ReservationCoordinator) ReserveSeats(ctx context.Context, departureID string, seats int) (*models.Departure, error) {
	return c.ledger.Reserve(ctx, departureID, seats)
}

// ReleaseSeats returns seats to a departure
func (c *ReservationCoordinator) ReleaseSeats(ctx context.Context, departureID string, seats int) (*models.Departure, error) {
	return c.ledger.Release(ctx, departureID, seats)
}

// ============================================================================
// CREATE BOOKING
// ============================================================================

// CreateBooking reserves seats and records a booking for them. If the booking
// cannot be stored the seats are released again; a release that fails too is
// queued for the release worker and the storage error is returned.
func (c *ReservationCoordinator) CreateBooking(
	ctx context.Context,
	userID string,
	req *models.CreateBookingRequest,
	actx models.AuditContext,
) (*models.Booking, error) {
	// 1. Validate request
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	// 2. Resolve departure and plan
	departure, err := c.ledger.Get(ctx, req.DepartureID)
	if err != nil {
		return nil, err
	}
	if departure.Status.IsTerminal() {
		return nil, ErrDepartureClosed
	}

	plan, err := withRetry(ctx, c.config.Retry, func() (*models.Plan, error) {
		return c.plans.GetByID(ctx, departure.PlanID)
	})
	if err != nil {
		return nil, err
	}
	if plan == nil || !plan.IsActive {
		return nil, ErrPlanUnavailable
	}

	// 3. Hold the seats
	reserved, err := c.ledger.Reserve(ctx, departure.ID, req.NumPeople)
	if err != nil {
		return nil, err
	}

	// 4. Record the booking, compensating on failure
	booking := NewBooking(reserved, plan, userID, req.NumPeople, req.Amount, c.config.VendorCutFallback, c.now())

	_, err = withRetry(ctx, c.config.Retry, func() (struct{}, error) {
		return struct{}{}, c.bookings.Create(ctx, booking)
	})
	if err != nil {
		c.compensate(ctx, reserved.ID, req.NumPeople, booking.ID, err)
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"departure_id": booking.DepartureID,
		"user_id":      userID,
		"num_people":   booking.NumPeople,
		"total_amount": booking.TotalAmount,
	}).Info("Booking created")

	// 5. Best-effort side effects
	c.publish(ctx, events.TypeBookingCreated, booking, models.EventCreated)
	c.audit(ctx, booking, models.EventCreated, false, actx)

	return booking, nil
}

// compensate gives back seats reserved for a booking that was never stored.
// It runs detached from ctx so a cancelled caller cannot strand the seats.
func (c *ReservationCoordinator) compensate(ctx context.Context, departureID string, seats int, bookingID string, cause error) {
	bg := context.WithoutCancel(ctx)
	log := c.logger.WithFields(logrus.Fields{
		"departure_id": departureID,
		"seats":        seats,
		"booking_id":   bookingID,
		"cause":        cause.Error(),
	})

	_, err := c.ledger.Release(bg, departureID, seats)
	if err == nil {
		log.Warn("Booking insert failed, seats released")
		return
	}

	pr := &models.PendingRelease{
		DepartureID: departureID,
		Seats:       seats,
		BookingID:   &bookingID,
		Reason:      fmt.Sprintf("booking insert failed: %v", cause),
		Status:      models.PendingReleaseStatusPending,
	}
	if !releaseNotApplied(err) {
		pr.Status = models.PendingReleaseStatusManualReview
	}
	msg := err.Error()
	pr.LastError = &msg

	if _, qerr := withRetry(bg, c.config.Retry, func() (struct{}, error) {
		return struct{}{}, c.releases.Enqueue(bg, pr)
	}); qerr != nil {
		log.WithFields(logrus.Fields{
			"release_error": msg,
			"queue_error":   qerr.Error(),
		}).Error("Seats leaked: compensation failed and could not be queued")
		return
	}

	log.WithFields(logrus.Fields{
		"pending_release_id": pr.ID,
		"status":             pr.Status,
		"release_error":      msg,
	}).Warn("Compensating release queued")
}

// ============================================================================
// LIFECYCLE EVENTS
// ============================================================================

// ApplyBookingEvent applies a lifecycle trigger to a booking. When the booking
// owes its seats back, the release is delivered before returning; a release
// that cannot be delivered now is left for the release worker and does not
// fail the event.
func (c *ReservationCoordinator) ApplyBookingEvent(
	ctx context.Context,
	bookingID string,
	event models.BookingEvent,
	payload models.EventPayload,
	actx models.AuditContext,
) (*models.Booking, error) {
	if !event.IsValid() {
		return nil, invalidTransition(event, "unknown event")
	}

	result, err := c.lifecycle.Apply(ctx, bookingID, event, payload)
	if err != nil {
		return nil, err
	}
	booking := result.Booking

	// A replay still retries a release left pending by an earlier attempt
	if booking.ReleaseState == models.ReleaseStatePending {
		if state, err := c.DeliverRelease(ctx, booking); err == nil && state != "" {
			booking.ReleaseState = state
		}
	}

	if !result.Replayed {
		c.publish(ctx, events.TypeBookingUpdated, booking, event)
	}
	c.audit(ctx, booking, event, result.Replayed, actx)

	return booking, nil
}

// DeliverRelease hands a booking's owed seats back to the ledger exactly once.
// The booking is claimed with a conditional pending -> claimed write, so only
// one caller reaches the ledger. It returns the resulting release state, or ""
// when another caller holds the claim.
//
// Outcomes:
//
//	released                        -> done
//	ledger rejected (floor, missing) -> manual_review
//	not applied (storage, races)     -> pending, retried by the worker
//	anything else                    -> manual_review
func (c *ReservationCoordinator) DeliverRelease(ctx context.Context, booking *models.Booking) (models.ReleaseState, error) {
	// The booking already committed the debt; finish it regardless of the caller
	bg := context.WithoutCancel(ctx)
	log := c.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"departure_id": booking.DepartureID,
		"seats":        booking.NumPeople,
	})

	claimed, err := c.transitionRelease(bg, booking.ID, models.ReleaseStatePending, models.ReleaseStateClaimed)
	if err != nil {
		log.WithError(err).Warn("Failed to claim seat release")
		return models.ReleaseStatePending, err
	}
	if !claimed {
		return "", nil
	}

	_, relErr := c.ledger.Release(bg, booking.DepartureID, booking.NumPeople)

	var next models.ReleaseState
	switch {
	case relErr == nil:
		next = models.ReleaseStateDone
	case releaseNotApplied(relErr):
		next = models.ReleaseStatePending
	default:
		next = models.ReleaseStateManualReview
	}

	moved, err := c.transitionRelease(bg, booking.ID, models.ReleaseStateClaimed, next)
	if err != nil {
		// Left claimed; the stale claim sweep escalates it
		log.WithError(err).WithField("next_state", next).Error("Failed to record seat release outcome")
		return models.ReleaseStateClaimed, err
	}
	if !moved {
		// Only the stale claim sweep takes a claim away, and it parks the booking for review
		log.WithError(relErr).WithFields(logrus.Fields{
			"next_state":     next,
			"seats_released": relErr == nil,
		}).Error("Seat release outcome not recorded, claim was escalated before it finished")
		return models.ReleaseStateManualReview, errReleaseClaimLost
	}

	switch next {
	case models.ReleaseStateDone:
		log.Info("Seats released")
		c.publish(bg, events.TypeSeatsReleased, booking, "")
	case models.ReleaseStatePending:
		log.WithError(relErr).Warn("Seat release deferred to worker")
	case models.ReleaseStateManualReview:
		log.WithError(relErr).Error("Seat release needs manual review")
		c.publish(bg, events.TypeReleaseEscalate, booking, "")
	}

	return next, relErr
}

// EscalateRelease parks a pending booking release for manual review. It
// returns false when the booking is no longer pending.
func (c *ReservationCoordinator) EscalateRelease(ctx context.Context, booking *models.Booking, reason string) (bool, error) {
	moved, err := c.transitionRelease(ctx, booking.ID, models.ReleaseStatePending, models.ReleaseStateManualReview)
	if err != nil || !moved {
		return false, err
	}

	c.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"departure_id": booking.DepartureID,
		"seats":        booking.NumPeople,
		"attempts":     booking.ReleaseAttempts,
		"reason":       reason,
	}).Error("Seat release needs manual review")
	c.publish(ctx, events.TypeReleaseEscalate, booking, "")
	return true, nil
}

// releaseNotApplied reports whether a failed ledger release is known to have
// left the departure untouched, which makes it safe to try again
func releaseNotApplied(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrConcurrencyExhausted)
}

func (c *ReservationCoordinator) transitionRelease(ctx context.Context, bookingID string, from, to models.ReleaseState) (bool, error) {
	return withRetry(ctx, c.config.Retry, func() (bool, error) {
		return c.bookings.TransitionRelease(ctx, bookingID, from, to)
	})
}

// ============================================================================
// QUERIES
// ============================================================================

// GetBooking returns a booking or ErrBookingNotFound
func (c *ReservationCoordinator) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	return c.lifecycle.Get(ctx, bookingID)
}

// ListUserBookings returns a user's bookings, newest first
func (c *ReservationCoordinator) ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]*models.Booking, error) {
	return withRetry(ctx, c.config.Retry, func() ([]*models.Booking, error) {
		return c.bookings.ListByUser(ctx, userID, limit, offset)
	})
}

// ListVendorBookings returns bookings on a vendor's plans, newest first
func (c *ReservationCoordinator) ListVendorBookings(ctx context.Context, vendorID string, limit, offset int) ([]*models.Booking, error) {
	return withRetry(ctx, c.config.Retry, func() ([]*models.Booking, error) {
		return c.bookings.ListByVendor(ctx, vendorID, limit, offset)
	})
}

// BookingHistory returns the audit trail of a booking
func (c *ReservationCoordinator) BookingHistory(ctx context.Context, bookingID string) ([]*models.BookingAudit, error) {
	return withRetry(ctx, c.config.Retry, func() ([]*models.BookingAudit, error) {
		return c.audits.ListByBooking(ctx, bookingID)
	})
}

// ============================================================================
// SIDE EFFECTS
// ============================================================================

func (c *ReservationCoordinator) publish(ctx context.Context, eventType string, booking *models.Booking, trigger models.BookingEvent) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.PublishTimeout)
	defer cancel()

	err := c.publisher.Publish(pctx, events.Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		BookingID:   booking.ID,
		DepartureID: booking.DepartureID,
		Trigger:     string(trigger),
		OccurredAt:  c.now(),
		Data:        booking,
	})
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"type":       eventType,
		}).Warn("Failed to publish booking event")
	}
}

func (c *ReservationCoordinator) audit(ctx context.Context, booking *models.Booking, event models.BookingEvent, replayed bool, actx models.AuditContext) {
	if c.audits == nil {
		return
	}
	entry := models.NewBookingAudit(booking, event, replayed, actx)
	if err := c.audits.Log(context.WithoutCancel(ctx), entry); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"event":      event,
		}).Warn("Failed to write booking audit")
	}
}
