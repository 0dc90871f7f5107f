package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tripnest/booking-backend/internal/models"
)

// TransitionResult is the outcome of applying a trigger to a booking
type TransitionResult struct {
	Booking     *models.Booking
	Replayed    bool // booking was already in the trigger's target state; nothing changed
	ReleaseOwed bool // this transition made the booking owe its seats back to the ledger
}

// NewBooking builds a booking in its initial state. Seats must already be
// reserved on the departure.
func NewBooking(
	departure *models.Departure,
	plan *models.Plan,
	userID string,
	numPeople int,
	amount float64,
	vendorCutFallback float64,
	now time.Time,
) *models.Booking {
	platformCut, vendorPayout := models.SplitAmount(amount, plan.VendorCutPercent(vendorCutFallback))

	return &models.Booking{
		ID:                 uuid.New().String(),
		DepartureID:        departure.ID,
		PlanID:             plan.ID,
		UserID:             userID,
		VendorID:           plan.VendorID,
		TripDate:           departure.DepartureTime,
		NumPeople:          numPeople,
		TotalAmount:        models.RoundCents(amount),
		PlatformCut:        platformCut,
		VendorPayoutAmount: vendorPayout,
		PaymentStatus:      models.PaymentStatusPending,
		BookingStatus:      models.BookingStatusNone,
		RefundStatus:       models.RefundStatusNone,
		VendorPayoutStatus: models.PayoutStatusPending,
		ReleaseState:       models.ReleaseStateNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Transition applies event to a copy of booking and returns the result. The
// input booking is never modified. An illegal (state, event) pair returns an
// *InvalidTransitionError.
func Transition(booking *models.Booking, event models.BookingEvent, payload models.EventPayload, now time.Time) (*TransitionResult, error) {
	b := booking.Clone()
	replay := func() (*TransitionResult, error) {
		return &TransitionResult{Booking: b, Replayed: true}, nil
	}

	switch event {
	case models.EventPaymentSucceeded:
		if b.PaymentStatus == models.PaymentStatusCompleted {
			return replay()
		}
		if b.PaymentStatus != models.PaymentStatusPending {
			return nil, invalidTransition(event, "payment is %s", b.PaymentStatus)
		}
		b.PaymentStatus = models.PaymentStatusCompleted
		b.BookingStatus = models.BookingStatusConfirmed
		if payload.Reference != nil {
			b.PaymentReference = payload.Reference
		}

	case models.EventPaymentFailed:
		if b.PaymentStatus == models.PaymentStatusFailed {
			return replay()
		}
		if b.PaymentStatus != models.PaymentStatusPending {
			return nil, invalidTransition(event, "payment is %s", b.PaymentStatus)
		}
		b.PaymentStatus = models.PaymentStatusFailed
		if payload.Reference != nil {
			b.PaymentReference = payload.Reference
		}
		return owe(b), nil

	case models.EventRequestRefund:
		if b.RefundStatus == models.RefundStatusRequested {
			return replay()
		}
		if b.PaymentStatus != models.PaymentStatusCompleted {
			return nil, invalidTransition(event, "payment is %s", b.PaymentStatus)
		}
		if b.RefundStatus != models.RefundStatusNone {
			return nil, invalidTransition(event, "refund is %s", b.RefundStatus)
		}
		if b.BookingStatus != models.BookingStatusConfirmed {
			return nil, invalidTransition(event, "booking is %q", b.BookingStatus)
		}
		amount := b.TotalAmount
		if payload.RefundAmount != nil {
			amount = models.RoundCents(*payload.RefundAmount)
			if amount <= 0 || amount > b.TotalAmount {
				return nil, ErrInvalidPayload
			}
		}
		b.RefundStatus = models.RefundStatusRequested
		b.RefundAmount = &amount

	case models.EventBeginRefundProcessing:
		if b.RefundStatus == models.RefundStatusProcessing {
			return replay()
		}
		if b.RefundStatus != models.RefundStatusRequested {
			return nil, invalidTransition(event, "refund is %s", b.RefundStatus)
		}
		b.RefundStatus = models.RefundStatusProcessing

	case models.EventCompleteRefund:
		if b.RefundStatus == models.RefundStatusCompleted {
			return replay()
		}
		if b.RefundStatus != models.RefundStatusProcessing {
			return nil, invalidTransition(event, "refund is %s", b.RefundStatus)
		}
		b.RefundStatus = models.RefundStatusCompleted
		b.BookingStatus = models.BookingStatusCancelled
		b.RefundedAt = &now
		if payload.Reference != nil {
			b.RefundReference = payload.Reference
		}
		return owe(b), nil

	case models.EventRejectRefund:
		if b.RefundStatus == models.RefundStatusRejected {
			return replay()
		}
		if b.RefundStatus != models.RefundStatusProcessing {
			return nil, invalidTransition(event, "refund is %s", b.RefundStatus)
		}
		b.RefundStatus = models.RefundStatusRejected

	case models.EventMarkTripComplete:
		if b.BookingStatus == models.BookingStatusCompleted {
			return replay()
		}
		if b.BookingStatus != models.BookingStatusConfirmed {
			return nil, invalidTransition(event, "booking is %q", b.BookingStatus)
		}
		if !b.TripDate.Before(now) {
			return nil, invalidTransition(event, "trip date %s has not passed", b.TripDate.Format(time.RFC3339))
		}
		b.BookingStatus = models.BookingStatusCompleted

	case models.EventBeginPayout:
		if b.VendorPayoutStatus == models.PayoutStatusProcessing {
			return replay()
		}
		if !b.IsPayoutEligible() {
			return nil, invalidTransition(event, "payment %s, refund %s, payout %s",
				b.PaymentStatus, b.RefundStatus, b.VendorPayoutStatus)
		}
		b.VendorPayoutStatus = models.PayoutStatusProcessing

	case models.EventPayoutSucceeded:
		if b.VendorPayoutStatus == models.PayoutStatusCompleted {
			return replay()
		}
		if b.VendorPayoutStatus != models.PayoutStatusProcessing {
			return nil, invalidTransition(event, "payout is %s", b.VendorPayoutStatus)
		}
		b.VendorPayoutStatus = models.PayoutStatusCompleted
		b.PaidOutAt = &now
		if payload.Reference != nil {
			b.PayoutReference = payload.Reference
		}

	case models.EventPayoutFailed:
		if b.VendorPayoutStatus == models.PayoutStatusFailed {
			return replay()
		}
		if b.VendorPayoutStatus != models.PayoutStatusProcessing {
			return nil, invalidTransition(event, "payout is %s", b.VendorPayoutStatus)
		}
		b.VendorPayoutStatus = models.PayoutStatusFailed

	default:
		return nil, invalidTransition(event, "unknown event")
	}

	return &TransitionResult{Booking: b}, nil
}

// owe marks the booking's seats as released exactly once. The ledger call
// itself is made after the booking write commits.
func owe(b *models.Booking) *TransitionResult {
	if b.SeatsReleased {
		return &TransitionResult{Booking: b}
	}
	b.SeatsReleased = true
	b.ReleaseState = models.ReleaseStatePending
	return &TransitionResult{Booking: b, ReleaseOwed: true}
}

// ============================================================================
// SERVICE
// ============================================================================

// BookingLifecycleService persists lifecycle transitions with conditional writes
type BookingLifecycleService struct {
	bookings    BookingStore
	maxAttempts int
	retry       RetryPolicy
	now         func() time.Time
	logger      *logrus.Logger
}

// NewBookingLifecycleService creates a new lifecycle service
func NewBookingLifecycleService(bookings BookingStore, maxAttempts int, retry RetryPolicy, logger *logrus.Logger) *BookingLifecycleService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &BookingLifecycleService{
		bookings:    bookings,
		maxAttempts: maxAttempts,
		retry:       retry,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// Get returns a booking or ErrBookingNotFound
func (s *BookingLifecycleService) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, err := withRetry(ctx, s.retry, func() (*models.Booking, error) {
		return s.bookings.GetByID(ctx, bookingID)
	})
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBookingNotFound
	}
	return b, nil
}

// Apply loads the booking, runs Transition and writes the result only if the
// booking has not changed since it was read. On a lost race it re-reads, so a
// concurrent duplicate of the same trigger resolves as a replay.
func (s *BookingLifecycleService) Apply(
	ctx context.Context,
	bookingID string,
	event models.BookingEvent,
	payload models.EventPayload,
) (*TransitionResult, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		current, err := s.Get(ctx, bookingID)
		if err != nil {
			return nil, err
		}

		result, err := Transition(current, event, payload, s.now())
		if err != nil {
			return nil, err
		}
		if result.Replayed {
			return result, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		updated, err := withRetry(ctx, s.retry, func() (bool, error) {
			return s.bookings.Update(ctx, result.Booking, current.Version)
		})
		if err != nil {
			return nil, err
		}
		if updated {
			s.logger.WithFields(logrus.Fields{
				"booking_id":     bookingID,
				"event":          event,
				"payment_status": result.Booking.PaymentStatus,
				"booking_status": result.Booking.BookingStatus,
				"refund_status":  result.Booking.RefundStatus,
				"payout_status":  result.Booking.VendorPayoutStatus,
				"release_owed":   result.ReleaseOwed,
			}).Info("Booking transition applied")
			return result, nil
		}
	}

	return nil, ErrConcurrencyExhausted
}
