package services

import (
	"errors"
	"fmt"

	"github.com/tripnest/booking-backend/internal/models"
)

// Business outcomes returned by the ledger, lifecycle and coordinator.
// Callers branch on them with errors.Is.
var (
	ErrCapacityExceeded       = errors.New("departure does not have enough free seats")
	ErrDepartureNotFound      = errors.New("departure not found")
	ErrDepartureClosed        = errors.New("departure is not accepting reservations")
	ErrBookingNotFound        = errors.New("booking not found")
	ErrPlanUnavailable        = errors.New("plan is not accepting bookings")
	ErrNotPlanOwner           = errors.New("plan belongs to another vendor")
	ErrConcurrencyExhausted   = errors.New("too many concurrent updates, try again")
	ErrInvalidRelease         = errors.New("release exceeds booked seats")
	ErrInvalidSeatCount       = errors.New("seat count must be greater than zero")
	ErrInvalidStatusChange    = errors.New("departure status change not allowed")
	ErrInvalidStateTransition = errors.New("booking state transition not allowed")
	ErrInvalidPayload         = errors.New("invalid event payload")
	ErrServiceUnavailable     = errors.New("storage temporarily unavailable")
)

// errReleaseClaimLost means a release claim was escalated while its ledger call ran
var errReleaseClaimLost = errors.New("seat release claim escalated before completion")

// InvalidTransitionError describes a rejected lifecycle trigger
type InvalidTransitionError struct {
	Event  models.BookingEvent
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot apply %s: %s", e.Event, e.Reason)
}

// Is lets errors.Is match ErrInvalidStateTransition
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

func invalidTransition(event models.BookingEvent, format string, args ...interface{}) error {
	return &InvalidTransitionError{Event: event, Reason: fmt.Sprintf(format, args...)}
}
