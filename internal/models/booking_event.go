package models

// BookingEvent is a trigger applied to a booking's lifecycle
type BookingEvent string

const (
	EventPaymentSucceeded      BookingEvent = "payment_succeeded"
	EventPaymentFailed         BookingEvent = "payment_failed"
	EventRequestRefund         BookingEvent = "request_refund"
	EventBeginRefundProcessing BookingEvent = "begin_refund_processing"
	EventCompleteRefund        BookingEvent = "complete_refund"
	EventRejectRefund          BookingEvent = "reject_refund"
	EventMarkTripComplete      BookingEvent = "mark_trip_complete"
	EventBeginPayout           BookingEvent = "begin_payout"
	EventPayoutSucceeded       BookingEvent = "payout_succeeded"
	EventPayoutFailed          BookingEvent = "payout_failed"

	// EventCreated is recorded in the audit trail only; it is not a trigger
	EventCreated BookingEvent = "created"
)

// AllBookingEvents lists every lifecycle trigger except creation
var AllBookingEvents = []BookingEvent{
	EventPaymentSucceeded,
	EventPaymentFailed,
	EventRequestRefund,
	EventBeginRefundProcessing,
	EventCompleteRefund,
	EventRejectRefund,
	EventMarkTripComplete,
	EventBeginPayout,
	EventPayoutSucceeded,
	EventPayoutFailed,
}

// IsValid reports whether e is a known trigger
func (e BookingEvent) IsValid() bool {
	for _, known := range AllBookingEvents {
		if e == known {
			return true
		}
	}
	return false
}

// EventPayload carries optional data for a trigger. Fields irrelevant to the
// trigger are ignored.
type EventPayload struct {
	Reference    *string  `json:"reference,omitempty"`     // gateway id for payment, refund or payout
	RefundAmount *float64 `json:"refund_amount,omitempty"` // RequestRefund only; defaults to the total
}

// ApplyBookingEventRequest is the admin request body for applying a trigger
type ApplyBookingEventRequest struct {
	Event   BookingEvent `json:"event" binding:"required"`
	Payload EventPayload `json:"payload"`
}
