package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditSource identifies where a booking event originated
type AuditSource string

const (
	AuditSourceAPI       AuditSource = "api"
	AuditSourceWebhook   AuditSource = "payment_webhook"
	AuditSourceScheduler AuditSource = "scheduler"
	AuditSourceWorker    AuditSource = "release_worker"
)

// BookingAudit is an append-only record of a lifecycle trigger applied to a booking
type BookingAudit struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	BookingID string       `json:"booking_id" db:"booking_id"`
	Event     BookingEvent `json:"event" db:"event"`
	Source    AuditSource  `json:"source" db:"source"`
	ActorID   *string      `json:"actor_id,omitempty" db:"actor_id"`
	Replayed  bool         `json:"replayed" db:"replayed"`

	// Resulting state
	PaymentStatus      PaymentStatus `json:"payment_status" db:"payment_status"`
	BookingStatus      BookingStatus `json:"booking_status" db:"booking_status"`
	RefundStatus       RefundStatus  `json:"refund_status" db:"refund_status"`
	VendorPayoutStatus PayoutStatus  `json:"vendor_payout_status" db:"vendor_payout_status"`

	// Caller metadata
	IPAddress  *string `json:"ip_address,omitempty" db:"ip_address"`
	DeviceType *string `json:"device_type,omitempty" db:"device_type"`
	Platform   *string `json:"platform,omitempty" db:"platform"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AuditContext describes who applied an event
type AuditContext struct {
	Source     AuditSource
	ActorID    string
	IPAddress  string
	DeviceType string
	Platform   string
}

// NewBookingAudit builds an audit entry from the booking state after the event
func NewBookingAudit(booking *Booking, event BookingEvent, replayed bool, actx AuditContext) *BookingAudit {
	audit := &BookingAudit{
		ID:                 uuid.New(),
		BookingID:          booking.ID,
		Event:              event,
		Source:             actx.Source,
		Replayed:           replayed,
		PaymentStatus:      booking.PaymentStatus,
		BookingStatus:      booking.BookingStatus,
		RefundStatus:       booking.RefundStatus,
		VendorPayoutStatus: booking.VendorPayoutStatus,
		CreatedAt:          time.Now(),
	}
	audit.ActorID = optional(actx.ActorID)
	audit.IPAddress = optional(actx.IPAddress)
	audit.DeviceType = optional(actx.DeviceType)
	audit.Platform = optional(actx.Platform)
	return audit
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
