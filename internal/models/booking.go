package models

import (
	"errors"
	"math"
	"time"
)

// PaymentStatus represents the payment status of a booking
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// BookingStatus represents the trip status of a booking.
// It stays empty until payment resolves.
type BookingStatus string

const (
	BookingStatusNone      BookingStatus = ""
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// RefundStatus represents the refund progress of a booking
type RefundStatus string

const (
	RefundStatusNone       RefundStatus = "none"
	RefundStatusRequested  RefundStatus = "requested"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusRejected   RefundStatus = "rejected"
)

// PayoutStatus represents the vendor payout progress of a booking
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

// ReleaseState tracks delivery of the seat release a booking owes the ledger.
//
//	none          -> no release owed
//	pending       -> owed, not yet attempted (or re-armed after a failure)
//	claimed       -> a worker is calling the ledger
//	done          -> ledger released the seats
//	manual_review -> outcome unknown or rejected by the ledger; needs an operator
type ReleaseState string

const (
	ReleaseStateNone         ReleaseState = "none"
	ReleaseStatePending      ReleaseState = "pending"
	ReleaseStateClaimed      ReleaseState = "claimed"
	ReleaseStateDone         ReleaseState = "done"
	ReleaseStateManualReview ReleaseState = "manual_review"
)

// Booking represents a user's reservation of seats on a departure
type Booking struct {
	ID          string    `json:"id" db:"id"`
	DepartureID string    `json:"departure_id" db:"departure_id"`
	PlanID      string    `json:"plan_id" db:"plan_id"`
	UserID      string    `json:"user_id" db:"user_id"`
	VendorID    string    `json:"vendor_id" db:"vendor_id"`
	TripDate    time.Time `json:"trip_date" db:"trip_date"`
	NumPeople   int       `json:"num_people" db:"num_people"`

	// Money
	TotalAmount        float64  `json:"total_amount" db:"total_amount"`
	PlatformCut        float64  `json:"platform_cut" db:"platform_cut"`
	RefundAmount       *float64 `json:"refund_amount,omitempty" db:"refund_amount"`
	VendorPayoutAmount float64  `json:"vendor_payout_amount" db:"vendor_payout_amount"`

	// Lifecycle
	PaymentStatus      PaymentStatus `json:"payment_status" db:"payment_status"`
	BookingStatus      BookingStatus `json:"booking_status,omitempty" db:"booking_status"`
	RefundStatus       RefundStatus  `json:"refund_status" db:"refund_status"`
	VendorPayoutStatus PayoutStatus  `json:"vendor_payout_status" db:"vendor_payout_status"`

	// Gateway references
	PaymentReference *string `json:"payment_reference,omitempty" db:"payment_reference"`
	RefundReference  *string `json:"refund_reference,omitempty" db:"refund_reference"`
	PayoutReference  *string `json:"payout_reference,omitempty" db:"payout_reference"`

	// Seat release bookkeeping (internal)
	SeatsReleased    bool         `json:"-" db:"seats_released"`
	ReleaseState     ReleaseState `json:"-" db:"release_state"`
	ReleaseClaimedAt *time.Time   `json:"-" db:"release_claimed_at"`
	ReleaseAttempts  int          `json:"-" db:"release_attempts"`

	RefundedAt *time.Time `json:"refunded_at,omitempty" db:"refunded_at"`
	PaidOutAt  *time.Time `json:"paid_out_at,omitempty" db:"paid_out_at"`
	Version    int64      `json:"-" db:"version"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// CreateBookingRequest represents the request to book seats on a departure
type CreateBookingRequest struct {
	DepartureID string  `json:"departure_id" binding:"required"`
	NumPeople   int     `json:"num_people" binding:"required,min=1"`
	Amount      float64 `json:"amount" binding:"required,gt=0"`
}

// Validate validates the create booking request
func (r *CreateBookingRequest) Validate() error {
	if r.NumPeople <= 0 {
		return errors.New("num_people must be at least 1")
	}
	if r.Amount <= 0 {
		return errors.New("amount must be greater than zero")
	}
	return nil
}

// RefundBookingRequest represents a user's refund request
type RefundBookingRequest struct {
	Amount *float64 `json:"amount,omitempty"`
}

// Clone returns a copy that shares no pointers with b
func (b *Booking) Clone() *Booking {
	c := *b
	c.RefundAmount = cloneFloat(b.RefundAmount)
	c.PaymentReference = cloneString(b.PaymentReference)
	c.RefundReference = cloneString(b.RefundReference)
	c.PayoutReference = cloneString(b.PayoutReference)
	c.ReleaseClaimedAt = cloneTime(b.ReleaseClaimedAt)
	c.RefundedAt = cloneTime(b.RefundedAt)
	c.PaidOutAt = cloneTime(b.PaidOutAt)
	return &c
}

// OccupiesSeats reports whether the booking still counts against departure capacity
func (b *Booking) OccupiesSeats() bool {
	return !b.SeatsReleased && b.PaymentStatus != PaymentStatusFailed
}

// IsPayoutEligible checks payment and refund state for a vendor payout
func (b *Booking) IsPayoutEligible() bool {
	return b.PaymentStatus == PaymentStatusCompleted &&
		(b.RefundStatus == RefundStatusNone || b.RefundStatus == RefundStatusRejected) &&
		b.VendorPayoutStatus == PayoutStatusPending
}

// SplitAmount divides a booking amount into platform cut and vendor payout
// using the vendor's percentage share. Both are rounded to cents.
func SplitAmount(amount, vendorCutPercent float64) (platformCut, vendorPayout float64) {
	platformCut = RoundCents(amount * (100 - vendorCutPercent) / 100)
	vendorPayout = RoundCents(amount - platformCut)
	return platformCut, vendorPayout
}

// RoundCents rounds to two decimal places
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
