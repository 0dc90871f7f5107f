package models

import "time"

// PendingReleaseStatus represents the state of a queued compensating release
type PendingReleaseStatus string

const (
	PendingReleaseStatusPending      PendingReleaseStatus = "pending"
	PendingReleaseStatusClaimed      PendingReleaseStatus = "claimed"
	PendingReleaseStatusDone         PendingReleaseStatus = "done"
	PendingReleaseStatusManualReview PendingReleaseStatus = "manual_review"
)

// PendingRelease is a durable record of seats that must be returned to a
// departure after an inline compensation failed
type PendingRelease struct {
	ID            string               `json:"id" db:"id"`
	DepartureID   string               `json:"departure_id" db:"departure_id"`
	Seats         int                  `json:"seats" db:"seats"`
	BookingID     *string              `json:"booking_id,omitempty" db:"booking_id"`
	Reason        string               `json:"reason" db:"reason"`
	Status        PendingReleaseStatus `json:"status" db:"status"`
	Attempts      int                  `json:"attempts" db:"attempts"`
	LastError     *string              `json:"last_error,omitempty" db:"last_error"`
	NextAttemptAt time.Time            `json:"next_attempt_at" db:"next_attempt_at"`
	ClaimedAt     *time.Time           `json:"claimed_at,omitempty" db:"claimed_at"`
	CreatedAt     time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at" db:"updated_at"`
}
