package models

import (
	"errors"
	"time"
)

// DepartureStatus represents the status of a scheduled departure
type DepartureStatus string

const (
	DepartureStatusScheduled DepartureStatus = "scheduled"
	DepartureStatusConfirmed DepartureStatus = "confirmed"
	DepartureStatusCancelled DepartureStatus = "cancelled"
	DepartureStatusCompleted DepartureStatus = "completed"
)

// IsValid reports whether s is a known departure status
func (s DepartureStatus) IsValid() bool {
	switch s {
	case DepartureStatusScheduled, DepartureStatusConfirmed, DepartureStatusCancelled, DepartureStatusCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether no further status change is allowed
func (s DepartureStatus) IsTerminal() bool {
	return s == DepartureStatusCancelled || s == DepartureStatusCompleted
}

// Departure is one dated instance of a travel plan with finite seat capacity.
// BookedSeats is only ever written through the inventory ledger and Version is
// bumped on every write.
type Departure struct {
	ID             string          `json:"id" db:"id"`
	PlanID         string          `json:"plan_id" db:"plan_id"`
	DepartureTime  time.Time       `json:"departure_time" db:"departure_time"`
	PickupLocation string          `json:"pickup_location" db:"pickup_location"`
	PickupTime     string          `json:"pickup_time" db:"pickup_time"`
	TotalCapacity  int             `json:"total_capacity" db:"total_capacity"`
	BookedSeats    int             `json:"booked_seats" db:"booked_seats"`
	Status         DepartureStatus `json:"status" db:"status"`
	Version        int64           `json:"version" db:"version"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// AvailableSeats returns the unreserved capacity
func (d *Departure) AvailableSeats() int {
	return d.TotalCapacity - d.BookedSeats
}

// HasCapacityFor checks if n more seats fit without exceeding capacity
func (d *Departure) HasCapacityFor(n int) bool {
	return d.BookedSeats+n <= d.TotalCapacity
}

// IsPastDeparture checks if the departure time is before now
func (d *Departure) IsPastDeparture(now time.Time) bool {
	return d.DepartureTime.Before(now)
}

// CreateDepartureRequest represents the request to schedule a departure for a plan
type CreateDepartureRequest struct {
	PlanID         string    `json:"plan_id" binding:"required"`
	DepartureTime  time.Time `json:"departure_time" binding:"required"`
	PickupLocation string    `json:"pickup_location" binding:"required"`
	PickupTime     string    `json:"pickup_time" binding:"required"`
	TotalCapacity  int       `json:"total_capacity" binding:"required,gt=0"`
}

// Validate validates the create departure request
func (r *CreateDepartureRequest) Validate() error {
	if r.TotalCapacity <= 0 {
		return errors.New("total_capacity must be greater than zero")
	}

	if _, err := time.Parse("15:04", r.PickupTime); err != nil {
		return errors.New("pickup_time must be in HH:MM format")
	}

	return nil
}
