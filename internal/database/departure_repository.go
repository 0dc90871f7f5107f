package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tripnest/booking-backend/internal/models"
)

const departureColumns = `id, plan_id, departure_time, pickup_location, pickup_time,
	total_capacity, booked_seats, status, version, created_at, updated_at`

// DepartureRepository handles database operations for the departures table
type DepartureRepository struct {
	db DB
}

// NewDepartureRepository creates a new DepartureRepository
func NewDepartureRepository(db DB) *DepartureRepository {
	return &DepartureRepository{db: db}
}

// Create inserts a new departure with zero booked seats
func (r *DepartureRepository) Create(ctx context.Context, d *models.Departure) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now

	query := `
		INSERT INTO departures (
			id, plan_id, departure_time, pickup_location, pickup_time,
			total_capacity, booked_seats, status, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.PlanID, d.DepartureTime, d.PickupLocation, d.PickupTime,
		d.TotalCapacity, d.BookedSeats, d.Status, d.Version, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create departure: %w", err)
	}
	return nil
}

// GetByID retrieves a departure. Returns nil, nil when it does not exist.
func (r *DepartureRepository) GetByID(ctx context.Context, id string) (*models.Departure, error) {
	var d models.Departure
	query := `SELECT ` + departureColumns + ` FROM departures WHERE id = $1`

	err := r.db.GetContext(ctx, &d, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get departure: %w", err)
	}
	return &d, nil
}

// CompareAndSwap writes booked seats and status only if the stored version still
// equals expectedVersion. On success d.Version is advanced.
func (r *DepartureRepository) CompareAndSwap(ctx context.Context, d *models.Departure, expectedVersion int64) (bool, error) {
	query := `
		UPDATE departures
		SET booked_seats = $3,
			status = $4,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.ExecContext(ctx, query, d.ID, expectedVersion, d.BookedSeats, d.Status)
	if err != nil {
		return false, fmt.Errorf("failed to update departure: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	d.Version = expectedVersion + 1
	d.UpdatedAt = time.Now().UTC()
	return true, nil
}

// ListByPlan returns a plan's departures ordered by departure time
func (r *DepartureRepository) ListByPlan(ctx context.Context, planID string) ([]*models.Departure, error) {
	departures := []*models.Departure{}
	query := `SELECT ` + departureColumns + `
		FROM departures
		WHERE plan_id = $1
		ORDER BY departure_time`

	if err := r.db.SelectContext(ctx, &departures, query, planID); err != nil {
		return nil, fmt.Errorf("failed to list departures for plan: %w", err)
	}
	return departures, nil
}

// ListDueForCompletion returns open departures whose departure time is before now
func (r *DepartureRepository) ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]*models.Departure, error) {
	departures := []*models.Departure{}
	query := `SELECT ` + departureColumns + `
		FROM departures
		WHERE status IN ('scheduled', 'confirmed') AND departure_time < $1
		ORDER BY departure_time
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &departures, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list departures due for completion: %w", err)
	}
	return departures, nil
}
