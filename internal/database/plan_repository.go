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

// PlanRepository handles database operations for the plans table
type PlanRepository struct {
	db DB
}

// NewPlanRepository creates a new PlanRepository
func NewPlanRepository(db DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Create inserts a plan
func (r *PlanRepository) Create(ctx context.Context, p *models.Plan) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	query := `
		INSERT INTO plans (id, vendor_id, name, price, vendor_cut, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.VendorID, p.Name, p.Price, p.VendorCut, p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// GetByID retrieves a plan. Returns nil, nil when it does not exist.
func (r *PlanRepository) GetByID(ctx context.Context, id string) (*models.Plan, error) {
	var p models.Plan
	query := `
		SELECT id, vendor_id, name, price, vendor_cut, is_active, created_at, updated_at
		FROM plans
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &p, nil
}
