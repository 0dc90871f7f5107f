package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/booking-backend/internal/models"
)

func TestPlanRepository(t *testing.T) {
	ctx := context.Background()
	columns := []string{"id", "vendor_id", "name", "price", "vendor_cut", "is_active", "created_at", "updated_at"}

	t.Run("create", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(`INSERT INTO plans(.+)ON CONFLICT \(id\) DO NOTHING`).
			WithArgs(sqlmock.AnyArg(), "vendor-1", "Yala Safari", 120.0, nil, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		plan := &models.Plan{VendorID: "vendor-1", Name: "Yala Safari", Price: 120, IsActive: true}
		require.NoError(t, NewPlanRepository(db).Create(ctx, plan))
		assert.NotEmpty(t, plan.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get with vendor cut", func(t *testing.T) {
		db, mock := newMockDB(t)
		now := time.Now()
		mock.ExpectQuery(`FROM plans\s+WHERE id = \$1`).
			WithArgs("plan-1").
			WillReturnRows(sqlmock.NewRows(columns).AddRow("plan-1", "vendor-1", "Yala Safari", 120.0, 90.0, true, now, now))

		plan, err := NewPlanRepository(db).GetByID(ctx, "plan-1")
		require.NoError(t, err)
		require.NotNil(t, plan)
		assert.Equal(t, 90.0, plan.VendorCutPercent(models.DefaultVendorCut))
	})

	t.Run("missing returns nil", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(`FROM plans`).WillReturnRows(sqlmock.NewRows(columns))

		plan, err := NewPlanRepository(db).GetByID(ctx, "none")
		assert.NoError(t, err)
		assert.Nil(t, plan)
	})
}
