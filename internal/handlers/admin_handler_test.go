package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/booking-backend/internal/models"
)

func TestAdminHandler_Seats(t *testing.T) {
	env := newAPIEnv(t)
	d := env.seedDeparture(t, 5)
	reserve := "/api/v1/admin/departures/" + d.ID + "/reserve"
	release := "/api/v1/admin/departures/" + d.ID + "/release"

	tests := []struct {
		name     string
		path     string
		seats    int
		wantCode int
		wantErr  string
		booked   int
	}{
		{name: "reserve", path: reserve, seats: 4, wantCode: http.StatusOK, booked: 4},
		{name: "reserve past capacity", path: reserve, seats: 2, wantCode: http.StatusConflict, wantErr: "CAPACITY_EXCEEDED", booked: 4},
		{name: "release", path: release, seats: 3, wantCode: http.StatusOK, booked: 1},
		{name: "release below zero", path: release, seats: 2, wantCode: http.StatusConflict, wantErr: "INVALID_RELEASE", booked: 1},
		{name: "zero seats", path: reserve, seats: 0, wantCode: http.StatusBadRequest, booked: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, &env.admin, http.MethodPost, tt.path, SeatsRequest{Seats: tt.seats})
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, errorFrom(t, w).Code)
			}
			assert.Equal(t, tt.booked, env.bookedSeats(t, d.ID))
		})
	}

	t.Run("admins only", func(t *testing.T) {
		w := env.do(t, &env.vendor, http.MethodPost, reserve, SeatsRequest{Seats: 1})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown departure", func(t *testing.T) {
		w := env.do(t, &env.admin, http.MethodPost, "/api/v1/admin/departures/missing/reserve", SeatsRequest{Seats: 1})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAdminHandler_ApplyBookingEvent(t *testing.T) {
	env := newAPIEnv(t)
	d := env.seedDeparture(t, 5)
	b := env.book(t, d.ID, 2)
	path := "/api/v1/admin/bookings/" + b.ID + "/events"

	t.Run("applies", func(t *testing.T) {
		w := env.do(t, &env.admin, http.MethodPost, path, models.ApplyBookingEventRequest{Event: models.EventPaymentSucceeded})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, models.PaymentStatusCompleted, bookingFrom(t, w).PaymentStatus)
	})

	t.Run("illegal trigger", func(t *testing.T) {
		w := env.do(t, &env.admin, http.MethodPost, path, models.ApplyBookingEventRequest{Event: models.EventPayoutSucceeded})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "INVALID_STATE_TRANSITION", errorFrom(t, w).Code)
	})

	t.Run("unknown trigger", func(t *testing.T) {
		w := env.do(t, &env.admin, http.MethodPost, path, models.ApplyBookingEventRequest{Event: "teleport"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unknown booking", func(t *testing.T) {
		w := env.do(t, &env.admin, http.MethodPost, "/api/v1/admin/bookings/missing/events",
			models.ApplyBookingEventRequest{Event: models.EventPaymentFailed})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAdminHandler_Jobs(t *testing.T) {
	env := newAPIEnv(t)

	for _, path := range []string{
		"/api/v1/admin/jobs/complete-trips",
		"/api/v1/admin/jobs/payouts",
		"/api/v1/admin/jobs/releases",
	} {
		w := env.do(t, &env.admin, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := env.do(t, &env.admin, http.MethodGet, "/api/v1/admin/jobs/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp, "cron")
	assert.Equal(t, "30s", resp["release_worker"]["interval"])
}
