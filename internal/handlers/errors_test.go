package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/tripnest/booking-backend/internal/models"
	"github.com/tripnest/booking-backend/internal/services"
)

func TestRespondServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		retryAfter bool
	}{
		{name: "capacity", err: services.ErrCapacityExceeded, wantStatus: http.StatusConflict},
		{name: "wrapped capacity", err: fmt.Errorf("reserve: %w", services.ErrCapacityExceeded), wantStatus: http.StatusConflict},
		{name: "transition", err: &services.InvalidTransitionError{Event: models.EventBeginPayout, Reason: "payout is completed"}, wantStatus: http.StatusConflict},
		{name: "release floor", err: services.ErrInvalidRelease, wantStatus: http.StatusConflict},
		{name: "closed", err: services.ErrDepartureClosed, wantStatus: http.StatusConflict},
		{name: "departure missing", err: services.ErrDepartureNotFound, wantStatus: http.StatusNotFound},
		{name: "booking missing", err: services.ErrBookingNotFound, wantStatus: http.StatusNotFound},
		{name: "not owner", err: services.ErrNotPlanOwner, wantStatus: http.StatusForbidden},
		{name: "payload", err: services.ErrInvalidPayload, wantStatus: http.StatusBadRequest},
		{name: "contention", err: services.ErrConcurrencyExhausted, wantStatus: http.StatusServiceUnavailable, retryAfter: true},
		{name: "store down", err: services.ErrServiceUnavailable, wantStatus: http.StatusServiceUnavailable, retryAfter: true},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondServiceError(c, quietLogger(), "test", tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.retryAfter {
				assert.Equal(t, retryAfterSeconds, w.Header().Get("Retry-After"))
			} else {
				assert.Empty(t, w.Header().Get("Retry-After"))
			}
		})
	}

	t.Run("internal errors are not leaked", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		respondServiceError(c, quietLogger(), "test", errors.New("pq: password authentication failed"))
		assert.NotContains(t, w.Body.String(), "password")
	})
}
