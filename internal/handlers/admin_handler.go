package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tripnest/booking-backend/internal/models"
	"github.com/tripnest/booking-backend/internal/services"
)

// AdminHandler exposes operator controls over seats, bookings and jobs
type AdminHandler struct {
	coordinator *services.ReservationCoordinator
	worker      *services.ReleaseWorker
	cron        *services.CronService
	logger      *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	coordinator *services.ReservationCoordinator,
	worker *services.ReleaseWorker,
	cron *services.CronService,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{
		coordinator: coordinator,
		worker:      worker,
		cron:        cron,
		logger:      logger,
	}
}

// SeatsRequest is the body for manual seat adjustments
type SeatsRequest struct {
	Seats int `json:"seats" binding:"required,gt=0"`
}

// ============================================================================
// SEATS
// ============================================================================

// ReserveSeats handles POST /api/v1/admin/departures/:id/reserve
func (h *AdminHandler) ReserveSeats(c *gin.Context) {
	h.adjustSeats(c, "reserve_seats", h.coordinator.ReserveSeats)
}

// ReleaseSeats handles POST /api/v1/admin/departures/:id/release
func (h *AdminHandler) ReleaseSeats(c *gin.Context) {
	h.adjustSeats(c, "release_seats", h.coordinator.ReleaseSeats)
}

func (h *AdminHandler) adjustSeats(c *gin.Context, operation string, apply func(ctx context.Context, departureID string, seats int) (*models.Departure, error)) {
	var req SeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	departureID := c.Param("id")
	departure, err := apply(c.Request.Context(), departureID, req.Seats)
	if err != nil {
		respondServiceError(c, h.logger, operation, err)
		return
	}

	actx := auditContext(c, models.AuditSourceAPI)
	h.logger.WithFields(logrus.Fields{
		"operation":    operation,
		"departure_id": departureID,
		"seats":        req.Seats,
		"booked_seats": departure.BookedSeats,
		"admin_id":     actx.ActorID,
	}).Info("Manual seat adjustment")

	c.JSON(http.StatusOK, gin.H{"departure": newDepartureResponse(departure)})
}

// ============================================================================
// BOOKINGS
// ============================================================================

// ApplyBookingEvent handles POST /api/v1/admin/bookings/:id/events
func (h *AdminHandler) ApplyBookingEvent(c *gin.Context) {
	var req models.ApplyBookingEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	booking, err := h.coordinator.ApplyBookingEvent(
		c.Request.Context(),
		c.Param("id"),
		req.Event,
		req.Payload,
		auditContext(c, models.AuditSourceAPI),
	)
	if err != nil {
		respondServiceError(c, h.logger, "apply_booking_event", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event":   req.Event,
		"booking": booking,
	})
}

// ============================================================================
// JOBS
// ============================================================================

// RunCompleteTrips handles POST /api/v1/admin/jobs/complete-trips
func (h *AdminHandler) RunCompleteTrips(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"result": h.cron.RunCompleteTripsNow(c.Request.Context())})
}

// RunPayouts handles POST /api/v1/admin/jobs/payouts
func (h *AdminHandler) RunPayouts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"result": h.cron.RunPayoutsNow(c.Request.Context())})
}

// RunReleases handles POST /api/v1/admin/jobs/releases
func (h *AdminHandler) RunReleases(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"result": h.worker.RunOnce(c.Request.Context())})
}

// JobStatus handles GET /api/v1/admin/jobs/status
func (h *AdminHandler) JobStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"cron":           h.cron.GetJobStatus(),
		"release_worker": h.worker.GetStats(),
	})
}
