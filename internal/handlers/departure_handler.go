package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tripnest/booking-backend/internal/middleware"
	"github.com/tripnest/booking-backend/internal/models"
	"github.com/tripnest/booking-backend/internal/services"
)

// DepartureHandler handles departure scheduling and lookup
type DepartureHandler struct {
	departures *services.DepartureService
	logger     *logrus.Logger
}

// NewDepartureHandler creates a new departure handler
func NewDepartureHandler(departures *services.DepartureService, logger *logrus.Logger) *DepartureHandler {
	return &DepartureHandler{
		departures: departures,
		logger:     logger,
	}
}

// departureResponse adds derived availability to a departure
type departureResponse struct {
	*models.Departure
	AvailableSeats int `json:"available_seats"`
}

func newDepartureResponse(d *models.Departure) departureResponse {
	return departureResponse{Departure: d, AvailableSeats: d.AvailableSeats()}
}

// ScheduleDeparture handles POST /api/v1/departures (vendor or admin)
func (h *DepartureHandler) ScheduleDeparture(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return
	}

	var req models.CreateDepartureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	departure, err := h.departures.ScheduleDeparture(c.Request.Context(), userCtx.UserID.String(), isAdmin(userCtx), &req)
	if err != nil {
		respondServiceError(c, h.logger, "schedule_departure", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Departure scheduled",
		"departure": newDepartureResponse(departure),
	})
}

// GetDeparture handles GET /api/v1/departures/:id
func (h *DepartureHandler) GetDeparture(c *gin.Context) {
	departure, err := h.departures.GetDeparture(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, "get_departure", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"departure": newDepartureResponse(departure)})
}

// ListPlanDepartures handles GET /api/v1/plans/:id/departures
func (h *DepartureHandler) ListPlanDepartures(c *gin.Context) {
	planID := c.Param("id")
	departures, err := h.departures.ListPlanDepartures(c.Request.Context(), planID)
	if err != nil {
		respondServiceError(c, h.logger, "list_plan_departures", err)
		return
	}

	items := make([]departureResponse, 0, len(departures))
	for _, d := range departures {
		items = append(items, newDepartureResponse(d))
	}

	c.JSON(http.StatusOK, gin.H{
		"plan_id":    planID,
		"departures": items,
		"total":      len(items),
	})
}

// CancelDeparture handles POST /api/v1/departures/:id/cancel (owning vendor or admin)
func (h *DepartureHandler) CancelDeparture(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return
	}

	departure, err := h.departures.CancelDeparture(c.Request.Context(), c.Param("id"), userCtx.UserID.String(), isAdmin(userCtx))
	if err != nil {
		respondServiceError(c, h.logger, "cancel_departure", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Departure cancelled",
		"departure": newDepartureResponse(departure),
	})
}
