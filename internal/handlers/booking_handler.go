package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tripnest/booking-backend/internal/middleware"
	"github.com/tripnest/booking-backend/internal/models"
	"github.com/tripnest/booking-backend/internal/services"
)

// BookingHandler handles traveller and vendor booking requests
type BookingHandler struct {
	coordinator *services.ReservationCoordinator
	logger      *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(coordinator *services.ReservationCoordinator, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	booking, err := h.coordinator.CreateBooking(
		c.Request.Context(),
		userCtx.UserID.String(),
		&req,
		auditContext(c, models.AuditSourceAPI),
	)
	if err != nil {
		respondServiceError(c, h.logger, "create_booking", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Booking created",
		"booking": booking,
	})
}

// ListMyBookings handles GET /api/v1/bookings
func (h *BookingHandler) ListMyBookings(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return
	}

	limit, offset := pagination(c)
	bookings, err := h.coordinator.ListUserBookings(c.Request.Context(), userCtx.UserID.String(), limit, offset)
	if err != nil {
		respondServiceError(c, h.logger, "list_user_bookings", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"total":    len(bookings),
		"limit":    limit,
		"offset":   offset,
	})
}

// GetBooking handles GET /api/v1/bookings/:id (owner, vendor of the plan or admin)
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return
	}

	booking, err := h.coordinator.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, "get_booking", err)
		return
	}

	caller := userCtx.UserID.String()
	if booking.UserID != caller && booking.VendorID != caller && !isAdmin(userCtx) {
		respondForbidden(c, "You don't have access to this booking")
		return
	}

	response := gin.H{"booking": booking}
	if c.Query("include") == "history" {
		history, err := h.coordinator.BookingHistory(c.Request.Context(), booking.ID)
		if err != nil {
			respondServiceError(c, h.logger, "booking_history", err)
			return
		}
		response["history"] = history
	}

	c.JSON(http.StatusOK, response)
}

// RequestRefund handles POST /api/v1/bookings/:id/refund (owner only)
func (h *BookingHandler) RequestRefund(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return
	}

	var req models.RefundBookingRequest
	// Empty body means a full refund
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	booking, err := h.coordinator.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, h.logger, "request_refund", err)
		return
	}
	if booking.UserID != userCtx.UserID.String() {
		respondForbidden(c, "Only the traveller who booked can request a refund")
		return
	}

	updated, err := h.coordinator.ApplyBookingEvent(
		c.Request.Context(),
		booking.ID,
		models.EventRequestRefund,
		models.EventPayload{RefundAmount: req.Amount},
		auditContext(c, models.AuditSourceAPI),
	)
	if err != nil {
		respondServiceError(c, h.logger, "request_refund", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Refund requested",
		"booking": updated,
	})
}

// ListVendorBookings handles GET /api/v1/vendor/bookings
func (h *BookingHandler) ListVendorBookings(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		respondUnauthorized(c)
		return
	}

	limit, offset := pagination(c)
	bookings, err := h.coordinator.ListVendorBookings(c.Request.Context(), userCtx.UserID.String(), limit, offset)
	if err != nil {
		respondServiceError(c, h.logger, "list_vendor_bookings", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"total":    len(bookings),
		"limit":    limit,
		"offset":   offset,
	})
}
