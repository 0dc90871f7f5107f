package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tripnest/booking-backend/internal/services"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// retryAfterSeconds is sent with 503 responses for contended or unavailable stores
const retryAfterSeconds = "2"

type errorMapping struct {
	target error
	status int
	code   string
}

// Ordered: the first match wins
var errorMappings = []errorMapping{
	{services.ErrInvalidPayload, http.StatusBadRequest, "INVALID_PAYLOAD"},
	{services.ErrInvalidSeatCount, http.StatusBadRequest, "INVALID_SEAT_COUNT"},
	{services.ErrNotPlanOwner, http.StatusForbidden, "NOT_PLAN_OWNER"},
	{services.ErrDepartureNotFound, http.StatusNotFound, "DEPARTURE_NOT_FOUND"},
	{services.ErrBookingNotFound, http.StatusNotFound, "BOOKING_NOT_FOUND"},
	{services.ErrCapacityExceeded, http.StatusConflict, "CAPACITY_EXCEEDED"},
	{services.ErrInvalidStateTransition, http.StatusConflict, "INVALID_STATE_TRANSITION"},
	{services.ErrInvalidRelease, http.StatusConflict, "INVALID_RELEASE"},
	{services.ErrDepartureClosed, http.StatusConflict, "DEPARTURE_CLOSED"},
	{services.ErrPlanUnavailable, http.StatusConflict, "PLAN_UNAVAILABLE"},
	{services.ErrInvalidStatusChange, http.StatusConflict, "INVALID_STATUS_CHANGE"},
	{services.ErrConcurrencyExhausted, http.StatusServiceUnavailable, "CONCURRENCY_EXHAUSTED"},
	{services.ErrServiceUnavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
}

// respondServiceError maps a service error onto an HTTP response. Unknown
// errors are logged and reported as 500 without leaking details.
func respondServiceError(c *gin.Context, logger *logrus.Logger, operation string, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		if m.status == http.StatusServiceUnavailable {
			c.Header("Retry-After", retryAfterSeconds)
			logger.WithError(err).WithField("operation", operation).Warn("Service temporarily unavailable")
		}
		c.JSON(m.status, ErrorResponse{
			Error:   http.StatusText(m.status),
			Message: err.Error(),
			Code:    m.code,
		})
		return
	}

	logger.WithError(err).WithField("operation", operation).Error("Request failed")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An unexpected error occurred",
		Code:    "INTERNAL_ERROR",
	})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: message,
		Code:    "INVALID_REQUEST",
	})
}

func respondUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, ErrorResponse{
		Error:   "unauthorized",
		Message: "User context not found",
		Code:    "MISSING_USER_CONTEXT",
	})
}

func respondForbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, ErrorResponse{
		Error:   "forbidden",
		Message: message,
		Code:    "FORBIDDEN",
	})
}
