package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tripnest/booking-backend/internal/middleware"
	"github.com/tripnest/booking-backend/internal/models"
	"github.com/tripnest/booking-backend/internal/utils"
	"github.com/tripnest/booking-backend/pkg/jwt"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// auditContext collects the caller metadata recorded with a booking event
func auditContext(c *gin.Context, source models.AuditSource) models.AuditContext {
	device := utils.ParseUserAgent(c.Request.UserAgent())
	actx := models.AuditContext{
		Source:     source,
		IPAddress:  utils.GetRealIP(c),
		DeviceType: device.DeviceType,
		Platform:   device.Platform,
	}
	if userCtx, ok := middleware.GetUserContext(c); ok {
		actx.ActorID = userCtx.UserID.String()
	}
	return actx
}

func isAdmin(userCtx middleware.UserContext) bool {
	return userCtx.HasRole(jwt.RoleAdmin)
}

// pagination reads limit and offset query parameters with sane bounds
func pagination(c *gin.Context) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
