package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/tripnest/booking-backend/internal/middleware"
	"github.com/tripnest/booking-backend/pkg/jwt"
)

// Handlers groups every HTTP handler served under /api/v1
type Handlers struct {
	Booking   *BookingHandler
	Departure *DepartureHandler
	Admin     *AdminHandler
	Webhook   *WebhookHandler
}

// RegisterRoutes mounts the API on router
func RegisterRoutes(router gin.IRouter, h Handlers, jwtService *jwt.Service) {
	v1 := router.Group("/api/v1")
	auth := middleware.AuthMiddleware(jwtService)

	// Gateway callbacks authenticate by signature, not by token
	v1.POST("/webhooks/payments", h.Webhook.HandlePayment)

	bookings := v1.Group("/bookings")
	bookings.Use(auth)
	{
		bookings.POST("", middleware.RequireRole(jwt.RoleUser), h.Booking.CreateBooking)
		bookings.GET("", h.Booking.ListMyBookings)
		bookings.GET("/:id", h.Booking.GetBooking)
		bookings.POST("/:id/refund", middleware.RequireRole(jwt.RoleUser), h.Booking.RequestRefund)
	}

	vendor := v1.Group("/vendor")
	vendor.Use(auth, middleware.RequireRole(jwt.RoleVendor))
	{
		vendor.GET("/bookings", h.Booking.ListVendorBookings)
	}

	departures := v1.Group("/departures")
	departures.Use(auth)
	{
		departures.POST("", middleware.RequireRole(jwt.RoleVendor, jwt.RoleAdmin), h.Departure.ScheduleDeparture)
		departures.GET("/:id", h.Departure.GetDeparture)
		departures.POST("/:id/cancel", middleware.RequireRole(jwt.RoleVendor, jwt.RoleAdmin), h.Departure.CancelDeparture)
	}

	plans := v1.Group("/plans")
	plans.Use(auth)
	{
		plans.GET("/:id/departures", h.Departure.ListPlanDepartures)
	}

	admin := v1.Group("/admin")
	admin.Use(auth, middleware.RequireRole(jwt.RoleAdmin))
	{
		admin.POST("/departures/:id/reserve", h.Admin.ReserveSeats)
		admin.POST("/departures/:id/release", h.Admin.ReleaseSeats)
		admin.POST("/bookings/:id/events", h.Admin.ApplyBookingEvent)

		jobs := admin.Group("/jobs")
		jobs.POST("/complete-trips", h.Admin.RunCompleteTrips)
		jobs.POST("/payouts", h.Admin.RunPayouts)
		jobs.POST("/releases", h.Admin.RunReleases)
		jobs.GET("/status", h.Admin.JobStatus)
	}
}
