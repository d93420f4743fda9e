package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coachbook/internal/database"
	"coachbook/internal/handlers"
	"coachbook/internal/middleware"
	"coachbook/internal/search"
)

// NewRouter builds the HTTP surface: booking lifecycle under /api, the
// provider webhook, admin endpoints, health and metrics. searchIdx may be
// nil when the audit index is disabled.
func NewRouter(h *handlers.Handler, db *database.DB, searchIdx *search.AuditIndexClient) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS())

	router.GET("/health", healthHandler(db, searchIdx))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The webhook authenticates by payload token at the provider level, not
	// by actor identity.
	router.POST("/api/webhooks/payment", h.ProviderWebhook)

	api := router.Group("/api")
	api.Use(middleware.ActorIdentity())
	{
		api.POST("/bookings", h.CreateBooking)
		api.GET("/bookings", h.ListBookings)
		api.GET("/bookings/:id", h.GetBooking)
		api.POST("/bookings/:id/accept", h.AcceptBooking)
		api.POST("/bookings/:id/decline", h.DeclineBooking)
		api.POST("/bookings/:id/cancel", h.CancelBooking)
		api.POST("/bookings/:id/pay", h.ConfirmPayment)
		api.POST("/bookings/:id/join", h.JoinLesson)
		api.POST("/bookings/:id/leave", h.LeaveLesson)
		api.POST("/bookings/:id/confirm", h.ConfirmCompletion)
		api.POST("/bookings/:id/payout", h.IssuePayout)

		api.GET("/audit/:id", h.AuditTrail)
		api.GET("/audit/:id/search", h.AuditSearch)
		api.POST("/admin/sweep", h.RunSweep)
	}

	return router
}

func healthHandler(db *database.DB, searchIdx *search.AuditIndexClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		check := db.Health(c.Request.Context())
		status := http.StatusOK
		if check.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}

		resp := gin.H{
			"status":   check.Status,
			"database": check,
		}
		if searchIdx != nil {
			if err := searchIdx.HealthCheck(c.Request.Context()); err != nil {
				resp["search"] = "unhealthy"
			} else {
				resp["search"] = "healthy"
			}
		}
		c.JSON(status, resp)
	}
}
