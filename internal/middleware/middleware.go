package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"coachbook/internal/logger"
	"coachbook/internal/metrics"
	"coachbook/internal/models"
)

const actorKey = "actor"

// RequestID attaches a request id to the context for log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = logger.NewRequestID()
		}
		c.Header("X-Request-ID", reqID)

		ctx := context.WithValue(c.Request.Context(), "request_id", reqID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Logger logs each request with latency and status.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.WithContext(c.Request.Context()).Info("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// Metrics counts requests by method, route and status.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Recovery converts panics into 500s without killing the process.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithContext(c.Request.Context()).Error("Panic recovered", "panic", recovered)
		c.AbortWithStatusJSON(500, gin.H{"error": "internal server error"})
	})
}

// CORS sets permissive CORS headers for browser clients.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Actor-ID, X-Actor-Role, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// ActorIdentity resolves the caller from the identity headers the edge proxy
// sets after authentication. Requests without an identity are rejected before
// they reach a handler.
func ActorIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader("X-Actor-ID"), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing or invalid actor identity"})
			return
		}

		role := models.Role(c.GetHeader("X-Actor-Role"))
		switch role {
		case models.RoleCoach, models.RoleClient, models.RoleOrganizer, models.RoleAdmin:
		default:
			c.AbortWithStatusJSON(401, gin.H{"error": "missing or invalid actor role"})
			return
		}

		actor := models.Actor{ID: id, Role: role}
		c.Set(actorKey, actor)

		ctx := context.WithValue(c.Request.Context(), "actor_id", id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Actor returns the caller identity resolved by ActorIdentity.
func Actor(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(models.Actor); ok {
			return actor
		}
	}
	return models.Actor{}
}
