package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coachbook/internal/apperr"
	"coachbook/internal/middleware"
	"coachbook/internal/models"
)

// RunSweep handles POST /api/admin/sweep, running the auto-resolution pass on
// demand. The worker runs the same pass on a timer.
func (h *Handler) RunSweep(c *gin.Context) {
	if middleware.Actor(c).Role != models.RoleAdmin {
		respondError(c, apperr.ErrUnauthorized)
		return
	}

	report, err := h.svc.Sweep(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// AuditTrail handles GET /api/audit/:id, reading the authoritative trail
// from Postgres.
func (h *Handler) AuditTrail(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	resp, err := h.svc.AuditTrail(c.Request.Context(), middleware.Actor(c), id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AuditSearch handles GET /api/audit/:id/search against the read-side index,
// which supports filtering by record kind.
func (h *Handler) AuditSearch(c *gin.Context) {
	if middleware.Actor(c).Role != models.RoleAdmin {
		respondError(c, apperr.ErrUnauthorized)
		return
	}
	if h.searchIdx == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit search index is disabled"})
		return
	}

	id, ok := bookingID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	kind := c.Query("kind")

	docs, err := h.searchIdx.SearchByBooking(c.Request.Context(), id, kind, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": docs})
}
