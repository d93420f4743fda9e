package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coachbook/internal/models"
)

// ProviderWebhook handles POST /api/webhooks/payment. The provider retries
// until it sees 2xx, so transient failures return 500 and duplicates are
// acknowledged.
func (h *Handler) ProviderWebhook(c *gin.Context) {
	var event models.ProviderEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event: " + err.Error()})
		return
	}

	if err := h.svc.HandleProviderEvent(c.Request.Context(), &event); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
