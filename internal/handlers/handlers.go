package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"coachbook/internal/apperr"
	"coachbook/internal/search"
	"coachbook/internal/service"
)

// Handler translates HTTP to service calls. All domain decisions live in the
// service; this layer only binds, dispatches and maps errors to statuses.
// searchIdx is nil when the audit search index is disabled.
type Handler struct {
	svc       *service.BookingService
	searchIdx *search.AuditIndexClient
}

func NewHandler(svc *service.BookingService, searchIdx *search.AuditIndexClient) *Handler {
	return &Handler{svc: svc, searchIdx: searchIdx}
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	if ce, ok := apperr.IsConflict(err); ok {
		c.JSON(http.StatusConflict, gin.H{"error": ce.Error(), "kind": string(ce.Kind)})
		return
	}

	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrInvalidState),
		errors.Is(err, apperr.ErrInvalidDuration),
		errors.Is(err, apperr.ErrMisconfiguredPricing),
		errors.Is(err, apperr.ErrMalformedEvent):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrDeadlineExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrPayoutInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrPayoutUnconfigured),
		errors.Is(err, apperr.ErrNoPaymentFound):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
