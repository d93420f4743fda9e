package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coachbook/internal/middleware"
	"coachbook/internal/models"
)

func bookingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return 0, false
	}
	return id, true
}

// CreateBooking handles POST /api/bookings
func (h *Handler) CreateBooking(c *gin.Context) {
	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	resp, err := h.svc.CreateBooking(c.Request.Context(), middleware.Actor(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// GetBooking handles GET /api/bookings/:id
func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	resp, err := h.svc.GetBooking(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListBookings handles GET /api/bookings
func (h *Handler) ListBookings(c *gin.Context) {
	items, err := h.svc.ListBookings(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": items})
}

// AcceptBooking handles POST /api/bookings/:id/accept
func (h *Handler) AcceptBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	if err := h.svc.AcceptBooking(c.Request.Context(), middleware.Actor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// DeclineBooking handles POST /api/bookings/:id/decline
func (h *Handler) DeclineBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	if err := h.svc.DeclineBooking(c.Request.Context(), middleware.Actor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "declined"})
}

// CancelBooking handles POST /api/bookings/:id/cancel
func (h *Handler) CancelBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var req models.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if err := h.svc.CancelBooking(c.Request.Context(), middleware.Actor(c), id, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// ConfirmPayment handles POST /api/bookings/:id/pay
func (h *Handler) ConfirmPayment(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var req models.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if err := h.svc.ConfirmPayment(c.Request.Context(), middleware.Actor(c), id, req.IntentRef); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "captured"})
}

// JoinLesson handles POST /api/bookings/:id/join
func (h *Handler) JoinLesson(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var req models.JoinLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	participant, err := h.svc.JoinLesson(c.Request.Context(), middleware.Actor(c), id, req.IntentRef)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, participant)
}

// LeaveLesson handles POST /api/bookings/:id/leave
func (h *Handler) LeaveLesson(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	if err := h.svc.LeaveLesson(c.Request.Context(), middleware.Actor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

// ConfirmCompletion handles POST /api/bookings/:id/confirm
func (h *Handler) ConfirmCompletion(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	if err := h.svc.ConfirmCompletion(c.Request.Context(), middleware.Actor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "confirmed"})
}

// IssuePayout handles POST /api/bookings/:id/payout
func (h *Handler) IssuePayout(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	resp, err := h.svc.IssuePayout(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
