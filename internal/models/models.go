package models

import "time"

// CreateBookingRequest - request body for POST /api/bookings
type CreateBookingRequest struct {
	CoachID        int64     `json:"coach_id" binding:"required"`
	Type           string    `json:"type" binding:"required"`
	StartAt        time.Time `json:"start_at" binding:"required"`
	EndAt          time.Time `json:"end_at" binding:"required"`
	VenueTimezone  string    `json:"venue_timezone" binding:"required"`
	Location       string    `json:"location" binding:"required"`
	SeatPriceCents *int64    `json:"seat_price_cents,omitempty"`
}

// CreateBookingResponse carries the booking id, which is the same id on a
// deduplicated resubmission.
type CreateBookingResponse struct {
	ID        int64 `json:"id"`
	Duplicate bool  `json:"duplicate,omitempty"`
}

// BookingResponse - full booking view with detail and participants
type BookingResponse struct {
	Booking      *Booking       `json:"booking"`
	Detail       *PaymentDetail `json:"detail,omitempty"`
	Participants []Participant  `json:"participants,omitempty"`
}

// ListBookingsResponseItem - element of the bookings list
type ListBookingsResponseItem struct {
	ID                int64             `json:"id"`
	CoachID           int64             `json:"coach_id"`
	Type              BookingType       `json:"type"`
	ScheduledStartAt  time.Time         `json:"scheduled_start_at"`
	ScheduledEndAt    time.Time         `json:"scheduled_end_at"`
	ApprovalStatus    ApprovalStatus    `json:"approval_status"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status"`
}

// CancelBookingRequest - request body for cancellation
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

// ConfirmPaymentRequest - request body for POST /api/bookings/:id/pay
type ConfirmPaymentRequest struct {
	IntentRef string `json:"intent_ref" binding:"required"`
}

// JoinLessonRequest - request body for a public-group join
type JoinLessonRequest struct {
	IntentRef string `json:"intent_ref" binding:"required"`
}

// PayoutResponse reports the outcome of a payout attempt.
type PayoutResponse struct {
	BookingID   int64  `json:"booking_id"`
	TransferRef string `json:"transfer_ref"`
	AmountCents int64  `json:"amount_cents"`
	AlreadyPaid bool   `json:"already_paid"`
}

// ProviderEvent is a decoded provider webhook delivery. BookingID is echoed
// back from the metadata attached to transfer requests.
type ProviderEvent struct {
	DeliveryID  string `json:"delivery_id" binding:"required"`
	Kind        string `json:"kind" binding:"required"`
	IntentRef   string `json:"intent_ref,omitempty"`
	TransferRef string `json:"transfer_ref,omitempty"`
	PayoutID    string `json:"payout_id,omitempty"`
	Destination string `json:"destination,omitempty"`
	BookingID   int64  `json:"booking_id,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Provider webhook event kinds.
const (
	EventKindCaptureSucceeded = "capture.succeeded"
	EventKindCaptureFailed    = "capture.failed"
	EventKindRefundSucceeded  = "refund.succeeded"
	EventKindTransferCreated  = "transfer.created"
	EventKindTransferReversed = "transfer.reversed"
	EventKindPayoutPaid       = "payout.paid"
	EventKindPayoutFailed     = "payout.failed"
	EventKindDisputeOpened    = "dispute.opened"
	EventKindDisputeClosed    = "dispute.closed"
)

// SweepReport summarizes one auto-resolution pass over the backlog.
type SweepReport struct {
	ExpiredUnpaid     int `json:"expired_unpaid"`
	ForceConfirmed    int `json:"force_confirmed"`
	GroupSettled      int `json:"group_settled"`
	Failures          int `json:"failures"`
}

// AuditQueryResponse - ES-backed audit search result
type AuditQueryResponse struct {
	Transitions []StateTransition `json:"transitions"`
	Events      []PaymentEvent    `json:"events"`
}
