package models

import "time"

// NATS Event Types
const (
	EventBookingCreated    = "booking.created"
	EventBookingAccepted   = "booking.accepted"
	EventBookingDeclined   = "booking.declined"
	EventBookingCancelled  = "booking.cancelled"
	EventPaymentCaptured   = "payment.captured"
	EventPaymentRefunded   = "payment.refunded"
	EventBookingCompleted  = "booking.completed"
	EventPayoutIssued      = "payout.issued"
	EventDisputeOpened     = "dispute.opened"
)

// BookingCreatedEvent represents a new reservation entering review
type BookingCreatedEvent struct {
	BookingID      int64     `json:"booking_id"`
	CoachID        int64     `json:"coach_id"`
	CounterpartyID int64     `json:"counterparty_id"`
	Type           string    `json:"type"`
	StartAt        time.Time `json:"start_at"`
	Timestamp      time.Time `json:"timestamp"`
}

// BookingAcceptedEvent is published when the coach accepts; the counterparty
// now has a payment window.
type BookingAcceptedEvent struct {
	BookingID      int64     `json:"booking_id"`
	CoachID        int64     `json:"coach_id"`
	CounterpartyID int64     `json:"counterparty_id"`
	PaymentDueAt   time.Time `json:"payment_due_at"`
	Timestamp      time.Time `json:"timestamp"`
}

// BookingDeclinedEvent represents a coach decline
type BookingDeclinedEvent struct {
	BookingID      int64     `json:"booking_id"`
	CounterpartyID int64     `json:"counterparty_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// BookingCancelledEvent represents a cancellation by either side or the sweep
type BookingCancelledEvent struct {
	BookingID      int64     `json:"booking_id"`
	CoachID        int64     `json:"coach_id"`
	CounterpartyID int64     `json:"counterparty_id"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
}

// PaymentCapturedEvent represents funds captured for a booking or participant
type PaymentCapturedEvent struct {
	BookingID     int64     `json:"booking_id"`
	ParticipantID *int64    `json:"participant_id,omitempty"`
	IntentRef     string    `json:"intent_ref"`
	AmountCents   int64     `json:"amount_cents"`
	Timestamp     time.Time `json:"timestamp"`
}

// PaymentRefundedEvent represents a refund back to the payer
type PaymentRefundedEvent struct {
	BookingID     int64     `json:"booking_id"`
	ParticipantID *int64    `json:"participant_id,omitempty"`
	IntentRef     string    `json:"intent_ref"`
	Timestamp     time.Time `json:"timestamp"`
}

// BookingCompletedEvent represents fulfillment reaching completed
type BookingCompletedEvent struct {
	BookingID      int64     `json:"booking_id"`
	CoachID        int64     `json:"coach_id"`
	CounterpartyID int64     `json:"counterparty_id"`
	AutoResolved   bool      `json:"auto_resolved"`
	Timestamp      time.Time `json:"timestamp"`
}

// PayoutIssuedEvent represents the at-most-once coach transfer
type PayoutIssuedEvent struct {
	BookingID   int64     `json:"booking_id"`
	CoachID     int64     `json:"coach_id"`
	TransferRef string    `json:"transfer_ref"`
	AmountCents int64     `json:"amount_cents"`
	Timestamp   time.Time `json:"timestamp"`
}

// DisputeOpenedEvent flags a provider-initiated dispute for operators
type DisputeOpenedEvent struct {
	BookingID int64     `json:"booking_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
