package models

import (
	"time"
)

// BookingType is the closed set of booking variants. Every state-machine
// operation dispatches on it; an unknown type is a hard error, not a fallthrough.
type BookingType string

const (
	TypeIndividual   BookingType = "individual"
	TypePrivateGroup BookingType = "private_group"
	TypePublicGroup  BookingType = "public_group"
)

// ApprovalStatus tracks the coach-side accept/decline axis.
type ApprovalStatus string

const (
	ApprovalPendingReview ApprovalStatus = "pending_review"
	ApprovalAccepted      ApprovalStatus = "accepted"
	ApprovalDeclined      ApprovalStatus = "declined"
	ApprovalCancelled     ApprovalStatus = "cancelled"
)

// PaymentStatus tracks the funds axis for a booking or a participant.
type PaymentStatus string

const (
	PaymentNotRequired    PaymentStatus = "not_required"
	PaymentAwaitingClient PaymentStatus = "awaiting_client_payment"
	PaymentAuthorized     PaymentStatus = "authorized"
	PaymentCaptured       PaymentStatus = "captured"
	PaymentRefunded       PaymentStatus = "refunded"
	PaymentFailed         PaymentStatus = "failed"
	PaymentDisputed       PaymentStatus = "disputed"
)

// TerminalPayment reports whether no further capture may follow.
func TerminalPayment(s PaymentStatus) bool {
	return s == PaymentRefunded || s == PaymentFailed
}

// FulfillmentStatus tracks whether the session occurred and was confirmed.
type FulfillmentStatus string

const (
	FulfillmentScheduled FulfillmentStatus = "scheduled"
	FulfillmentCompleted FulfillmentStatus = "completed"
	FulfillmentDisputed  FulfillmentStatus = "disputed"
)

// ParticipantStatus is the per-participant axis on public-group lessons.
type ParticipantStatus string

const (
	ParticipantAwaitingCoach ParticipantStatus = "awaiting_coach"
	ParticipantAccepted      ParticipantStatus = "accepted"
	ParticipantCancelled     ParticipantStatus = "cancelled"
	ParticipantCompleted     ParticipantStatus = "completed"
)

// Role of an authenticated caller, resolved upstream and trusted here.
type Role string

const (
	RoleCoach     Role = "coach"
	RoleClient    Role = "client"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// Actor is the authenticated caller identity passed explicitly into every
// mutating core operation. The core never reads ambient caller state.
type Actor struct {
	ID   int64
	Role Role
}

// SystemActorReason marks transitions performed by the sweep or a webhook,
// which carry a nil actor in the audit trail.
const SystemActorReason = "system"

// Coach holds the pricing and payout configuration the reservation creator
// reads. Profile editing lives outside this service.
type Coach struct {
	ID                  int64     `json:"id" db:"id"`
	DisplayName         string    `json:"display_name" db:"display_name"`
	Email               string    `json:"email" db:"email"`
	HourlyRateCents     int64     `json:"hourly_rate_cents" db:"hourly_rate_cents"`
	PlatformFeePct      int64     `json:"platform_fee_pct" db:"platform_fee_pct"`
	AllowedDurationsMin []int64   `json:"allowed_durations_min" db:"allowed_durations_min"`
	PayoutDestination   *string   `json:"-" db:"payout_destination"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

// Booking is the root entity. It is created once, mutated only through the
// state machines, and never physically deleted.
type Booking struct {
	ID                int64             `json:"id" db:"id"`
	CoachID           int64             `json:"coach_id" db:"coach_id"`
	CounterpartyID    int64             `json:"counterparty_id" db:"counterparty_id"`
	Type              BookingType       `json:"type" db:"type"`
	ScheduledStartAt  time.Time         `json:"scheduled_start_at" db:"scheduled_start_at"`
	ScheduledEndAt    time.Time         `json:"scheduled_end_at" db:"scheduled_end_at"`
	VenueTimezone     string            `json:"venue_timezone" db:"venue_timezone"`
	Location          string            `json:"location" db:"location"`
	ApprovalStatus    ApprovalStatus    `json:"approval_status" db:"approval_status"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status" db:"fulfillment_status"`
	LockExpiresAt     time.Time         `json:"lock_expires_at" db:"lock_expires_at"`
	Fingerprint       string            `json:"-" db:"fingerprint"`
	SeatPriceCents    *int64            `json:"seat_price_cents,omitempty" db:"seat_price_cents"`
	CancelledBy       *int64            `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancelledAt       *time.Time        `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason      *string           `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CoachConfirmedAt  *time.Time        `json:"coach_confirmed_at,omitempty" db:"coach_confirmed_at"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" db:"updated_at"`
}

// Active reports whether the booking still holds its slot on the calendar.
func (b *Booking) Active() bool {
	return b.ApprovalStatus == ApprovalPendingReview || b.ApprovalStatus == ApprovalAccepted
}

// PaymentDetail extends a booking with its funds state. Public-group bookings
// carry one aggregate row (per-participant money lives on the participant),
// which also holds the single transfer reference for the aggregate payout.
type PaymentDetail struct {
	BookingID               int64         `json:"booking_id" db:"booking_id"`
	Status                  PaymentStatus `json:"status" db:"status"`
	GrossCents              int64         `json:"gross_cents" db:"gross_cents"`
	PlatformFeeCents        int64         `json:"platform_fee_cents" db:"platform_fee_cents"`
	ProviderFeeCents        int64         `json:"provider_fee_cents" db:"provider_fee_cents"`
	CoachPayoutCents        int64         `json:"coach_payout_cents" db:"coach_payout_cents"`
	IntentRef               *string       `json:"intent_ref,omitempty" db:"intent_ref"`
	TransferRef             *string       `json:"transfer_ref,omitempty" db:"transfer_ref"`
	PaymentDueAt            *time.Time    `json:"payment_due_at,omitempty" db:"payment_due_at"`
	CounterpartyConfirmedAt *time.Time    `json:"counterparty_confirmed_at,omitempty" db:"counterparty_confirmed_at"`
	PayoutClaimedAt         *time.Time    `json:"-" db:"payout_claimed_at"`
	UpdatedAt               time.Time     `json:"updated_at" db:"updated_at"`
}

// Participant is one joined user on a public-group lesson. The only physical
// delete in the system is a voluntary pre-session leave of one of these rows.
type Participant struct {
	ID                 int64             `json:"id" db:"id"`
	BookingID          int64             `json:"booking_id" db:"booking_id"`
	UserID             int64             `json:"user_id" db:"user_id"`
	Status             ParticipantStatus `json:"status" db:"status"`
	PaymentStatus      PaymentStatus     `json:"payment_status" db:"payment_status"`
	ChargeCents        int64             `json:"charge_cents" db:"charge_cents"`
	CoachEarningsCents int64             `json:"coach_earnings_cents" db:"coach_earnings_cents"`
	IntentRef          *string           `json:"intent_ref,omitempty" db:"intent_ref"`
	AuthorizedAt       *time.Time        `json:"authorized_at,omitempty" db:"authorized_at"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
}

// PaymentEvent is an append-only money-movement audit record.
type PaymentEvent struct {
	ID            int64     `json:"id" db:"id"`
	BookingID     int64     `json:"booking_id" db:"booking_id"`
	ParticipantID *int64    `json:"participant_id,omitempty" db:"participant_id"`
	ExternalRef   string    `json:"external_ref" db:"external_ref"`
	Status        string    `json:"status" db:"status"`
	AmountCents   int64     `json:"amount_cents" db:"amount_cents"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// StateTransition is an append-only record of one field changing value.
// Actor is nil for system-triggered transitions.
type StateTransition struct {
	ID            int64     `json:"id" db:"id"`
	BookingID     int64     `json:"booking_id" db:"booking_id"`
	ParticipantID *int64    `json:"participant_id,omitempty" db:"participant_id"`
	Field         string    `json:"field" db:"field"`
	OldValue      string    `json:"old_value" db:"old_value"`
	NewValue      string    `json:"new_value" db:"new_value"`
	ActorID       *int64    `json:"actor_id,omitempty" db:"actor_id"`
	Reason        *string   `json:"reason,omitempty" db:"reason"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// IdempotencyKey stores a processed delivery or creation claim. Rows past
// expiry are inert and may be purged.
type IdempotencyKey struct {
	Key       string    `json:"key" db:"key"`
	Scope     string    `json:"scope" db:"scope"`
	Result    string    `json:"result" db:"result"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

const (
	ScopeWebhook       = "webhook"
	ScopeBookingCreate = "booking_create"
)

// PayoutLedgerEntry mirrors a platform-to-coach bank payout reported by the
// provider, keyed by the provider's payout id.
type PayoutLedgerEntry struct {
	PayoutID    string     `json:"payout_id" db:"payout_id"`
	Status      string     `json:"status" db:"status"`
	AmountCents int64      `json:"amount_cents" db:"amount_cents"`
	ArrivalDate *time.Time `json:"arrival_date,omitempty" db:"arrival_date"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}
