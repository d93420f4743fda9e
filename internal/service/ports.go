package service

import (
	"context"
	"time"

	"coachbook/internal/external"
	"coachbook/internal/models"
	"coachbook/internal/repository"
)

// BookingStore is the persistence surface the lifecycle services depend on.
// *repository.BookingRepository satisfies it; tests supply an in-memory fake.
type BookingStore interface {
	Create(ctx context.Context, booking *models.Booking, detail *models.PaymentDetail, transitions []models.StateTransition) error
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	GetDetail(ctx context.Context, bookingID int64) (*models.PaymentDetail, error)
	GetByIntentRef(ctx context.Context, intentRef string) (*models.Booking, error)
	FindOverlapping(ctx context.Context, coachID int64, start, end, now time.Time) ([]models.Booking, error)
	GetByFingerprint(ctx context.Context, fingerprint string, createdAfter time.Time) (*models.Booking, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Booking, error)
	Apply(ctx context.Context, cs *models.ChangeSet) error

	ClaimPayout(ctx context.Context, bookingID int64) (bool, error)
	ReleasePayoutClaim(ctx context.Context, bookingID int64) error
	SetTransferRef(ctx context.Context, bookingID int64, transferRef string) (bool, error)

	AddParticipant(ctx context.Context, p *models.Participant, transitions []models.StateTransition) error
	RemoveParticipant(ctx context.Context, participantID int64, transitions []models.StateTransition) error
	GetParticipants(ctx context.Context, bookingID int64) ([]models.Participant, error)
	GetParticipantByIntent(ctx context.Context, intentRef string) (*models.Participant, error)

	ListExpiredUnpaid(ctx context.Context, now time.Time) ([]models.Booking, error)
	ListStaleDualConfirm(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
	ListStalePublicGroup(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
}

type CoachStore interface {
	GetByID(ctx context.Context, id int64) (*models.Coach, error)
}

// IdempotencyStore backs webhook and creation dedup with an atomic claim.
type IdempotencyStore interface {
	Claim(ctx context.Context, scope, key string, ttl time.Duration) (*repository.ClaimResult, error)
	StoreResult(ctx context.Context, scope, key, result string) error
	Release(ctx context.Context, scope, key string) error
	PurgeExpired(ctx context.Context) (int64, error)
}

type LedgerStore interface {
	Upsert(ctx context.Context, entry *models.PayoutLedgerEntry) error
}

type AuditStore interface {
	ListTransitions(ctx context.Context, bookingID int64, limit int) ([]models.StateTransition, error)
	ListEvents(ctx context.Context, bookingID int64, limit int) ([]models.PaymentEvent, error)
}

// PaymentProvider is the escrow gateway surface used by the lifecycle.
type PaymentProvider interface {
	CheckIntent(ctx context.Context, intentRef string) (*external.IntentStatus, error)
	Capture(ctx context.Context, intentRef string, amountCents int64) error
	Refund(ctx context.Context, intentRef string) error
	Void(ctx context.Context, intentRef string, reason string) error
	CreateTransfer(ctx context.Context, treq external.TransferRequest) (string, error)
}

// Publisher mirrors messaging.Publisher; publish failures never fail a
// committed transition.
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// AuditIndexer is the optional read-side index over the audit trail.
type AuditIndexer interface {
	IndexTransition(ctx context.Context, t *models.StateTransition) error
	IndexPaymentEvent(ctx context.Context, e *models.PaymentEvent) error
}

// DeliveryCache is the optional fast-path dedup store for webhook deliveries.
type DeliveryCache interface {
	SeenDelivery(ctx context.Context, deliveryID string) (bool, error)
	MarkDelivery(ctx context.Context, deliveryID string, ttl time.Duration) error
}
