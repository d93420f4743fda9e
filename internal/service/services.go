package service

import (
	"context"
	"log/slog"
	"time"

	"coachbook/internal/metrics"
	"coachbook/internal/models"
)

// Knobs are the lifecycle timing parameters, mirrored from configuration.
type Knobs struct {
	ProvisionalLockTTL time.Duration
	PaymentWindow      time.Duration
	AutoResolveAfter   time.Duration
	CreateDedupWindow  time.Duration
	WebhookDedupWindow time.Duration
}

// BookingService implements the full booking and payment lifecycle. All
// mutations flow through ChangeSets applied atomically by the store; the
// service itself holds no state beyond its dependencies.
type BookingService struct {
	bookings   BookingStore
	coaches    CoachStore
	idem       IdempotencyStore
	ledger     LedgerStore
	audit      AuditStore
	provider   PaymentProvider
	publisher  Publisher
	indexer    AuditIndexer
	deliveries DeliveryCache
	knobs      Knobs

	// now is swapped in tests to pin the clock.
	now func() time.Time
}

type Deps struct {
	Bookings   BookingStore
	Coaches    CoachStore
	Idem       IdempotencyStore
	Ledger     LedgerStore
	Audit      AuditStore
	Provider   PaymentProvider
	Publisher  Publisher
	Indexer    AuditIndexer
	Deliveries DeliveryCache
	Knobs      Knobs
}

func NewBookingService(deps Deps) *BookingService {
	return &BookingService{
		bookings:   deps.Bookings,
		coaches:    deps.Coaches,
		idem:       deps.Idem,
		ledger:     deps.Ledger,
		audit:      deps.Audit,
		provider:   deps.Provider,
		publisher:  deps.Publisher,
		indexer:    deps.Indexer,
		deliveries: deps.Deliveries,
		knobs:      deps.Knobs,
		now:        time.Now,
	}
}

// apply commits a ChangeSet, bumps transition metrics and pushes the new audit
// records into the read-side index. Indexing is best effort; Postgres already
// holds the records.
func (s *BookingService) apply(ctx context.Context, cs *models.ChangeSet) error {
	if err := s.bookings.Apply(ctx, cs); err != nil {
		return err
	}

	for i := range cs.Transitions {
		metrics.Transitions.WithLabelValues(cs.Transitions[i].Field, cs.Transitions[i].NewValue).Inc()
	}

	if s.indexer != nil {
		for i := range cs.Transitions {
			if err := s.indexer.IndexTransition(ctx, &cs.Transitions[i]); err != nil {
				slog.Warn("Failed to index transition", "booking_id", cs.Transitions[i].BookingID, "error", err)
			}
		}
		for i := range cs.Events {
			if err := s.indexer.IndexPaymentEvent(ctx, &cs.Events[i]); err != nil {
				slog.Warn("Failed to index payment event", "booking_id", cs.Events[i].BookingID, "error", err)
			}
		}
	}
	return nil
}

// publish sends a domain event without letting a broker hiccup fail the
// already committed transition.
func (s *BookingService) publish(subject string, data interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(subject, data); err != nil {
		slog.Warn("Failed to publish event", "subject", subject, "error", err)
	}
}
