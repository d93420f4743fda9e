package service

import (
	"context"

	"coachbook/internal/logger"
	"coachbook/internal/metrics"
	"coachbook/internal/models"
)

// Sweep runs the daily auto-resolution pass: expire accepted bookings whose
// payment window lapsed, force-complete dual-confirm bookings stuck on a
// silent counterparty, and settle public-group lessons whose coach never
// confirmed. One failing booking never stops the rest of the backlog.
func (s *BookingService) Sweep(ctx context.Context) (*models.SweepReport, error) {
	log := logger.Get()
	now := s.now()
	report := &models.SweepReport{}

	expired, err := s.bookings.ListExpiredUnpaid(ctx, now)
	if err != nil {
		return report, err
	}
	for i := range expired {
		b := &expired[i]
		detail, err := s.bookings.GetDetail(ctx, b.ID)
		if err != nil || detail == nil {
			report.Failures++
			metrics.SweepProcessed.WithLabelValues("expired_unpaid", "error").Inc()
			log.Error("Sweep failed to load payment detail", "booking_id", b.ID, "error", err)
			continue
		}
		if err := s.cancel(ctx, nil, b, detail, "payment window expired"); err != nil {
			report.Failures++
			metrics.SweepProcessed.WithLabelValues("expired_unpaid", "error").Inc()
			log.Error("Sweep failed to expire booking", "booking_id", b.ID, "error", err)
			continue
		}
		report.ExpiredUnpaid++
		metrics.SweepProcessed.WithLabelValues("expired_unpaid", "ok").Inc()
	}

	cutoff := now.Add(-s.knobs.AutoResolveAfter)

	stale, err := s.bookings.ListStaleDualConfirm(ctx, cutoff)
	if err != nil {
		return report, err
	}
	for i := range stale {
		if err := s.forceComplete(ctx, &stale[i]); err != nil {
			report.Failures++
			metrics.SweepProcessed.WithLabelValues("force_confirm", "error").Inc()
			log.Error("Sweep failed to force-complete booking", "booking_id", stale[i].ID, "error", err)
			continue
		}
		report.ForceConfirmed++
		metrics.SweepProcessed.WithLabelValues("force_confirm", "ok").Inc()
	}

	groups, err := s.bookings.ListStalePublicGroup(ctx, cutoff)
	if err != nil {
		return report, err
	}
	for i := range groups {
		b := &groups[i]
		detail, err := s.bookings.GetDetail(ctx, b.ID)
		if err != nil || detail == nil {
			report.Failures++
			metrics.SweepProcessed.WithLabelValues("group_settle", "error").Inc()
			continue
		}
		if err := s.settleGroup(ctx, nil, b, detail, true); err != nil {
			report.Failures++
			metrics.SweepProcessed.WithLabelValues("group_settle", "error").Inc()
			log.Error("Sweep failed to settle lesson", "booking_id", b.ID, "error", err)
			continue
		}
		report.GroupSettled++
		metrics.SweepProcessed.WithLabelValues("group_settle", "ok").Inc()
	}

	if purged, err := s.idem.PurgeExpired(ctx); err != nil {
		log.Warn("Sweep failed to purge idempotency keys", "error", err)
	} else if purged > 0 {
		log.Info("Purged expired idempotency keys", "count", purged)
	}

	log.Info("Sweep complete",
		"expired_unpaid", report.ExpiredUnpaid,
		"force_confirmed", report.ForceConfirmed,
		"group_settled", report.GroupSettled,
		"failures", report.Failures)
	return report, nil
}

// forceComplete resolves a dual-confirm booking where the coach confirmed and
// the counterparty stayed silent past the grace period. Silence counts as
// agreement; the coach should not wait on their money forever.
func (s *BookingService) forceComplete(ctx context.Context, booking *models.Booking) error {
	detail, err := s.bookings.GetDetail(ctx, booking.ID)
	if err != nil {
		return err
	}
	if detail == nil {
		return nil
	}

	now := s.now()
	cs := &models.ChangeSet{Booking: booking, Detail: detail}

	detail.CounterpartyConfirmedAt = &now
	cs.Transition(booking.ID, nil, "counterparty_confirmed", "", "confirmed", nil, models.SystemActorReason)

	booking.FulfillmentStatus = models.FulfillmentCompleted
	cs.Transition(booking.ID, nil, "fulfillment_status",
		string(models.FulfillmentScheduled), string(models.FulfillmentCompleted), nil, models.SystemActorReason)

	if err := s.apply(ctx, cs); err != nil {
		return err
	}

	s.publish(models.EventBookingCompleted, models.BookingCompletedEvent{
		BookingID:      booking.ID,
		CoachID:        booking.CoachID,
		CounterpartyID: booking.CounterpartyID,
		AutoResolved:   true,
		Timestamp:      now,
	})
	s.payoutOnCompletion(ctx, booking)
	return nil
}
