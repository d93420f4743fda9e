package service

import (
	"context"

	"coachbook/internal/apperr"
	"coachbook/internal/logger"
	"coachbook/internal/metrics"
	"coachbook/internal/models"
)

// HandleProviderEvent processes one provider webhook delivery. Deliveries are
// at-least-once: the delivery id is deduplicated through the cache fast path
// and then the authoritative idempotency table, so a replay is acknowledged
// without reprocessing. Handlers themselves are written to be safe against
// out-of-order arrival.
func (s *BookingService) HandleProviderEvent(ctx context.Context, event *models.ProviderEvent) error {
	log := logger.WithContext(ctx)

	if event.DeliveryID == "" || event.Kind == "" {
		metrics.WebhookEvents.WithLabelValues(event.Kind, "malformed").Inc()
		return apperr.ErrMalformedEvent
	}

	if s.deliveries != nil {
		seen, err := s.deliveries.SeenDelivery(ctx, event.DeliveryID)
		if err != nil {
			log.Warn("Delivery cache lookup failed, falling through to database", "error", err)
		} else if seen {
			metrics.WebhookEvents.WithLabelValues(event.Kind, "duplicate").Inc()
			return nil
		}
	}

	claim, err := s.idem.Claim(ctx, models.ScopeWebhook, event.DeliveryID, s.knobs.WebhookDedupWindow)
	if err != nil {
		return err
	}
	if !claim.Won {
		metrics.WebhookEvents.WithLabelValues(event.Kind, "duplicate").Inc()
		return nil
	}

	if err := s.dispatchProviderEvent(ctx, event); err != nil {
		// Release the claim so the provider's retry of this delivery can run
		// the handler again.
		if relErr := s.idem.Release(ctx, models.ScopeWebhook, event.DeliveryID); relErr != nil {
			log.Error("Failed to release webhook claim", "delivery_id", event.DeliveryID, "error", relErr)
		}
		metrics.WebhookEvents.WithLabelValues(event.Kind, "error").Inc()
		return err
	}

	if s.deliveries != nil {
		if err := s.deliveries.MarkDelivery(ctx, event.DeliveryID, s.knobs.WebhookDedupWindow); err != nil {
			log.Warn("Failed to mark delivery in cache", "error", err)
		}
	}

	metrics.WebhookEvents.WithLabelValues(event.Kind, "processed").Inc()
	return nil
}

func (s *BookingService) dispatchProviderEvent(ctx context.Context, event *models.ProviderEvent) error {
	switch event.Kind {
	case models.EventKindCaptureSucceeded:
		return s.onCaptureSucceeded(ctx, event)
	case models.EventKindCaptureFailed:
		return s.onCaptureFailed(ctx, event)
	case models.EventKindRefundSucceeded:
		return s.onRefundSucceeded(ctx, event)
	case models.EventKindTransferCreated:
		return s.onTransferCreated(ctx, event)
	case models.EventKindTransferReversed:
		return s.onTransferReversed(ctx, event)
	case models.EventKindPayoutPaid, models.EventKindPayoutFailed:
		return s.onPayoutReported(ctx, event)
	case models.EventKindDisputeOpened:
		return s.onDisputeOpened(ctx, event)
	case models.EventKindDisputeClosed:
		return s.onDisputeClosed(ctx, event)
	default:
		// Unknown kinds are acknowledged so the provider stops retrying;
		// the delivery id stays recorded.
		logger.WithContext(ctx).Warn("Ignoring unknown provider event kind",
			"kind", event.Kind, "delivery_id", event.DeliveryID)
		return nil
	}
}

// locateByIntent resolves an intent reference to either a booking-level
// payment or a participant seat.
func (s *BookingService) locateByIntent(ctx context.Context, intentRef string) (*models.Booking, *models.PaymentDetail, *models.Participant, error) {
	if intentRef == "" {
		return nil, nil, nil, apperr.ErrMalformedEvent
	}

	booking, err := s.bookings.GetByIntentRef(ctx, intentRef)
	if err != nil {
		return nil, nil, nil, err
	}
	if booking != nil {
		detail, err := s.bookings.GetDetail(ctx, booking.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		return booking, detail, nil, nil
	}

	participant, err := s.bookings.GetParticipantByIntent(ctx, intentRef)
	if err != nil {
		return nil, nil, nil, err
	}
	if participant == nil {
		return nil, nil, nil, apperr.ErrNotFound
	}
	booking, err = s.bookings.GetByID(ctx, participant.BookingID)
	if err != nil {
		return nil, nil, nil, err
	}
	return booking, nil, participant, nil
}

func (s *BookingService) onCaptureSucceeded(ctx context.Context, event *models.ProviderEvent) error {
	booking, detail, participant, err := s.locateByIntent(ctx, event.IntentRef)
	if err != nil {
		return err
	}

	cs := &models.ChangeSet{}
	if participant != nil {
		if participant.PaymentStatus == models.PaymentCaptured || models.TerminalPayment(participant.PaymentStatus) {
			return nil
		}
		s.transitionPayment(cs, booking.ID, &participant.ID, participant.PaymentStatus, models.PaymentCaptured, nil, models.SystemActorReason)
		participant.PaymentStatus = models.PaymentCaptured
		cs.Participants = append(cs.Participants, *participant)
		cs.Event(booking.ID, &participant.ID, event.IntentRef, "capture", event.AmountCents)
	} else {
		if detail.Status == models.PaymentCaptured || models.TerminalPayment(detail.Status) {
			return nil
		}
		s.transitionPayment(cs, booking.ID, nil, detail.Status, models.PaymentCaptured, nil, models.SystemActorReason)
		detail.Status = models.PaymentCaptured
		cs.Detail = detail
		cs.Event(booking.ID, nil, event.IntentRef, "capture", event.AmountCents)
	}

	if err := s.apply(ctx, cs); err != nil {
		return err
	}

	s.publish(models.EventPaymentCaptured, models.PaymentCapturedEvent{
		BookingID:   booking.ID,
		IntentRef:   event.IntentRef,
		AmountCents: event.AmountCents,
		Timestamp:   s.now(),
	})
	return nil
}

func (s *BookingService) onCaptureFailed(ctx context.Context, event *models.ProviderEvent) error {
	booking, detail, participant, err := s.locateByIntent(ctx, event.IntentRef)
	if err != nil {
		return err
	}

	if participant != nil {
		// A captured seat cannot retroactively fail; the provider sends a
		// refund or dispute event for that.
		if participant.PaymentStatus != models.PaymentAuthorized {
			return nil
		}
		cs := &models.ChangeSet{}
		s.transitionPayment(cs, booking.ID, &participant.ID, participant.PaymentStatus, models.PaymentFailed, nil, event.Reason)
		participant.PaymentStatus = models.PaymentFailed
		cs.Participants = append(cs.Participants, *participant)
		cs.Event(booking.ID, &participant.ID, event.IntentRef, "capture_failed", event.AmountCents)
		return s.apply(ctx, cs)
	}

	if detail.Status != models.PaymentAuthorized && detail.Status != models.PaymentAwaitingClient {
		return nil
	}
	if !booking.Active() || booking.FulfillmentStatus != models.FulfillmentScheduled {
		return nil
	}

	// A failed capture leaves nothing to collect. Tearing the booking down
	// releases the slot instead of leaving it accepted-but-unpaid forever.
	cs := &models.ChangeSet{}
	cs.Event(booking.ID, nil, event.IntentRef, "capture_failed", event.AmountCents)
	if err := s.apply(ctx, cs); err != nil {
		return err
	}
	return s.cancel(ctx, nil, booking, detail, "payment failed")
}

func (s *BookingService) onRefundSucceeded(ctx context.Context, event *models.ProviderEvent) error {
	booking, detail, participant, err := s.locateByIntent(ctx, event.IntentRef)
	if err != nil {
		if err == apperr.ErrNotFound {
			// A refunded seat of a participant who already left has no row to
			// update; the delivery is acknowledged.
			return nil
		}
		return err
	}

	cs := &models.ChangeSet{}
	if participant != nil {
		if participant.PaymentStatus == models.PaymentRefunded {
			return nil
		}
		s.transitionPayment(cs, booking.ID, &participant.ID, participant.PaymentStatus, models.PaymentRefunded, nil, models.SystemActorReason)
		participant.PaymentStatus = models.PaymentRefunded
		cs.Participants = append(cs.Participants, *participant)
	} else {
		if detail.Status == models.PaymentRefunded {
			return nil
		}
		s.transitionPayment(cs, booking.ID, nil, detail.Status, models.PaymentRefunded, nil, models.SystemActorReason)
		detail.Status = models.PaymentRefunded
		cs.Detail = detail
	}
	cs.Event(booking.ID, participantIDOf(participant), event.IntentRef, "refund", event.AmountCents)

	if err := s.apply(ctx, cs); err != nil {
		return err
	}

	s.publish(models.EventPaymentRefunded, models.PaymentRefundedEvent{
		BookingID:     booking.ID,
		ParticipantID: participantIDOf(participant),
		IntentRef:     event.IntentRef,
		Timestamp:     s.now(),
	})
	return nil
}

// onTransferCreated reconciles a payout transfer the provider reports, which
// covers the crash window between a successful transfer call and the local
// reference write. The reference is the at-most-once latch, so it is written
// only for a completed booking whose coach destination matches the event;
// anything else is acknowledged and left alone. The conditional write makes a
// replay a no-op.
func (s *BookingService) onTransferCreated(ctx context.Context, event *models.ProviderEvent) error {
	if event.TransferRef == "" {
		return apperr.ErrMalformedEvent
	}
	if event.BookingID == 0 {
		logger.WithContext(ctx).Warn("Transfer event without booking reference",
			"transfer_ref", event.TransferRef)
		return nil
	}
	log := logger.WithBooking(event.BookingID)

	booking, err := s.bookings.GetByID(ctx, event.BookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		log.Warn("Transfer event for unknown booking", "transfer_ref", event.TransferRef)
		return nil
	}
	if booking.FulfillmentStatus != models.FulfillmentCompleted {
		log.Warn("Ignoring transfer event before completion",
			"transfer_ref", event.TransferRef, "fulfillment", booking.FulfillmentStatus)
		return nil
	}

	coach, err := s.coaches.GetByID(ctx, booking.CoachID)
	if err != nil {
		return err
	}
	if coach == nil || coach.PayoutDestination == nil || event.Destination != *coach.PayoutDestination {
		log.Warn("Ignoring transfer event with mismatched destination",
			"transfer_ref", event.TransferRef, "destination", event.Destination)
		return nil
	}

	set, err := s.bookings.SetTransferRef(ctx, event.BookingID, event.TransferRef)
	if err != nil {
		return err
	}
	if set {
		cs := &models.ChangeSet{}
		cs.Event(event.BookingID, nil, event.TransferRef, "transfer", event.AmountCents)
		return s.apply(ctx, cs)
	}
	return nil
}

// onTransferReversed freezes a booking whose payout the provider clawed back:
// fulfillment moves to disputed and the payment records the forced refund. The
// transfer reference stays in place so no second transfer can fire while an
// operator untangles it.
func (s *BookingService) onTransferReversed(ctx context.Context, event *models.ProviderEvent) error {
	if event.TransferRef == "" {
		return apperr.ErrMalformedEvent
	}
	if event.BookingID == 0 {
		return nil
	}

	booking, err := s.bookings.GetByID(ctx, event.BookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		return nil
	}
	detail, err := s.bookings.GetDetail(ctx, booking.ID)
	if err != nil {
		return err
	}
	if detail == nil {
		return nil
	}

	cs := &models.ChangeSet{Booking: booking}
	if booking.FulfillmentStatus != models.FulfillmentDisputed {
		cs.Transition(booking.ID, nil, "fulfillment_status",
			string(booking.FulfillmentStatus), string(models.FulfillmentDisputed), nil, event.Reason)
		booking.FulfillmentStatus = models.FulfillmentDisputed
	}
	if detail.Status != models.PaymentRefunded {
		s.transitionPayment(cs, booking.ID, nil, detail.Status, models.PaymentRefunded, nil, event.Reason)
		detail.Status = models.PaymentRefunded
		cs.Detail = detail
	}
	cs.Event(booking.ID, nil, event.TransferRef, "transfer_reversed", event.AmountCents)
	if err := s.apply(ctx, cs); err != nil {
		return err
	}

	logger.WithBooking(event.BookingID).Error("Payout transfer reversed by provider",
		"transfer_ref", event.TransferRef, "reason", event.Reason)
	return nil
}

func (s *BookingService) onPayoutReported(ctx context.Context, event *models.ProviderEvent) error {
	if event.PayoutID == "" {
		return apperr.ErrMalformedEvent
	}

	status := "paid"
	if event.Kind == models.EventKindPayoutFailed {
		status = "failed"
	}
	return s.ledger.Upsert(ctx, &models.PayoutLedgerEntry{
		PayoutID:    event.PayoutID,
		Status:      status,
		AmountCents: event.AmountCents,
	})
}

func (s *BookingService) onDisputeOpened(ctx context.Context, event *models.ProviderEvent) error {
	booking, detail, participant, err := s.locateByIntent(ctx, event.IntentRef)
	if err != nil {
		return err
	}

	cs := &models.ChangeSet{Booking: booking}
	if booking.FulfillmentStatus != models.FulfillmentDisputed {
		cs.Transition(booking.ID, nil, "fulfillment_status",
			string(booking.FulfillmentStatus), string(models.FulfillmentDisputed), nil, event.Reason)
		booking.FulfillmentStatus = models.FulfillmentDisputed
	}

	if participant != nil {
		s.transitionPayment(cs, booking.ID, &participant.ID, participant.PaymentStatus, models.PaymentDisputed, nil, event.Reason)
		participant.PaymentStatus = models.PaymentDisputed
		cs.Participants = append(cs.Participants, *participant)
	} else if detail.Status != models.PaymentDisputed {
		s.transitionPayment(cs, booking.ID, nil, detail.Status, models.PaymentDisputed, nil, event.Reason)
		detail.Status = models.PaymentDisputed
		cs.Detail = detail
	}
	cs.Event(booking.ID, participantIDOf(participant), event.IntentRef, "dispute_opened", event.AmountCents)

	if err := s.apply(ctx, cs); err != nil {
		return err
	}

	s.publish(models.EventDisputeOpened, models.DisputeOpenedEvent{
		BookingID: booking.ID,
		Reason:    event.Reason,
		Timestamp: s.now(),
	})
	return nil
}

// onDisputeClosed resolves a dispute: a win restores the captured payment, a
// loss records the provider's forced refund. Fulfillment stays disputed for an
// operator to close out.
func (s *BookingService) onDisputeClosed(ctx context.Context, event *models.ProviderEvent) error {
	booking, detail, participant, err := s.locateByIntent(ctx, event.IntentRef)
	if err != nil {
		return err
	}

	outcome := models.PaymentCaptured
	if event.Reason == "lost" {
		outcome = models.PaymentRefunded
	}

	cs := &models.ChangeSet{}
	if participant != nil {
		if participant.PaymentStatus != models.PaymentDisputed {
			return nil
		}
		s.transitionPayment(cs, booking.ID, &participant.ID, models.PaymentDisputed, outcome, nil, event.Reason)
		participant.PaymentStatus = outcome
		cs.Participants = append(cs.Participants, *participant)
	} else {
		if detail.Status != models.PaymentDisputed {
			return nil
		}
		s.transitionPayment(cs, booking.ID, nil, models.PaymentDisputed, outcome, nil, event.Reason)
		detail.Status = outcome
		cs.Detail = detail
	}
	cs.Event(booking.ID, participantIDOf(participant), event.IntentRef, "dispute_closed", event.AmountCents)

	return s.apply(ctx, cs)
}

func participantIDOf(p *models.Participant) *int64 {
	if p == nil {
		return nil
	}
	return &p.ID
}
