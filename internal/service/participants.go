package service

import (
	"context"
	"fmt"

	"coachbook/internal/apperr"
	"coachbook/internal/external"
	"coachbook/internal/logger"
	"coachbook/internal/models"
)

// JoinLesson adds the caller to an open public-group lesson. The seat is
// charged up front: the participant's checkout intent is verified against the
// seat price and captured before the row is committed.
func (s *BookingService) JoinLesson(ctx context.Context, actor models.Actor, bookingID int64, intentRef string) (*models.Participant, error) {
	booking, _, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Type != models.TypePublicGroup {
		return nil, fmt.Errorf("%w: not a public-group lesson", apperr.ErrInvalidState)
	}
	if booking.ApprovalStatus != models.ApprovalAccepted {
		return nil, fmt.Errorf("%w: lesson is not open for joins", apperr.ErrInvalidState)
	}
	now := s.now()
	if !now.Before(booking.ScheduledStartAt) {
		return nil, fmt.Errorf("%w: lesson already started", apperr.ErrInvalidState)
	}
	if actor.ID == booking.CoachID {
		return nil, apperr.ErrUnauthorized
	}

	participants, err := s.bookings.GetParticipants(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	for i := range participants {
		if participants[i].UserID == actor.ID {
			return nil, apperr.Conflict(apperr.ConflictDuplicate)
		}
	}

	coach, err := s.coaches.GetByID(ctx, booking.CoachID)
	if err != nil {
		return nil, err
	}
	if coach == nil || booking.SeatPriceCents == nil {
		return nil, apperr.ErrMisconfiguredPricing
	}

	pricing, err := PriceSeat(*booking.SeatPriceCents, coach.PlatformFeePct)
	if err != nil {
		return nil, err
	}

	intent, err := s.checkIntentSettled(ctx, intentRef)
	if err != nil {
		return nil, err
	}
	if intent.AmountCents != pricing.GrossCents {
		return nil, fmt.Errorf("%w: intent amount %d does not match seat price %d",
			apperr.ErrInvalidState, intent.AmountCents, pricing.GrossCents)
	}
	if intent.Status == external.IntentRequiresCapture {
		if err := s.provider.Capture(ctx, intentRef, pricing.GrossCents); err != nil {
			return nil, fmt.Errorf("seat capture failed: %w", err)
		}
	}

	participant := &models.Participant{
		BookingID:          booking.ID,
		UserID:             actor.ID,
		Status:             models.ParticipantAccepted,
		PaymentStatus:      models.PaymentCaptured,
		ChargeCents:        pricing.GrossCents,
		CoachEarningsCents: pricing.CoachPayoutCents,
		IntentRef:          &intentRef,
		AuthorizedAt:       &now,
	}

	transitions := []models.StateTransition{
		{
			Field:    "participant_status",
			OldValue: "",
			NewValue: string(models.ParticipantAccepted),
			ActorID:  &actor.ID,
		},
		{
			Field:    "payment_status",
			OldValue: string(models.PaymentNotRequired),
			NewValue: string(models.PaymentCaptured),
			ActorID:  &actor.ID,
		},
	}

	if err := s.bookings.AddParticipant(ctx, participant, transitions); err != nil {
		// The seat money is captured but the row did not land. Refund rather
		// than hold funds against nothing.
		if refundErr := s.provider.Refund(ctx, intentRef); refundErr != nil {
			logger.WithBooking(booking.ID).Error("Failed to refund orphaned seat capture",
				"intent_ref", intentRef, "error", refundErr)
		}
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}

	logger.WithBooking(booking.ID).Info("Participant joined",
		"participant_id", participant.ID, "charge_cents", pricing.GrossCents)

	s.publish(models.EventPaymentCaptured, models.PaymentCapturedEvent{
		BookingID:     booking.ID,
		ParticipantID: &participant.ID,
		IntentRef:     intentRef,
		AmountCents:   pricing.GrossCents,
		Timestamp:     now,
	})
	return participant, nil
}

// LeaveLesson removes the caller from a public-group lesson before it starts,
// refunding the seat. This is the only physical delete in the lifecycle; the
// departure stays visible in the audit trail.
func (s *BookingService) LeaveLesson(ctx context.Context, actor models.Actor, bookingID int64) error {
	booking, _, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.Type != models.TypePublicGroup {
		return fmt.Errorf("%w: not a public-group lesson", apperr.ErrInvalidState)
	}
	if !s.now().Before(booking.ScheduledStartAt) {
		return fmt.Errorf("%w: lesson already started", apperr.ErrInvalidState)
	}

	participants, err := s.bookings.GetParticipants(ctx, bookingID)
	if err != nil {
		return err
	}
	var mine *models.Participant
	for i := range participants {
		if participants[i].UserID == actor.ID {
			mine = &participants[i]
			break
		}
	}
	if mine == nil {
		return apperr.ErrNotFound
	}

	if mine.PaymentStatus == models.PaymentCaptured && mine.IntentRef != nil {
		if err := s.provider.Refund(ctx, *mine.IntentRef); err != nil {
			return fmt.Errorf("failed to refund seat: %w", err)
		}
	}

	transitions := []models.StateTransition{{
		BookingID:     booking.ID,
		ParticipantID: &mine.ID,
		Field:         "participant_status",
		OldValue:      string(mine.Status),
		NewValue:      "left",
		ActorID:       &actor.ID,
	}}

	if err := s.bookings.RemoveParticipant(ctx, mine.ID, transitions); err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}

	logger.WithBooking(booking.ID).Info("Participant left", "participant_id", mine.ID)

	if mine.IntentRef != nil {
		s.publish(models.EventPaymentRefunded, models.PaymentRefundedEvent{
			BookingID:     booking.ID,
			ParticipantID: &mine.ID,
			IntentRef:     *mine.IntentRef,
			Timestamp:     s.now(),
		})
	}
	return nil
}
