package service

import (
	"context"
	"fmt"

	"coachbook/internal/apperr"
	"coachbook/internal/logger"
	"coachbook/internal/models"
)

// ConfirmCompletion records one side's word that the session happened.
// Individual and private-group bookings complete on dual confirmation, one
// from each side, in either order. Public-group lessons settle on the coach's
// confirmation alone.
func (s *BookingService) ConfirmCompletion(ctx context.Context, actor models.Actor, bookingID int64) error {
	booking, detail, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.ApprovalStatus != models.ApprovalAccepted {
		return fmt.Errorf("%w: approval is %s", apperr.ErrInvalidState, booking.ApprovalStatus)
	}
	if booking.FulfillmentStatus != models.FulfillmentScheduled {
		return fmt.Errorf("%w: fulfillment is %s", apperr.ErrInvalidState, booking.FulfillmentStatus)
	}
	now := s.now()
	if now.Before(booking.ScheduledEndAt) {
		return fmt.Errorf("%w: session has not ended yet", apperr.ErrInvalidState)
	}

	if booking.Type == models.TypePublicGroup {
		if actor.ID != booking.CoachID && actor.Role != models.RoleAdmin {
			return apperr.ErrUnauthorized
		}
		return s.settleGroup(ctx, &actor, booking, detail, false)
	}

	cs := &models.ChangeSet{Booking: booking, Detail: detail}

	// Reconfirming a side that already confirmed is a no-op, not an error;
	// clients retry these calls.
	switch actor.ID {
	case booking.CoachID:
		if booking.CoachConfirmedAt != nil {
			return nil
		}
		booking.CoachConfirmedAt = &now
		cs.Transition(booking.ID, nil, "coach_confirmed", "", "confirmed", &actor, "")
	case booking.CounterpartyID:
		if detail.CounterpartyConfirmedAt != nil {
			return nil
		}
		detail.CounterpartyConfirmedAt = &now
		cs.Transition(booking.ID, nil, "counterparty_confirmed", "", "confirmed", &actor, "")
	default:
		return apperr.ErrUnauthorized
	}

	completed := booking.CoachConfirmedAt != nil && detail.CounterpartyConfirmedAt != nil
	if completed {
		booking.FulfillmentStatus = models.FulfillmentCompleted
		cs.Transition(booking.ID, nil, "fulfillment_status",
			string(models.FulfillmentScheduled), string(models.FulfillmentCompleted), &actor, "")
	}

	if err := s.apply(ctx, cs); err != nil {
		return fmt.Errorf("failed to record confirmation: %w", err)
	}

	logger.WithBooking(booking.ID).Info("Completion confirmed",
		"actor_id", actor.ID, "completed", completed)

	if completed {
		s.publish(models.EventBookingCompleted, models.BookingCompletedEvent{
			BookingID:      booking.ID,
			CoachID:        booking.CoachID,
			CounterpartyID: booking.CounterpartyID,
			Timestamp:      now,
		})
		s.payoutOnCompletion(ctx, booking)
	}
	return nil
}

// settleGroup closes out a public-group lesson: fulfillment completes and
// every still-active participant moves to completed. The sweep reuses this
// with a nil actor when a coach never confirms.
func (s *BookingService) settleGroup(ctx context.Context, actor *models.Actor, booking *models.Booking, detail *models.PaymentDetail, autoResolved bool) error {
	now := s.now()
	cs := &models.ChangeSet{Booking: booking, Detail: detail}

	reason := ""
	if autoResolved {
		reason = models.SystemActorReason
	}

	booking.FulfillmentStatus = models.FulfillmentCompleted
	booking.CoachConfirmedAt = &now
	cs.Transition(booking.ID, nil, "fulfillment_status",
		string(models.FulfillmentScheduled), string(models.FulfillmentCompleted), actor, reason)

	participants, err := s.bookings.GetParticipants(ctx, booking.ID)
	if err != nil {
		return err
	}
	for i := range participants {
		p := &participants[i]
		if p.Status != models.ParticipantAccepted {
			continue
		}
		p.Status = models.ParticipantCompleted
		cs.Transition(booking.ID, &p.ID, "participant_status",
			string(models.ParticipantAccepted), string(models.ParticipantCompleted), actor, reason)
		cs.Participants = append(cs.Participants, *p)
	}

	if err := s.apply(ctx, cs); err != nil {
		return fmt.Errorf("failed to settle lesson: %w", err)
	}

	logger.WithBooking(booking.ID).Info("Group lesson settled",
		"participants", len(cs.Participants), "auto_resolved", autoResolved)

	s.publish(models.EventBookingCompleted, models.BookingCompletedEvent{
		BookingID:      booking.ID,
		CoachID:        booking.CoachID,
		CounterpartyID: booking.CounterpartyID,
		AutoResolved:   autoResolved,
		Timestamp:      now,
	})
	s.payoutOnCompletion(ctx, booking)
	return nil
}
