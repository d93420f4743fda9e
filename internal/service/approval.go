package service

import (
	"context"
	"fmt"

	"coachbook/internal/apperr"
	"coachbook/internal/logger"
	"coachbook/internal/models"
)

// AcceptBooking moves a reservation out of review. For individual and
// private-group bookings this opens the counterparty's payment window;
// public-group lessons go live for joins instead.
func (s *BookingService) AcceptBooking(ctx context.Context, actor models.Actor, bookingID int64) error {
	booking, detail, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if actor.ID != booking.CoachID && actor.Role != models.RoleAdmin {
		return apperr.ErrUnauthorized
	}
	if booking.ApprovalStatus != models.ApprovalPendingReview {
		return fmt.Errorf("%w: approval is %s", apperr.ErrInvalidState, booking.ApprovalStatus)
	}

	now := s.now()
	cs := &models.ChangeSet{Booking: booking, Detail: detail}

	booking.ApprovalStatus = models.ApprovalAccepted
	cs.Transition(booking.ID, nil, "approval_status",
		string(models.ApprovalPendingReview), string(models.ApprovalAccepted), &actor, "")

	var paymentDue models.BookingAcceptedEvent
	if booking.Type != models.TypePublicGroup {
		dueAt := now.Add(s.knobs.PaymentWindow)
		detail.Status = models.PaymentAwaitingClient
		detail.PaymentDueAt = &dueAt
		cs.Transition(booking.ID, nil, "payment_status",
			string(models.PaymentNotRequired), string(models.PaymentAwaitingClient), &actor, "")
		paymentDue.PaymentDueAt = dueAt
	}

	if err := s.apply(ctx, cs); err != nil {
		return fmt.Errorf("failed to accept booking: %w", err)
	}

	logger.WithBooking(booking.ID).Info("Booking accepted", "coach_id", booking.CoachID)

	paymentDue.BookingID = booking.ID
	paymentDue.CoachID = booking.CoachID
	paymentDue.CounterpartyID = booking.CounterpartyID
	paymentDue.Timestamp = now
	s.publish(models.EventBookingAccepted, paymentDue)
	return nil
}

// DeclineBooking rejects a reservation still in review. Nothing has been
// charged yet, so there is no compensation to run.
func (s *BookingService) DeclineBooking(ctx context.Context, actor models.Actor, bookingID int64) error {
	booking, _, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if actor.ID != booking.CoachID && actor.Role != models.RoleAdmin {
		return apperr.ErrUnauthorized
	}
	if booking.ApprovalStatus != models.ApprovalPendingReview {
		return fmt.Errorf("%w: approval is %s", apperr.ErrInvalidState, booking.ApprovalStatus)
	}

	booking.ApprovalStatus = models.ApprovalDeclined
	cs := &models.ChangeSet{Booking: booking}
	cs.Transition(booking.ID, nil, "approval_status",
		string(models.ApprovalPendingReview), string(models.ApprovalDeclined), &actor, "")

	if err := s.apply(ctx, cs); err != nil {
		return fmt.Errorf("failed to decline booking: %w", err)
	}

	logger.WithBooking(booking.ID).Info("Booking declined", "coach_id", booking.CoachID)

	s.publish(models.EventBookingDeclined, models.BookingDeclinedEvent{
		BookingID:      booking.ID,
		CounterpartyID: booking.CounterpartyID,
		Timestamp:      s.now(),
	})
	return nil
}

// CancelBooking tears a booking down from any still-active state and
// compensates money already moved: held authorizations are voided, captured
// funds are refunded. Public-group cancellation compensates every participant.
func (s *BookingService) CancelBooking(ctx context.Context, actor models.Actor, bookingID int64, reason string) error {
	booking, detail, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if actor.ID != booking.CoachID && actor.ID != booking.CounterpartyID && actor.Role != models.RoleAdmin {
		return apperr.ErrUnauthorized
	}
	if !booking.Active() {
		return fmt.Errorf("%w: approval is %s", apperr.ErrInvalidState, booking.ApprovalStatus)
	}
	if booking.FulfillmentStatus != models.FulfillmentScheduled {
		return fmt.Errorf("%w: fulfillment is %s", apperr.ErrInvalidState, booking.FulfillmentStatus)
	}

	return s.cancel(ctx, &actor, booking, detail, reason)
}

// cancel is the shared teardown used by user cancellation and the sweep's
// payment-window expiry. actor is nil for system-triggered teardown.
func (s *BookingService) cancel(ctx context.Context, actor *models.Actor, booking *models.Booking, detail *models.PaymentDetail, reason string) error {
	log := logger.WithBooking(booking.ID)
	now := s.now()

	cs := &models.ChangeSet{Booking: booking, Detail: detail}

	oldApproval := booking.ApprovalStatus
	booking.ApprovalStatus = models.ApprovalCancelled
	booking.CancelledAt = &now
	if reason != "" {
		booking.CancelReason = &reason
	}
	if actor != nil {
		id := actor.ID
		booking.CancelledBy = &id
	}
	cs.Transition(booking.ID, nil, "approval_status",
		string(oldApproval), string(models.ApprovalCancelled), actor, reason)

	// Compensate booking-level money. Provider failures abort the cancel so
	// nothing is marked cancelled while funds are still held.
	if detail.IntentRef != nil {
		switch detail.Status {
		case models.PaymentAuthorized:
			if err := s.provider.Void(ctx, *detail.IntentRef, reason); err != nil {
				return fmt.Errorf("failed to void authorization: %w", err)
			}
			s.transitionPayment(cs, booking.ID, nil, detail.Status, models.PaymentFailed, actor, "authorization voided")
			detail.Status = models.PaymentFailed
			cs.Event(booking.ID, nil, *detail.IntentRef, "void", detail.GrossCents)
		case models.PaymentCaptured:
			if err := s.provider.Refund(ctx, *detail.IntentRef); err != nil {
				return fmt.Errorf("failed to refund payment: %w", err)
			}
			s.transitionPayment(cs, booking.ID, nil, detail.Status, models.PaymentRefunded, actor, "cancelled after capture")
			detail.Status = models.PaymentRefunded
			cs.Event(booking.ID, nil, *detail.IntentRef, "refund", detail.GrossCents)
		}
	} else if detail.Status == models.PaymentAwaitingClient {
		s.transitionPayment(cs, booking.ID, nil, detail.Status, models.PaymentFailed, actor, "cancelled before payment")
		detail.Status = models.PaymentFailed
	}

	// Public-group teardown refunds every charged participant.
	if booking.Type == models.TypePublicGroup {
		participants, err := s.bookings.GetParticipants(ctx, booking.ID)
		if err != nil {
			return err
		}
		for i := range participants {
			p := &participants[i]
			if p.Status == models.ParticipantCancelled || p.IntentRef == nil {
				continue
			}
			if p.PaymentStatus == models.PaymentCaptured {
				if err := s.provider.Refund(ctx, *p.IntentRef); err != nil {
					return fmt.Errorf("failed to refund participant %d: %w", p.ID, err)
				}
				s.transitionPayment(cs, booking.ID, &p.ID, p.PaymentStatus, models.PaymentRefunded, actor, "lesson cancelled")
				p.PaymentStatus = models.PaymentRefunded
				cs.Event(booking.ID, &p.ID, *p.IntentRef, "refund", p.ChargeCents)
			}
			oldStatus := p.Status
			p.Status = models.ParticipantCancelled
			p.CancelledAt = &now
			cs.Transition(booking.ID, &p.ID, "participant_status",
				string(oldStatus), string(models.ParticipantCancelled), actor, reason)
			cs.Participants = append(cs.Participants, *p)
		}
	}

	if err := s.apply(ctx, cs); err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}

	log.Info("Booking cancelled", "reason", reason)

	s.publish(models.EventBookingCancelled, models.BookingCancelledEvent{
		BookingID:      booking.ID,
		CoachID:        booking.CoachID,
		CounterpartyID: booking.CounterpartyID,
		Reason:         reason,
		Timestamp:      now,
	})
	return nil
}

func (s *BookingService) transitionPayment(cs *models.ChangeSet, bookingID int64, participantID *int64, from, to models.PaymentStatus, actor *models.Actor, reason string) {
	cs.Transition(bookingID, participantID, "payment_status", string(from), string(to), actor, reason)
}

func (s *BookingService) loadBooking(ctx context.Context, bookingID int64) (*models.Booking, *models.PaymentDetail, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking == nil {
		return nil, nil, apperr.ErrNotFound
	}
	detail, err := s.bookings.GetDetail(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if detail == nil {
		return nil, nil, apperr.ErrNotFound
	}
	return booking, detail, nil
}
