package service

import (
	"context"
	"fmt"

	"coachbook/internal/apperr"
	"coachbook/internal/external"
	"coachbook/internal/logger"
	"coachbook/internal/models"
	"coachbook/internal/retry"
)

// ConfirmPayment settles the counterparty's charge on an accepted individual
// or private-group booking. The client completes the provider checkout first;
// this call verifies the resulting intent, captures the held funds and records
// the transition. The provider is eventually consistent, so the intent check
// is polled before giving up.
func (s *BookingService) ConfirmPayment(ctx context.Context, actor models.Actor, bookingID int64, intentRef string) error {
	booking, detail, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if actor.ID != booking.CounterpartyID && actor.Role != models.RoleAdmin {
		return apperr.ErrUnauthorized
	}
	if booking.Type == models.TypePublicGroup {
		return fmt.Errorf("%w: public-group lessons are paid per seat", apperr.ErrInvalidState)
	}
	if booking.ApprovalStatus != models.ApprovalAccepted {
		return fmt.Errorf("%w: approval is %s", apperr.ErrInvalidState, booking.ApprovalStatus)
	}
	if detail.Status != models.PaymentAwaitingClient && detail.Status != models.PaymentAuthorized {
		return fmt.Errorf("%w: payment is %s", apperr.ErrInvalidState, detail.Status)
	}

	now := s.now()
	if detail.PaymentDueAt != nil && now.After(*detail.PaymentDueAt) {
		return apperr.ErrDeadlineExpired
	}

	intent, err := s.checkIntentSettled(ctx, intentRef)
	if err != nil {
		return err
	}
	if intent.AmountCents != detail.GrossCents {
		return fmt.Errorf("%w: intent amount %d does not match charge %d",
			apperr.ErrInvalidState, intent.AmountCents, detail.GrossCents)
	}

	cs := &models.ChangeSet{Detail: detail}
	oldStatus := detail.Status

	detail.IntentRef = &intentRef
	switch intent.Status {
	case external.IntentRequiresCapture:
		s.transitionPayment(cs, booking.ID, nil, oldStatus, models.PaymentAuthorized, &actor, "")
		if err := s.provider.Capture(ctx, intentRef, detail.GrossCents); err != nil {
			// Leave the hold recorded; the capture webhook or a retry settles it.
			detail.Status = models.PaymentAuthorized
			if applyErr := s.apply(ctx, cs); applyErr != nil {
				return applyErr
			}
			return fmt.Errorf("capture failed: %w", err)
		}
		s.transitionPayment(cs, booking.ID, nil, models.PaymentAuthorized, models.PaymentCaptured, &actor, "")
	case external.IntentSucceeded:
		s.transitionPayment(cs, booking.ID, nil, oldStatus, models.PaymentCaptured, &actor, "")
	default:
		return fmt.Errorf("%w: intent is %s", apperr.ErrInvalidState, intent.Status)
	}

	detail.Status = models.PaymentCaptured
	cs.Event(booking.ID, nil, intentRef, "capture", detail.GrossCents)

	if err := s.apply(ctx, cs); err != nil {
		return fmt.Errorf("failed to record capture: %w", err)
	}

	logger.WithBooking(booking.ID).Info("Payment captured",
		"intent_ref", intentRef, "amount_cents", detail.GrossCents)

	s.publish(models.EventPaymentCaptured, models.PaymentCapturedEvent{
		BookingID:   booking.ID,
		IntentRef:   intentRef,
		AmountCents: detail.GrossCents,
		Timestamp:   now,
	})
	return nil
}

// checkIntentSettled polls the provider until the intent reaches a state we
// can act on. A fresh checkout can lag a few hundred milliseconds behind the
// client redirect.
func (s *BookingService) checkIntentSettled(ctx context.Context, intentRef string) (*external.IntentStatus, error) {
	var intent *external.IntentStatus
	err := retry.DefaultProvider.Do(ctx, func() (bool, error) {
		var err error
		intent, err = s.provider.CheckIntent(ctx, intentRef)
		if err != nil {
			return apperr.IsRetryable(err), err
		}
		if intent.Status == external.IntentRequiresPaymentMethod {
			return true, fmt.Errorf("%w: intent not yet confirmed", apperr.ErrInvalidState)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// GetBooking returns the full booking view for a party to the booking.
func (s *BookingService) GetBooking(ctx context.Context, actor models.Actor, bookingID int64) (*models.BookingResponse, error) {
	booking, detail, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	participants, err := s.bookings.GetParticipants(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if !s.mayView(actor, booking, participants) {
		return nil, apperr.ErrUnauthorized
	}

	return &models.BookingResponse{
		Booking:      booking,
		Detail:       detail,
		Participants: participants,
	}, nil
}

// ListBookings returns the caller's bookings, both sides of the table.
func (s *BookingService) ListBookings(ctx context.Context, actor models.Actor) ([]models.ListBookingsResponseItem, error) {
	bookings, err := s.bookings.ListByUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	items := make([]models.ListBookingsResponseItem, len(bookings))
	for i, b := range bookings {
		items[i] = models.ListBookingsResponseItem{
			ID:                b.ID,
			CoachID:           b.CoachID,
			Type:              b.Type,
			ScheduledStartAt:  b.ScheduledStartAt,
			ScheduledEndAt:    b.ScheduledEndAt,
			ApprovalStatus:    b.ApprovalStatus,
			FulfillmentStatus: b.FulfillmentStatus,
		}
	}
	return items, nil
}

func (s *BookingService) mayView(actor models.Actor, booking *models.Booking, participants []models.Participant) bool {
	if actor.Role == models.RoleAdmin || actor.ID == booking.CoachID || actor.ID == booking.CounterpartyID {
		return true
	}
	for i := range participants {
		if participants[i].UserID == actor.ID {
			return true
		}
	}
	return false
}
