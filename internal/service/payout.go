package service

import (
	"context"
	"fmt"

	"coachbook/internal/apperr"
	"coachbook/internal/external"
	"coachbook/internal/logger"
	"coachbook/internal/metrics"
	"coachbook/internal/models"
)

// IssuePayout transfers the coach's earnings for a completed booking. The
// transfer happens at most once: a conditional claim on the payment row keeps
// concurrent callers out, the provider call carries an idempotency key, and
// the transfer reference is written only while still unset. A replayed request
// after success reports AlreadyPaid instead of moving money again.
//
// Completion invokes the same guarded transfer automatically; this endpoint
// is the retry path when that attempt failed.
func (s *BookingService) IssuePayout(ctx context.Context, actor models.Actor, bookingID int64) (*models.PayoutResponse, error) {
	booking, detail, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.ID != booking.CoachID && actor.Role != models.RoleAdmin {
		return nil, apperr.ErrUnauthorized
	}
	return s.issuePayout(ctx, booking, detail)
}

// payoutOnCompletion runs the payout right after fulfillment completes. A
// failed attempt is logged and left for the manual retry endpoint or webhook
// reconciliation; the completed state is never unwound.
func (s *BookingService) payoutOnCompletion(ctx context.Context, booking *models.Booking) {
	detail, err := s.bookings.GetDetail(ctx, booking.ID)
	if err != nil || detail == nil {
		logger.WithBooking(booking.ID).Error("Failed to load payment detail for payout", "error", err)
		return
	}
	if _, err := s.issuePayout(ctx, booking, detail); err != nil {
		logger.WithBooking(booking.ID).Warn("Payout deferred to manual retry", "error", err)
	}
}

func (s *BookingService) issuePayout(ctx context.Context, booking *models.Booking, detail *models.PaymentDetail) (*models.PayoutResponse, error) {
	if booking.FulfillmentStatus != models.FulfillmentCompleted {
		return nil, fmt.Errorf("%w: fulfillment is %s", apperr.ErrInvalidState, booking.FulfillmentStatus)
	}

	if detail.TransferRef != nil {
		amount, _ := s.payoutAmount(ctx, booking, detail)
		metrics.Payouts.WithLabelValues("already_paid").Inc()
		return &models.PayoutResponse{
			BookingID:   booking.ID,
			TransferRef: *detail.TransferRef,
			AmountCents: amount,
			AlreadyPaid: true,
		}, nil
	}

	coach, err := s.coaches.GetByID(ctx, booking.CoachID)
	if err != nil {
		return nil, err
	}
	if coach == nil {
		return nil, apperr.ErrNotFound
	}
	if coach.PayoutDestination == nil || *coach.PayoutDestination == "" {
		return nil, apperr.ErrPayoutUnconfigured
	}

	amount, err := s.payoutAmount(ctx, booking, detail)
	if err != nil {
		return nil, err
	}

	claimed, err := s.bookings.ClaimPayout(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Someone else holds the claim or already finished. Re-read to tell
		// the two apart.
		fresh, err := s.bookings.GetDetail(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		if fresh != nil && fresh.TransferRef != nil {
			metrics.Payouts.WithLabelValues("already_paid").Inc()
			return &models.PayoutResponse{
				BookingID:   booking.ID,
				TransferRef: *fresh.TransferRef,
				AmountCents: amount,
				AlreadyPaid: true,
			}, nil
		}
		metrics.Payouts.WithLabelValues("in_flight").Inc()
		return nil, apperr.ErrPayoutInFlight
	}

	transferRef, err := s.provider.CreateTransfer(ctx, external.TransferRequest{
		AmountCents:    amount,
		Destination:    *coach.PayoutDestination,
		IdempotencyKey: fmt.Sprintf("booking-%d", booking.ID),
		Metadata: map[string]string{
			"booking_id": fmt.Sprintf("%d", booking.ID),
			"coach_id":   fmt.Sprintf("%d", coach.ID),
		},
	})
	if err != nil {
		// The claim is released only when the provider definitively did not
		// create a transfer. An ambiguous failure keeps the claim so the
		// transfer.created webhook can reconcile.
		if !apperr.IsRetryable(err) {
			if relErr := s.bookings.ReleasePayoutClaim(ctx, booking.ID); relErr != nil {
				logger.WithBooking(booking.ID).Error("Failed to release payout claim", "error", relErr)
			}
		}
		metrics.Payouts.WithLabelValues("provider_error").Inc()
		return nil, fmt.Errorf("transfer failed: %w", err)
	}

	if _, err := s.bookings.SetTransferRef(ctx, booking.ID, transferRef); err != nil {
		// Transfer exists but the reference did not persist; the webhook
		// carries the same reference and writes it on delivery.
		logger.WithBooking(booking.ID).Error("Failed to persist transfer reference",
			"transfer_ref", transferRef, "error", err)
	}

	cs := &models.ChangeSet{}
	cs.Event(booking.ID, nil, transferRef, "transfer", amount)
	if err := s.apply(ctx, cs); err != nil {
		logger.WithBooking(booking.ID).Error("Failed to record transfer event", "error", err)
	}

	metrics.Payouts.WithLabelValues("issued").Inc()
	logger.WithBooking(booking.ID).Info("Payout issued",
		"transfer_ref", transferRef, "amount_cents", amount)

	s.publish(models.EventPayoutIssued, models.PayoutIssuedEvent{
		BookingID:   booking.ID,
		CoachID:     coach.ID,
		TransferRef: transferRef,
		AmountCents: amount,
		Timestamp:   s.now(),
	})

	return &models.PayoutResponse{
		BookingID:   booking.ID,
		TransferRef: transferRef,
		AmountCents: amount,
	}, nil
}

// payoutAmount computes what the coach is owed. Individual and private-group
// bookings pay the session price and require a captured payment; public-group
// lessons pay the aggregate of completed participants' earnings.
func (s *BookingService) payoutAmount(ctx context.Context, booking *models.Booking, detail *models.PaymentDetail) (int64, error) {
	if booking.Type != models.TypePublicGroup {
		if detail.Status != models.PaymentCaptured {
			return 0, apperr.ErrNoPaymentFound
		}
		return detail.CoachPayoutCents, nil
	}

	participants, err := s.bookings.GetParticipants(ctx, booking.ID)
	if err != nil {
		return 0, err
	}
	var total int64
	for i := range participants {
		p := &participants[i]
		if p.Status == models.ParticipantCompleted && p.PaymentStatus == models.PaymentCaptured {
			total += p.CoachEarningsCents
		}
	}
	if total == 0 {
		return 0, apperr.ErrNoPaymentFound
	}
	return total, nil
}
