package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"coachbook/internal/apperr"
	"coachbook/internal/logger"
	"coachbook/internal/metrics"
	"coachbook/internal/models"
)

// CreateBooking places a new reservation into coach review. Creation is
// fingerprint-deduplicated: resubmitting the same request within the dedup
// window returns the original booking id instead of double-booking the slot.
func (s *BookingService) CreateBooking(ctx context.Context, actor models.Actor, req *models.CreateBookingRequest) (*models.CreateBookingResponse, error) {
	log := logger.WithContext(ctx)
	now := s.now()

	bookingType := models.BookingType(req.Type)
	switch bookingType {
	case models.TypeIndividual, models.TypePrivateGroup, models.TypePublicGroup:
	default:
		return nil, fmt.Errorf("%w: unknown booking type %q", apperr.ErrInvalidState, req.Type)
	}
	if bookingType == models.TypePublicGroup && actor.Role != models.RoleOrganizer && actor.Role != models.RoleCoach {
		return nil, apperr.ErrUnauthorized
	}

	if !req.EndAt.After(req.StartAt) {
		return nil, apperr.ErrInvalidDuration
	}
	if req.StartAt.Before(now) {
		return nil, fmt.Errorf("%w: start is in the past", apperr.ErrInvalidState)
	}
	if _, err := time.LoadLocation(req.VenueTimezone); err != nil {
		return nil, fmt.Errorf("%w: unknown venue timezone %q", apperr.ErrInvalidState, req.VenueTimezone)
	}

	coach, err := s.coaches.GetByID(ctx, req.CoachID)
	if err != nil {
		return nil, fmt.Errorf("failed to load coach: %w", err)
	}
	if coach == nil {
		return nil, apperr.ErrNotFound
	}
	// A coach who cannot be paid cannot take money in escrow.
	if coach.PayoutDestination == nil || *coach.PayoutDestination == "" {
		return nil, apperr.ErrPayoutUnconfigured
	}

	durationMin := int64(req.EndAt.Sub(req.StartAt) / time.Minute)
	if !durationAllowed(coach.AllowedDurationsMin, durationMin) {
		return nil, apperr.ErrInvalidDuration
	}

	// Fast dedup path: a booking with the same fingerprint inside the window
	// is the same logical request.
	fingerprint := Fingerprint(actor.ID, req)
	if existing, err := s.bookings.GetByFingerprint(ctx, fingerprint, now.Add(-s.knobs.CreateDedupWindow)); err != nil {
		return nil, err
	} else if existing != nil {
		metrics.BookingsCreated.WithLabelValues(string(bookingType), "duplicate").Inc()
		return &models.CreateBookingResponse{ID: existing.ID, Duplicate: true}, nil
	}

	// Claim the fingerprint so two concurrent identical requests cannot both
	// insert. The loser replays the winner's booking id.
	claim, err := s.idem.Claim(ctx, models.ScopeBookingCreate, fingerprint, s.knobs.CreateDedupWindow)
	if err != nil {
		return nil, err
	}
	if !claim.Won {
		if claim.Existing != "" {
			if id, perr := strconv.ParseInt(claim.Existing, 10, 64); perr == nil {
				metrics.BookingsCreated.WithLabelValues(string(bookingType), "duplicate").Inc()
				return &models.CreateBookingResponse{ID: id, Duplicate: true}, nil
			}
		}
		return nil, apperr.Conflict(apperr.ConflictDuplicate)
	}

	booking, detail, err := s.buildBooking(ctx, actor, coach, bookingType, req, fingerprint, now)
	if err != nil {
		s.releaseCreateClaim(ctx, fingerprint)
		return nil, err
	}

	transitions := []models.StateTransition{{
		Field:    "approval_status",
		OldValue: "",
		NewValue: string(models.ApprovalPendingReview),
		ActorID:  &actor.ID,
	}}

	if err := s.bookings.Create(ctx, booking, detail, transitions); err != nil {
		s.releaseCreateClaim(ctx, fingerprint)
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	if err := s.idem.StoreResult(ctx, models.ScopeBookingCreate, fingerprint, strconv.FormatInt(booking.ID, 10)); err != nil {
		log.Warn("Failed to store creation dedup result", "booking_id", booking.ID, "error", err)
	}

	metrics.BookingsCreated.WithLabelValues(string(bookingType), "created").Inc()
	log.Info("Booking created",
		"booking_id", booking.ID, "coach_id", coach.ID, "type", bookingType)

	s.publish(models.EventBookingCreated, models.BookingCreatedEvent{
		BookingID:      booking.ID,
		CoachID:        booking.CoachID,
		CounterpartyID: booking.CounterpartyID,
		Type:           string(booking.Type),
		StartAt:        booking.ScheduledStartAt,
		Timestamp:      now,
	})

	return &models.CreateBookingResponse{ID: booking.ID}, nil
}

func (s *BookingService) buildBooking(ctx context.Context, actor models.Actor, coach *models.Coach, bookingType models.BookingType, req *models.CreateBookingRequest, fingerprint string, now time.Time) (*models.Booking, *models.PaymentDetail, error) {
	// The slot check and the insert are not one atomic step; the provisional
	// lock on the new row closes the gap for everyone who checks after us.
	overlapping, err := s.bookings.FindOverlapping(ctx, coach.ID, req.StartAt, req.EndAt, now)
	if err != nil {
		return nil, nil, err
	}
	for i := range overlapping {
		if overlapping[i].ApprovalStatus == models.ApprovalAccepted {
			return nil, nil, apperr.Conflict(apperr.ConflictSlotTaken)
		}
	}
	if len(overlapping) > 0 {
		return nil, nil, apperr.Conflict(apperr.ConflictSlotLocked)
	}

	booking := &models.Booking{
		CoachID:           coach.ID,
		CounterpartyID:    actor.ID,
		Type:              bookingType,
		ScheduledStartAt:  req.StartAt,
		ScheduledEndAt:    req.EndAt,
		VenueTimezone:     req.VenueTimezone,
		Location:          req.Location,
		ApprovalStatus:    models.ApprovalPendingReview,
		FulfillmentStatus: models.FulfillmentScheduled,
		LockExpiresAt:     now.Add(s.knobs.ProvisionalLockTTL),
		Fingerprint:       fingerprint,
	}
	detail := &models.PaymentDetail{Status: models.PaymentNotRequired}

	if bookingType == models.TypePublicGroup {
		if req.SeatPriceCents == nil || *req.SeatPriceCents <= 0 {
			return nil, nil, apperr.ErrMisconfiguredPricing
		}
		// Money on a public-group lesson lives per participant; the detail row
		// stays zero until settlement aggregates earnings.
		booking.SeatPriceCents = req.SeatPriceCents
		return booking, detail, nil
	}

	durationMin := int64(req.EndAt.Sub(req.StartAt) / time.Minute)
	pricing, err := PriceSession(coach, durationMin)
	if err != nil {
		return nil, nil, err
	}
	detail.GrossCents = pricing.GrossCents
	detail.PlatformFeeCents = pricing.PlatformFeeCents
	detail.ProviderFeeCents = pricing.ProviderFeeCents
	detail.CoachPayoutCents = pricing.CoachPayoutCents

	return booking, detail, nil
}

func (s *BookingService) releaseCreateClaim(ctx context.Context, fingerprint string) {
	if err := s.idem.Release(ctx, models.ScopeBookingCreate, fingerprint); err != nil {
		logger.WithContext(ctx).Warn("Failed to release creation claim", "error", err)
	}
}

func durationAllowed(allowed []int64, durationMin int64) bool {
	for _, d := range allowed {
		if d == durationMin {
			return true
		}
	}
	return false
}
