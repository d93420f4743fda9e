package service

import (
	"context"

	"coachbook/internal/apperr"
	"coachbook/internal/models"
)

// AuditTrail returns the append-only history of one booking: every state
// transition and every money movement, oldest first. Admin only; this is the
// dispute-investigation surface.
func (s *BookingService) AuditTrail(ctx context.Context, actor models.Actor, bookingID int64, limit int) (*models.AuditQueryResponse, error) {
	if actor.Role != models.RoleAdmin {
		return nil, apperr.ErrUnauthorized
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperr.ErrNotFound
	}

	transitions, err := s.audit.ListTransitions(ctx, bookingID, limit)
	if err != nil {
		return nil, err
	}
	events, err := s.audit.ListEvents(ctx, bookingID, limit)
	if err != nil {
		return nil, err
	}

	return &models.AuditQueryResponse{
		Transitions: transitions,
		Events:      events,
	}, nil
}
