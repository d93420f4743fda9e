package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachbook/internal/apperr"
	"coachbook/internal/models"
)

func TestCreateBooking(t *testing.T) {
	e := newEnv()

	resp, err := e.svc.CreateBooking(context.Background(), clientActor, e.createRequest())
	require.NoError(t, err)
	assert.False(t, resp.Duplicate)

	booking, _ := e.store.GetByID(context.Background(), resp.ID)
	require.NotNil(t, booking)
	assert.Equal(t, models.ApprovalPendingReview, booking.ApprovalStatus)
	assert.Equal(t, models.FulfillmentScheduled, booking.FulfillmentStatus)
	assert.Equal(t, e.now.Add(5*time.Minute), booking.LockExpiresAt)

	detail, _ := e.store.GetDetail(context.Background(), resp.ID)
	require.NotNil(t, detail)
	assert.Equal(t, models.PaymentNotRequired, detail.Status)
	assert.Equal(t, int64(7130), detail.GrossCents)
	assert.Equal(t, int64(6000), detail.CoachPayoutCents)

	tr := e.store.lastTransition("approval_status")
	require.NotNil(t, tr)
	assert.Equal(t, string(models.ApprovalPendingReview), tr.NewValue)
	assert.True(t, e.publisher.published(models.EventBookingCreated))
}

func TestCreateBookingDeduplicatesResubmission(t *testing.T) {
	e := newEnv()

	first, err := e.svc.CreateBooking(context.Background(), clientActor, e.createRequest())
	require.NoError(t, err)

	second, err := e.svc.CreateBooking(context.Background(), clientActor, e.createRequest())
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateBookingRejectsHeldSlot(t *testing.T) {
	e := newEnv()

	_, err := e.svc.CreateBooking(context.Background(), clientActor, e.createRequest())
	require.NoError(t, err)

	// Different client, same window: the pending booking holds the slot.
	other := models.Actor{ID: 77, Role: models.RoleClient}
	_, err = e.svc.CreateBooking(context.Background(), other, e.createRequest())
	ce, ok := apperr.IsConflict(err)
	require.True(t, ok)
	assert.Equal(t, apperr.ConflictSlotLocked, ce.Kind)
}

func TestCreateBookingRejectsTakenSlot(t *testing.T) {
	e := newEnv()
	id := e.createAccepted(t)

	booking, _ := e.store.GetByID(context.Background(), id)
	other := models.Actor{ID: 77, Role: models.RoleClient}
	req := e.createRequest()
	req.StartAt = booking.ScheduledStartAt.Add(30 * time.Minute)
	req.EndAt = req.StartAt.Add(time.Hour)

	_, err := e.svc.CreateBooking(context.Background(), other, req)
	ce, ok := apperr.IsConflict(err)
	require.True(t, ok)
	assert.Equal(t, apperr.ConflictSlotTaken, ce.Kind)
}

func TestCreateBookingRejectsUnknownDuration(t *testing.T) {
	e := newEnv()

	req := e.createRequest()
	req.EndAt = req.StartAt.Add(45 * time.Minute)

	_, err := e.svc.CreateBooking(context.Background(), clientActor, req)
	assert.ErrorIs(t, err, apperr.ErrInvalidDuration)
}

func TestCreateBookingRejectsPastStart(t *testing.T) {
	e := newEnv()

	req := e.createRequest()
	req.StartAt = e.now.Add(-2 * time.Hour)
	req.EndAt = req.StartAt.Add(time.Hour)

	_, err := e.svc.CreateBooking(context.Background(), clientActor, req)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestCreateBookingRejectsUnpayableCoach(t *testing.T) {
	e := newEnv()
	e.coaches.coaches[1].PayoutDestination = nil

	_, err := e.svc.CreateBooking(context.Background(), clientActor, e.createRequest())
	assert.ErrorIs(t, err, apperr.ErrPayoutUnconfigured)
}

func TestCreateBookingRejectsUnknownCoach(t *testing.T) {
	e := newEnv()

	req := e.createRequest()
	req.CoachID = 404

	_, err := e.svc.CreateBooking(context.Background(), clientActor, req)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreatePublicGroupRequiresSeatPrice(t *testing.T) {
	e := newEnv()

	organizer := models.Actor{ID: 55, Role: models.RoleOrganizer}
	req := e.createRequest()
	req.Type = string(models.TypePublicGroup)

	_, err := e.svc.CreateBooking(context.Background(), organizer, req)
	assert.ErrorIs(t, err, apperr.ErrMisconfiguredPricing)

	seat := int64(2000)
	req.SeatPriceCents = &seat
	resp, err := e.svc.CreateBooking(context.Background(), organizer, req)
	require.NoError(t, err)

	detail, _ := e.store.GetDetail(context.Background(), resp.ID)
	assert.Zero(t, detail.GrossCents)
}
