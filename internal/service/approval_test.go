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

func TestAcceptBookingOpensPaymentWindow(t *testing.T) {
	e := newEnv()

	resp, err := e.svc.CreateBooking(context.Background(), clientActor, e.createRequest())
	require.NoError(t, err)

	require.NoError(t, e.svc.AcceptBooking(context.Background(), coachActor, resp.ID))

	booking, _ := e.store.GetByID(context.Background(), resp.ID)
	assert.Equal(t, models.ApprovalAccepted, booking.ApprovalStatus)

	detail, _ := e.store.GetDetail(context.Background(), resp.ID)
	assert.Equal(t, models.PaymentAwaitingClient, detail.Status)
	require.NotNil(t, detail.PaymentDueAt)
	assert.Equal(t, e.now.Add(24*time.Hour), *detail.PaymentDueAt)

	assert.True(t, e.publisher.published(models.EventBookingAccepted))
}

func TestAcceptBookingOnlyByCoach(t *testing.T) {
	e := newEnv()

	resp, err := e.svc.CreateBooking(context.Background(), clientActor, e.createRequest())
	require.NoError(t, err)

	err = e.svc.AcceptBooking(context.Background(), clientActor, resp.ID)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestAcceptBookingRejectsNonPending(t *testing.T) {
	e := newEnv()
	id := e.createAccepted(t)

	err := e.svc.AcceptBooking(context.Background(), coachActor, id)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestDeclineBooking(t *testing.T) {
	e := newEnv()

	resp, err := e.svc.CreateBooking(context.Background(), clientActor, e.createRequest())
	require.NoError(t, err)

	require.NoError(t, e.svc.DeclineBooking(context.Background(), coachActor, resp.ID))

	booking, _ := e.store.GetByID(context.Background(), resp.ID)
	assert.Equal(t, models.ApprovalDeclined, booking.ApprovalStatus)
	assert.True(t, e.publisher.published(models.EventBookingDeclined))
}

func TestCancelBeforePaymentHasNoCompensation(t *testing.T) {
	e := newEnv()
	id := e.createAccepted(t)

	require.NoError(t, e.svc.CancelBooking(context.Background(), clientActor, id, "schedule conflict"))

	booking, _ := e.store.GetByID(context.Background(), id)
	assert.Equal(t, models.ApprovalCancelled, booking.ApprovalStatus)
	require.NotNil(t, booking.CancelledBy)
	assert.Equal(t, clientActor.ID, *booking.CancelledBy)

	assert.Empty(t, e.provider.refunds)
	assert.Empty(t, e.provider.voids)
}

func TestCancelAfterCaptureRefunds(t *testing.T) {
	e := newEnv()
	id := e.createCaptured(t)

	require.NoError(t, e.svc.CancelBooking(context.Background(), coachActor, id, "coach unavailable"))

	detail, _ := e.store.GetDetail(context.Background(), id)
	assert.Equal(t, models.PaymentRefunded, detail.Status)
	assert.Equal(t, []string{"pi_100"}, e.provider.refunds)
	assert.True(t, e.publisher.published(models.EventBookingCancelled))
}

func TestCancelFailsWhenRefundFails(t *testing.T) {
	e := newEnv()
	id := e.createCaptured(t)

	e.provider.refundErr = apperr.Provider("intents/refund", true, assert.AnError)

	err := e.svc.CancelBooking(context.Background(), coachActor, id, "coach unavailable")
	require.Error(t, err)

	// Nothing may look cancelled while the money is still captured.
	booking, _ := e.store.GetByID(context.Background(), id)
	assert.Equal(t, models.ApprovalAccepted, booking.ApprovalStatus)
	detail, _ := e.store.GetDetail(context.Background(), id)
	assert.Equal(t, models.PaymentCaptured, detail.Status)
}

func TestCancelByStrangerRejected(t *testing.T) {
	e := newEnv()
	id := e.createAccepted(t)

	stranger := models.Actor{ID: 500, Role: models.RoleClient}
	err := e.svc.CancelBooking(context.Background(), stranger, id, "")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}
