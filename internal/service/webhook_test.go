package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachbook/internal/apperr"
	"coachbook/internal/external"
	"coachbook/internal/models"
)

func TestWebhookRejectsMalformedEvent(t *testing.T) {
	e := newEnv()

	err := e.svc.HandleProviderEvent(context.Background(), &models.ProviderEvent{Kind: "capture.succeeded"})
	assert.ErrorIs(t, err, apperr.ErrMalformedEvent)
}

func TestWebhookDeduplicatesDelivery(t *testing.T) {
	e := newEnv()
	id := e.createCaptured(t)

	// A refund event lands twice with the same delivery id. The second
	// delivery must be acknowledged without re-running the handler.
	event := &models.ProviderEvent{
		DeliveryID: "evt_1",
		Kind:       models.EventKindRefundSucceeded,
		IntentRef:  "pi_100",
	}
	require.NoError(t, e.svc.HandleProviderEvent(context.Background(), event))
	require.NoError(t, e.svc.HandleProviderEvent(context.Background(), event))

	detail, _ := e.store.GetDetail(context.Background(), id)
	assert.Equal(t, models.PaymentRefunded, detail.Status)

	refundEvents := 0
	for _, pe := range e.store.events {
		if pe.Status == "refund" {
			refundEvents++
		}
	}
	assert.Equal(t, 1, refundEvents)
}

func TestWebhookCaptureSucceededIsIdempotentOnState(t *testing.T) {
	e := newEnv()
	id := e.createCaptured(t)

	// Same fact, different delivery id: the state handler must shrug.
	event := &models.ProviderEvent{
		DeliveryID:  "evt_2",
		Kind:        models.EventKindCaptureSucceeded,
		IntentRef:   "pi_100",
		AmountCents: 7130,
	}
	require.NoError(t, e.svc.HandleProviderEvent(context.Background(), event))

	detail, _ := e.store.GetDetail(context.Background(), id)
	assert.Equal(t, models.PaymentCaptured, detail.Status)
}

func TestWebhookCaptureFailedCancelsBooking(t *testing.T) {
	e := newEnv()
	id := e.createAccepted(t)

	// The capture attempt during payment confirmation failed, leaving the
	// hold recorded.
	detail, _ := e.store.GetDetail(context.Background(), id)
	e.provider.setIntent("pi_100", external.IntentRequiresCapture, detail.GrossCents)
	e.provider.captureErr = apperr.Provider("intents/capture", true, assert.AnError)
	require.Error(t, e.svc.ConfirmPayment(context.Background(), clientActor, id, "pi_100"))
	e.provider.captureErr = nil

	// The provider confirms the capture is dead; the slot must not stay
	// blocked by an unpaid booking.
	require.NoError(t, e.svc.HandleProviderEvent(context.Background(), &models.ProviderEvent{
		DeliveryID: "evt_14",
		Kind:       models.EventKindCaptureFailed,
		IntentRef:  "pi_100",
		Reason:     "card_declined",
	}))

	booking, _ := e.store.GetByID(context.Background(), id)
	assert.Equal(t, models.ApprovalCancelled, booking.ApprovalStatus)
	require.NotNil(t, booking.CancelReason)
	assert.Equal(t, "payment failed", *booking.CancelReason)

	detail, _ = e.store.GetDetail(context.Background(), id)
	assert.Equal(t, models.PaymentFailed, detail.Status)
	assert.Contains(t, e.provider.voids, "pi_100")
}

func TestWebhookTransferCreatedReconcilesPayout(t *testing.T) {
	e := newEnv()
	id := e.createCompletedUnpaid(t)

	// Crash window: the transfer happened provider-side but the local
	// reference write was lost. The webhook closes the gap.
	require.NoError(t, e.svc.HandleProviderEvent(context.Background(), &models.ProviderEvent{
		DeliveryID:  "evt_3",
		Kind:        models.EventKindTransferCreated,
		TransferRef: "tr_lost",
		BookingID:   id,
		Destination: "acct_coach_1",
		AmountCents: 6000,
	}))

	detail, _ := e.store.GetDetail(context.Background(), id)
	require.NotNil(t, detail.TransferRef)
	assert.Equal(t, "tr_lost", *detail.TransferRef)

	// And the payout endpoint now reports AlreadyPaid instead of paying.
	resp, err := e.svc.IssuePayout(context.Background(), coachActor, id)
	require.NoError(t, err)
	assert.True(t, resp.AlreadyPaid)
	assert.Empty(t, e.provider.transfers)
}

func TestWebhookTransferCreatedNeverOverwrites(t *testing.T) {
	e := newEnv()
	id := e.createCompletedUnpaid(t)

	first, err := e.svc.IssuePayout(context.Background(), coachActor, id)
	require.NoError(t, err)

	require.NoError(t, e.svc.HandleProviderEvent(context.Background(), &models.ProviderEvent{
		DeliveryID:  "evt_4",
		Kind:        models.EventKindTransferCreated,
		TransferRef: "tr_other",
		BookingID:   id,
		Destination: "acct_coach_1",
	}))

	detail, _ := e.store.GetDetail(context.Background(), id)
	assert.Equal(t, first.TransferRef, *detail.TransferRef)
}

func TestWebhookTransferCreatedRequiresCompletion(t *testing.T) {
	e := newEnv()
	id := e.createCaptured(t)

	// A transfer report for a booking that never completed must not latch the
	// payout guard shut.
	require.NoError(t, e.svc.HandleProviderEvent(context.Background(), &models.ProviderEvent{
		DeliveryID:  "evt_11",
		Kind:        models.EventKindTransferCreated,
		TransferRef: "tr_stale",
		BookingID:   id,
		Destination: "acct_coach_1",
	}))

	detail, _ := e.store.GetDetail(context.Background(), id)
	assert.Nil(t, detail.TransferRef)
}

func TestWebhookTransferCreatedRejectsWrongDestination(t *testing.T) {
	e := newEnv()
	id := e.createCompletedUnpaid(t)

	require.NoError(t, e.svc.HandleProviderEvent(context.Background(), &models.ProviderEvent{
		DeliveryID:  "evt_12",
		Kind:        models.EventKindTransferCreated,
		TransferRef: "tr_misrouted",
		BookingID:   id,
		Destination: "acct_someone_else",
	}))

	detail, _ := e.store.GetDetail(context.Background(), id)
	assert.Nil(t, detail.TransferRef)

	// The genuine payout still goes through.
	resp, err := e.svc.IssuePayout(context.Background(), coachActor, id)
	require.NoError(t, err)
	assert.False(t, resp.AlreadyPaid)
	assert.Len(t, e.provider.transfers, 1)
}

func TestWebhookTransferReversedFreezesBooking(t *testing.T) {
	e := newEnv()
	id := e.createCompleted(t)

	detail, _ := e.store.GetDetail(context.Background(), id)
	require.NotNil(t, detail.TransferRef)

	require.NoError(t, e.svc.HandleProviderEvent(context.Background(), &models.ProviderEvent{
		DeliveryID:  "evt_13",
		Kind:        models.EventKindTransferReversed,
		TransferRef: *detail.TransferRef,
		BookingID:   id,
		Reason:      "account_closed",
	}))

	booking, _ := e.store.GetByID(context.Background(), id)
	assert.Equal(t, models.FulfillmentDisputed, booking.FulfillmentStatus)

	detail, _ = e.store.GetDetail(context.Background(), id)
	assert.Equal(t, models.PaymentRefunded, detail.Status)
	// The reference stays so a retry cannot fire a second transfer.
	require.NotNil(t, detail.TransferRef)
}

func TestWebhookPayoutReportedUpserts(t *testing.T) {
	e := newEnv()

	require.NoError(t, e.svc.HandleProviderEvent(context.Background(), &models.ProviderEvent{
		DeliveryID:  "evt_5",
		Kind:        models.EventKindPayoutPaid,
		PayoutID:    "po_1",
		AmountCents: 6000,
	}))

	entry := e.ledger.entries["po_1"]
	require.NotNil(t, entry)
	assert.Equal(t, "paid", entry.Status)
	assert.Equal(t, int64(6000), entry.AmountCents)
}

func TestWebhookDisputeOpenedFreezesBooking(t *testing.T) {
	e := newEnv()
	id := e.createCaptured(t)

	require.NoError(t, e.svc.HandleProviderEvent(context.Background(), &models.ProviderEvent{
		DeliveryID: "evt_6",
		Kind:       models.EventKindDisputeOpened,
		IntentRef:  "pi_100",
		Reason:     "fraudulent",
	}))

	booking, _ := e.store.GetByID(context.Background(), id)
	assert.Equal(t, models.FulfillmentDisputed, booking.FulfillmentStatus)
	detail, _ := e.store.GetDetail(context.Background(), id)
	assert.Equal(t, models.PaymentDisputed, detail.Status)
	assert.True(t, e.publisher.published(models.EventDisputeOpened))
}

func TestWebhookDisputeClosedWonRestoresCapture(t *testing.T) {
	e := newEnv()
	id := e.createCaptured(t)

	require.NoError(t, e.svc.HandleProviderEvent(context.Background(), &models.ProviderEvent{
		DeliveryID: "evt_7",
		Kind:       models.EventKindDisputeOpened,
		IntentRef:  "pi_100",
	}))
	require.NoError(t, e.svc.HandleProviderEvent(context.Background(), &models.ProviderEvent{
		DeliveryID: "evt_8",
		Kind:       models.EventKindDisputeClosed,
		IntentRef:  "pi_100",
		Reason:     "won",
	}))

	detail, _ := e.store.GetDetail(context.Background(), id)
	assert.Equal(t, models.PaymentCaptured, detail.Status)
}

func TestWebhookUnknownKindAcknowledged(t *testing.T) {
	e := newEnv()

	err := e.svc.HandleProviderEvent(context.Background(), &models.ProviderEvent{
		DeliveryID: "evt_9",
		Kind:       "balance.updated",
	})
	assert.NoError(t, err)
}

func TestWebhookFailureReleasesClaimForRetry(t *testing.T) {
	e := newEnv()

	// Unknown intent: the handler fails and the delivery claim is released,
	// so the provider's retry can succeed once the booking exists.
	event := &models.ProviderEvent{
		DeliveryID: "evt_10",
		Kind:       models.EventKindCaptureSucceeded,
		IntentRef:  "pi_missing",
	}
	err := e.svc.HandleProviderEvent(context.Background(), event)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	id := e.createCaptured(t)
	event.IntentRef = "pi_100"
	require.NoError(t, e.svc.HandleProviderEvent(context.Background(), event))

	detail, _ := e.store.GetDetail(context.Background(), id)
	assert.Equal(t, models.PaymentCaptured, detail.Status)
}
