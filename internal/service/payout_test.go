package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachbook/internal/apperr"
	"coachbook/internal/models"
)

// createCompleted walks an individual booking through capture and dual
// confirmation. Completion pays the coach on the spot.
func (e *env) createCompleted(t *testing.T) int64 {
	t.Helper()
	id := e.createCaptured(t)
	e.advance(50 * time.Hour)
	require.NoError(t, e.svc.ConfirmCompletion(context.Background(), coachActor, id))
	require.NoError(t, e.svc.ConfirmCompletion(context.Background(), clientActor, id))
	return id
}

// createCompletedUnpaid completes a booking while the provider transfer
// endpoint is down, so the automatic payout fails terminally and the money
// stays with the platform for a manual retry.
func (e *env) createCompletedUnpaid(t *testing.T) int64 {
	t.Helper()
	id := e.createCaptured(t)
	e.advance(50 * time.Hour)
	e.provider.transferErr = apperr.Provider("transfers", false, assert.AnError)
	require.NoError(t, e.svc.ConfirmCompletion(context.Background(), coachActor, id))
	require.NoError(t, e.svc.ConfirmCompletion(context.Background(), clientActor, id))
	e.provider.transferErr = nil
	require.Empty(t, e.provider.transfers)
	return id
}

func TestCompletionPaysCoach(t *testing.T) {
	e := newEnv()
	id := e.createCompleted(t)

	require.Len(t, e.provider.transfers, 1)
	assert.Equal(t, int64(6000), e.provider.transfers[0].AmountCents)
	assert.Equal(t, "acct_coach_1", e.provider.transfers[0].Destination)
	assert.Equal(t, "booking-1", e.provider.transfers[0].IdempotencyKey)
	assert.True(t, e.publisher.published(models.EventPayoutIssued))

	detail, _ := e.store.GetDetail(context.Background(), id)
	require.NotNil(t, detail.TransferRef)
}

func TestIssuePayout(t *testing.T) {
	e := newEnv()
	id := e.createCompletedUnpaid(t)

	resp, err := e.svc.IssuePayout(context.Background(), coachActor, id)
	require.NoError(t, err)

	assert.False(t, resp.AlreadyPaid)
	assert.Equal(t, int64(6000), resp.AmountCents)
	assert.NotEmpty(t, resp.TransferRef)

	require.Len(t, e.provider.transfers, 1)
	assert.Equal(t, "acct_coach_1", e.provider.transfers[0].Destination)
	assert.Equal(t, "booking-1", e.provider.transfers[0].IdempotencyKey)
	assert.True(t, e.publisher.published(models.EventPayoutIssued))
}

func TestIssuePayoutExactlyOnce(t *testing.T) {
	e := newEnv()
	id := e.createCompletedUnpaid(t)

	first, err := e.svc.IssuePayout(context.Background(), coachActor, id)
	require.NoError(t, err)

	second, err := e.svc.IssuePayout(context.Background(), coachActor, id)
	require.NoError(t, err)

	assert.True(t, second.AlreadyPaid)
	assert.Equal(t, first.TransferRef, second.TransferRef)
	assert.Len(t, e.provider.transfers, 1, "a replayed payout must not move money twice")
}

func TestIssuePayoutAfterAutomaticPayout(t *testing.T) {
	e := newEnv()
	id := e.createCompleted(t)

	resp, err := e.svc.IssuePayout(context.Background(), coachActor, id)
	require.NoError(t, err)

	assert.True(t, resp.AlreadyPaid)
	assert.Equal(t, int64(6000), resp.AmountCents)
	assert.Len(t, e.provider.transfers, 1)
}

func TestConcurrentPayoutMovesMoneyOnce(t *testing.T) {
	e := newEnv()
	id := e.createCompletedUnpaid(t)

	const callers = 8
	var paid int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := e.svc.IssuePayout(context.Background(), coachActor, id)
			if err == nil && !resp.AlreadyPaid {
				atomic.AddInt32(&paid, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&paid))
	require.Len(t, e.provider.transfers, 1, "concurrent callers must produce a single transfer")
}

func TestIssuePayoutWhileClaimHeld(t *testing.T) {
	e := newEnv()
	id := e.createCompletedUnpaid(t)

	claimed, err := e.store.ClaimPayout(context.Background(), id)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = e.svc.IssuePayout(context.Background(), coachActor, id)
	assert.ErrorIs(t, err, apperr.ErrPayoutInFlight)
	assert.Empty(t, e.provider.transfers)
}

func TestIssuePayoutReleasesClaimOnTerminalFailure(t *testing.T) {
	e := newEnv()
	id := e.createCompletedUnpaid(t)

	e.provider.transferErr = apperr.Provider("transfers", false, assert.AnError)
	_, err := e.svc.IssuePayout(context.Background(), coachActor, id)
	require.Error(t, err)

	// The claim is gone, so a retry after fixing the destination succeeds.
	e.provider.transferErr = nil
	resp, err := e.svc.IssuePayout(context.Background(), coachActor, id)
	require.NoError(t, err)
	assert.False(t, resp.AlreadyPaid)
}

func TestIssuePayoutKeepsClaimOnAmbiguousFailure(t *testing.T) {
	e := newEnv()
	id := e.createCompletedUnpaid(t)

	e.provider.transferErr = apperr.Provider("transfers", true, assert.AnError)
	_, err := e.svc.IssuePayout(context.Background(), coachActor, id)
	require.Error(t, err)

	// A timeout may have created the transfer provider-side. The claim stays
	// so only webhook reconciliation can finish this payout.
	e.provider.transferErr = nil
	_, err = e.svc.IssuePayout(context.Background(), coachActor, id)
	assert.ErrorIs(t, err, apperr.ErrPayoutInFlight)
}

func TestIssuePayoutRequiresCompletion(t *testing.T) {
	e := newEnv()
	id := e.createCaptured(t)

	_, err := e.svc.IssuePayout(context.Background(), coachActor, id)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestIssuePayoutRequiresDestination(t *testing.T) {
	e := newEnv()
	id := e.createCaptured(t)
	e.advance(50 * time.Hour)

	// The destination was dropped after booking; the automatic payout skips
	// and the manual retry reports why.
	e.coaches.coaches[1].PayoutDestination = nil
	require.NoError(t, e.svc.ConfirmCompletion(context.Background(), coachActor, id))
	require.NoError(t, e.svc.ConfirmCompletion(context.Background(), clientActor, id))
	assert.Empty(t, e.provider.transfers)

	_, err := e.svc.IssuePayout(context.Background(), coachActor, id)
	assert.ErrorIs(t, err, apperr.ErrPayoutUnconfigured)
}

func TestIssuePayoutOnlyByCoachOrAdmin(t *testing.T) {
	e := newEnv()
	id := e.createCompletedUnpaid(t)

	_, err := e.svc.IssuePayout(context.Background(), clientActor, id)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = e.svc.IssuePayout(context.Background(), adminActor, id)
	require.NoError(t, err)
}

func TestGroupPayoutAggregatesEarnings(t *testing.T) {
	e := newEnv()
	id := e.createOpenLesson(t, 3)
	e.advance(50 * time.Hour)
	require.NoError(t, e.svc.ConfirmCompletion(context.Background(), coachActor, id))

	// Three 2000 cent seats at 15% platform fee earn 1612 each; settlement
	// pays the aggregate.
	require.Len(t, e.provider.transfers, 1)
	assert.Equal(t, int64(4836), e.provider.transfers[0].AmountCents)

	resp, err := e.svc.IssuePayout(context.Background(), coachActor, id)
	require.NoError(t, err)
	assert.True(t, resp.AlreadyPaid)
	assert.Equal(t, int64(4836), resp.AmountCents)
	assert.Len(t, e.provider.transfers, 1)
}

func TestGroupPayoutWithNoSeatsRejected(t *testing.T) {
	e := newEnv()
	id := e.createOpenLesson(t, 0)
	e.advance(50 * time.Hour)
	require.NoError(t, e.svc.ConfirmCompletion(context.Background(), coachActor, id))
	assert.Empty(t, e.provider.transfers)

	_, err := e.svc.IssuePayout(context.Background(), coachActor, id)
	assert.ErrorIs(t, err, apperr.ErrNoPaymentFound)
}
