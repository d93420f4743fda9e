package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachbook/internal/apperr"
	"coachbook/internal/models"
)

func TestPriceSession(t *testing.T) {
	coach := &models.Coach{HourlyRateCents: 6000, PlatformFeePct: 15}

	pricing, err := PriceSession(coach, 60)
	require.NoError(t, err)

	assert.Equal(t, int64(6000), pricing.CoachPayoutCents)
	assert.Equal(t, int64(900), pricing.PlatformFeeCents)
	assert.Equal(t, int64(230), pricing.ProviderFeeCents)
	assert.Equal(t, int64(7130), pricing.GrossCents)
}

func TestPriceSessionProRatesDuration(t *testing.T) {
	coach := &models.Coach{HourlyRateCents: 6000, PlatformFeePct: 15}

	pricing, err := PriceSession(coach, 90)
	require.NoError(t, err)

	assert.Equal(t, int64(9000), pricing.CoachPayoutCents)
	assert.Equal(t, int64(1350), pricing.PlatformFeeCents)
}

func TestPriceSessionRejectsMissingRate(t *testing.T) {
	_, err := PriceSession(&models.Coach{HourlyRateCents: 0, PlatformFeePct: 15}, 60)
	assert.ErrorIs(t, err, apperr.ErrMisconfiguredPricing)
}

func TestPriceSeat(t *testing.T) {
	pricing, err := PriceSeat(2000, 15)
	require.NoError(t, err)

	assert.Equal(t, int64(2000), pricing.GrossCents)
	assert.Equal(t, int64(300), pricing.PlatformFeeCents)
	assert.Equal(t, int64(88), pricing.ProviderFeeCents)
	assert.Equal(t, int64(1612), pricing.CoachPayoutCents)
}

func TestPriceSeatRejectsFeeExceedingSeat(t *testing.T) {
	// A seat price so low the fixed provider fee eats past it.
	_, err := PriceSeat(25, 15)
	assert.ErrorIs(t, err, apperr.ErrMisconfiguredPricing)
}
