package service

import (
	"coachbook/internal/apperr"
	"coachbook/internal/models"
)

// Provider fee schedule: 2.9% of the charged amount plus a 30 cent flat fee,
// integer arithmetic throughout.
const (
	providerFeeBps  = 290
	providerFeeFlat = 30
)

// Pricing is the money breakdown for one charge. All amounts are cents.
type Pricing struct {
	CoachPayoutCents int64
	PlatformFeeCents int64
	ProviderFeeCents int64
	GrossCents       int64
}

// PriceSession computes the charge for an individual or private-group booking.
// The coach's hourly rate is the base; platform and provider fees are added on
// top, so the client pays gross and the coach receives the full session price.
func PriceSession(coach *models.Coach, durationMin int64) (*Pricing, error) {
	if coach.HourlyRateCents <= 0 || coach.PlatformFeePct < 0 {
		return nil, apperr.ErrMisconfiguredPricing
	}

	payout := coach.HourlyRateCents * durationMin / 60
	platform := payout * coach.PlatformFeePct / 100
	provider := (payout+platform)*providerFeeBps/10000 + providerFeeFlat

	return &Pricing{
		CoachPayoutCents: payout,
		PlatformFeeCents: platform,
		ProviderFeeCents: provider,
		GrossCents:       payout + platform + provider,
	}, nil
}

// PriceSeat computes one public-group participant charge. The seat price is
// what the participant pays; platform and provider fees come out of it, and
// the coach earns the remainder.
func PriceSeat(seatPriceCents, platformFeePct int64) (*Pricing, error) {
	if seatPriceCents <= 0 || platformFeePct < 0 {
		return nil, apperr.ErrMisconfiguredPricing
	}

	platform := seatPriceCents * platformFeePct / 100
	provider := seatPriceCents*providerFeeBps/10000 + providerFeeFlat
	earnings := seatPriceCents - platform - provider
	if earnings < 0 {
		return nil, apperr.ErrMisconfiguredPricing
	}

	return &Pricing{
		CoachPayoutCents: earnings,
		PlatformFeeCents: platform,
		ProviderFeeCents: provider,
		GrossCents:       seatPriceCents,
	}, nil
}
