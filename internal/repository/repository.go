package repository

import (
	"coachbook/internal/database"
)

type Repositories struct {
	Bookings    *BookingRepository
	Coaches     *CoachRepository
	Audit       *AuditRepository
	Idempotency *IdempotencyRepository
	Ledger      *PayoutLedgerRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Bookings:    NewBookingRepository(db),
		Coaches:     NewCoachRepository(db),
		Audit:       NewAuditRepository(db),
		Idempotency: NewIdempotencyRepository(db),
		Ledger:      NewPayoutLedgerRepository(db),
	}
}
