package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createCoachesTable,
		createBookingsTable,
		createPaymentDetailsTable,
		createParticipantsTable,
		createPaymentEventsTable,
		createStateTransitionsTable,
		createIdempotencyKeysTable,
		createPayoutLedgerTable,
		createBookingIndexes,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createCoachesTable = `
CREATE TABLE IF NOT EXISTS coaches (
    id SERIAL PRIMARY KEY,
    display_name VARCHAR(255) NOT NULL,
    email VARCHAR(255) UNIQUE NOT NULL,
    hourly_rate_cents BIGINT NOT NULL,
    platform_fee_pct BIGINT NOT NULL DEFAULT 15,
    allowed_durations_min BIGINT[] NOT NULL DEFAULT '{60}',
    payout_destination VARCHAR(255),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id SERIAL PRIMARY KEY,
    coach_id INTEGER NOT NULL REFERENCES coaches(id),
    counterparty_id BIGINT NOT NULL,
    type VARCHAR(20) NOT NULL,
    scheduled_start_at TIMESTAMPTZ NOT NULL,
    scheduled_end_at TIMESTAMPTZ NOT NULL,
    venue_timezone VARCHAR(64) NOT NULL,
    location VARCHAR(500) NOT NULL,
    approval_status VARCHAR(20) NOT NULL DEFAULT 'pending_review',
    fulfillment_status VARCHAR(20) NOT NULL DEFAULT 'scheduled',
    lock_expires_at TIMESTAMPTZ NOT NULL,
    fingerprint CHAR(64) NOT NULL,
    seat_price_cents BIGINT,
    cancelled_by BIGINT,
    cancelled_at TIMESTAMPTZ,
    cancel_reason TEXT,
    coach_confirmed_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (scheduled_end_at > scheduled_start_at),
    CHECK (type IN ('individual', 'private_group', 'public_group')),
    CHECK (approval_status IN ('pending_review', 'accepted', 'declined', 'cancelled')),
    CHECK (fulfillment_status IN ('scheduled', 'completed', 'disputed'))
);`

const createPaymentDetailsTable = `
CREATE TABLE IF NOT EXISTS payment_details (
    booking_id INTEGER PRIMARY KEY REFERENCES bookings(id),
    status VARCHAR(30) NOT NULL DEFAULT 'not_required',
    gross_cents BIGINT NOT NULL DEFAULT 0,
    platform_fee_cents BIGINT NOT NULL DEFAULT 0,
    provider_fee_cents BIGINT NOT NULL DEFAULT 0,
    coach_payout_cents BIGINT NOT NULL DEFAULT 0,
    intent_ref VARCHAR(255),
    transfer_ref VARCHAR(255),
    payment_due_at TIMESTAMPTZ,
    counterparty_confirmed_at TIMESTAMPTZ,
    payout_claimed_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (status IN ('not_required', 'awaiting_client_payment', 'authorized',
                      'captured', 'refunded', 'failed', 'disputed'))
);`

const createParticipantsTable = `
CREATE TABLE IF NOT EXISTS booking_participants (
    id SERIAL PRIMARY KEY,
    booking_id INTEGER NOT NULL REFERENCES bookings(id),
    user_id BIGINT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'awaiting_coach',
    payment_status VARCHAR(30) NOT NULL DEFAULT 'not_required',
    charge_cents BIGINT NOT NULL DEFAULT 0,
    coach_earnings_cents BIGINT NOT NULL DEFAULT 0,
    intent_ref VARCHAR(255),
    authorized_at TIMESTAMPTZ,
    cancelled_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE(booking_id, user_id),
    CHECK (status IN ('awaiting_coach', 'accepted', 'cancelled', 'completed'))
);`

const createPaymentEventsTable = `
CREATE TABLE IF NOT EXISTS payment_events (
    id SERIAL PRIMARY KEY,
    booking_id INTEGER NOT NULL REFERENCES bookings(id),
    participant_id INTEGER,
    external_ref VARCHAR(255) NOT NULL DEFAULT '',
    status VARCHAR(50) NOT NULL,
    amount_cents BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createStateTransitionsTable = `
CREATE TABLE IF NOT EXISTS state_transitions (
    id SERIAL PRIMARY KEY,
    booking_id INTEGER NOT NULL REFERENCES bookings(id),
    participant_id INTEGER,
    field VARCHAR(50) NOT NULL,
    old_value VARCHAR(100) NOT NULL,
    new_value VARCHAR(100) NOT NULL,
    actor_id BIGINT,
    reason TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createIdempotencyKeysTable = `
CREATE TABLE IF NOT EXISTS idempotency_keys (
    key VARCHAR(255) NOT NULL,
    scope VARCHAR(30) NOT NULL,
    result TEXT NOT NULL DEFAULT '',
    expires_at TIMESTAMPTZ NOT NULL,

    PRIMARY KEY (scope, key)
);`

const createPayoutLedgerTable = `
CREATE TABLE IF NOT EXISTS payout_ledger (
    payout_id VARCHAR(255) PRIMARY KEY,
    status VARCHAR(30) NOT NULL,
    amount_cents BIGINT NOT NULL DEFAULT 0,
    arrival_date TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createBookingIndexes = `
CREATE INDEX IF NOT EXISTS bookings_coach_window_idx
    ON bookings (coach_id, scheduled_start_at, scheduled_end_at);
CREATE INDEX IF NOT EXISTS bookings_fingerprint_idx
    ON bookings (fingerprint, created_at);
CREATE INDEX IF NOT EXISTS payment_details_intent_idx
    ON payment_details (intent_ref);
CREATE INDEX IF NOT EXISTS participants_intent_idx
    ON booking_participants (intent_ref);
CREATE INDEX IF NOT EXISTS state_transitions_booking_idx
    ON state_transitions (booking_id, created_at);
CREATE INDEX IF NOT EXISTS payment_events_booking_idx
    ON payment_events (booking_id, created_at);`
