package repository

import (
	"context"
	"database/sql"

	"coachbook/internal/database"
	"coachbook/internal/models"
)

// PayoutLedgerRepository mirrors provider bank-payout reports, keyed by the
// provider's payout id. Webhook replays land on the same row.
type PayoutLedgerRepository struct {
	db *database.DB
}

func NewPayoutLedgerRepository(db *database.DB) *PayoutLedgerRepository {
	return &PayoutLedgerRepository{db: db}
}

func (r *PayoutLedgerRepository) Upsert(ctx context.Context, entry *models.PayoutLedgerEntry) error {
	query := `
		INSERT INTO payout_ledger (payout_id, status, amount_cents, arrival_date, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (payout_id) DO UPDATE
		SET status = EXCLUDED.status,
		    amount_cents = EXCLUDED.amount_cents,
		    arrival_date = EXCLUDED.arrival_date,
		    updated_at = NOW()
		RETURNING updated_at`

	return r.db.QueryRowContext(ctx, query,
		entry.PayoutID,
		entry.Status,
		entry.AmountCents,
		entry.ArrivalDate,
	).Scan(&entry.UpdatedAt)
}

func (r *PayoutLedgerRepository) Get(ctx context.Context, payoutID string) (*models.PayoutLedgerEntry, error) {
	query := `
		SELECT payout_id, status, amount_cents, arrival_date, updated_at
		FROM payout_ledger
		WHERE payout_id = $1`

	entry := &models.PayoutLedgerEntry{}
	err := r.db.QueryRowContext(ctx, query, payoutID).Scan(
		&entry.PayoutID,
		&entry.Status,
		&entry.AmountCents,
		&entry.ArrivalDate,
		&entry.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}
