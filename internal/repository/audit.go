package repository

import (
	"context"
	"database/sql"

	"coachbook/internal/database"
	"coachbook/internal/models"
)

// insertTransition appends one state-transition record inside the caller's
// transaction. IDs are filled back so post-commit indexing can reuse them.
func insertTransition(ctx context.Context, tx *sql.Tx, t *models.StateTransition) error {
	query := `
		INSERT INTO state_transitions (booking_id, participant_id, field, old_value, new_value, actor_id, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return tx.QueryRowContext(ctx, query,
		t.BookingID,
		t.ParticipantID,
		t.Field,
		t.OldValue,
		t.NewValue,
		t.ActorID,
		t.Reason,
	).Scan(&t.ID, &t.CreatedAt)
}

// insertPaymentEvent appends one money-movement record inside the caller's
// transaction.
func insertPaymentEvent(ctx context.Context, tx *sql.Tx, e *models.PaymentEvent) error {
	query := `
		INSERT INTO payment_events (booking_id, participant_id, external_ref, status, amount_cents)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return tx.QueryRowContext(ctx, query,
		e.BookingID,
		e.ParticipantID,
		e.ExternalRef,
		e.Status,
		e.AmountCents,
	).Scan(&e.ID, &e.CreatedAt)
}

// AuditRepository reads the append-only audit trail straight from Postgres.
// It backs the audit endpoint when the search index is disabled and is the
// source of truth either way.
type AuditRepository struct {
	db *database.DB
}

func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) ListTransitions(ctx context.Context, bookingID int64, limit int) ([]models.StateTransition, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, booking_id, participant_id, field, old_value, new_value, actor_id, reason, created_at
		FROM state_transitions
		WHERE booking_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, bookingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []models.StateTransition
	for rows.Next() {
		var t models.StateTransition
		if err := rows.Scan(&t.ID, &t.BookingID, &t.ParticipantID, &t.Field,
			&t.OldValue, &t.NewValue, &t.ActorID, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		transitions = append(transitions, t)
	}

	return transitions, rows.Err()
}

func (r *AuditRepository) ListEvents(ctx context.Context, bookingID int64, limit int) ([]models.PaymentEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, booking_id, participant_id, external_ref, status, amount_cents, created_at
		FROM payment_events
		WHERE booking_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, bookingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.PaymentEvent
	for rows.Next() {
		var e models.PaymentEvent
		if err := rows.Scan(&e.ID, &e.BookingID, &e.ParticipantID, &e.ExternalRef,
			&e.Status, &e.AmountCents, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
