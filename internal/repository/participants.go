package repository

import (
	"context"
	"database/sql"

	"coachbook/internal/models"
)

// AddParticipant inserts a public-group participant row together with its
// audit records, atomically.
func (r *BookingRepository) AddParticipant(ctx context.Context, p *models.Participant, transitions []models.StateTransition) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO booking_participants (booking_id, user_id, status, payment_status,
			                                  charge_cents, coach_earnings_cents, intent_ref, authorized_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at`

		err := tx.QueryRowContext(ctx, query,
			p.BookingID,
			p.UserID,
			p.Status,
			p.PaymentStatus,
			p.ChargeCents,
			p.CoachEarningsCents,
			p.IntentRef,
			p.AuthorizedAt,
		).Scan(&p.ID, &p.CreatedAt)
		if err != nil {
			return err
		}

		for i := range transitions {
			transitions[i].BookingID = p.BookingID
			transitions[i].ParticipantID = &p.ID
			if err := insertTransition(ctx, tx, &transitions[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveParticipant deletes a participant row. Voluntary pre-session leave is
// the one physical delete in the system; the departure transition is still
// recorded against the booking.
func (r *BookingRepository) RemoveParticipant(ctx context.Context, participantID int64, transitions []models.StateTransition) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM booking_participants WHERE id = $1`, participantID); err != nil {
			return err
		}
		for i := range transitions {
			if err := insertTransition(ctx, tx, &transitions[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

const participantColumns = `id, booking_id, user_id, status, payment_status, charge_cents,
	       coach_earnings_cents, intent_ref, authorized_at, cancelled_at, created_at`

func scanParticipant(row interface{ Scan(...interface{}) error }) (*models.Participant, error) {
	p := &models.Participant{}
	err := row.Scan(
		&p.ID,
		&p.BookingID,
		&p.UserID,
		&p.Status,
		&p.PaymentStatus,
		&p.ChargeCents,
		&p.CoachEarningsCents,
		&p.IntentRef,
		&p.AuthorizedAt,
		&p.CancelledAt,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *BookingRepository) GetParticipants(ctx context.Context, bookingID int64) ([]models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM booking_participants WHERE booking_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, *p)
	}

	return participants, rows.Err()
}

// GetParticipantByIntent locates a participant through its payment-intent
// reference, used by webhook reconciliation.
func (r *BookingRepository) GetParticipantByIntent(ctx context.Context, intentRef string) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM booking_participants WHERE intent_ref = $1`

	p, err := scanParticipant(r.db.QueryRowContext(ctx, query, intentRef))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}
