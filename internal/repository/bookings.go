package repository

import (
	"context"
	"database/sql"
	"time"

	"coachbook/internal/database"
	"coachbook/internal/models"
)

type BookingRepository struct {
	db *database.DB
}

func NewBookingRepository(db *database.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, coach_id, counterparty_id, type, scheduled_start_at, scheduled_end_at,
	       venue_timezone, location, approval_status, fulfillment_status, lock_expires_at,
	       fingerprint, seat_price_cents, cancelled_by, cancelled_at, cancel_reason,
	       coach_confirmed_at, created_at, updated_at`

func scanBooking(row interface{ Scan(...interface{}) error }) (*models.Booking, error) {
	b := &models.Booking{}
	err := row.Scan(
		&b.ID,
		&b.CoachID,
		&b.CounterpartyID,
		&b.Type,
		&b.ScheduledStartAt,
		&b.ScheduledEndAt,
		&b.VenueTimezone,
		&b.Location,
		&b.ApprovalStatus,
		&b.FulfillmentStatus,
		&b.LockExpiresAt,
		&b.Fingerprint,
		&b.SeatPriceCents,
		&b.CancelledBy,
		&b.CancelledAt,
		&b.CancelReason,
		&b.CoachConfirmedAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Create inserts the booking, its payment detail and the creation audit
// records in one transaction. Nothing is durable until all of it is.
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking, detail *models.PaymentDetail, transitions []models.StateTransition) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO bookings (coach_id, counterparty_id, type, scheduled_start_at, scheduled_end_at,
			                      venue_timezone, location, approval_status, fulfillment_status,
			                      lock_expires_at, fingerprint, seat_price_cents)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, created_at, updated_at`

		err := tx.QueryRowContext(ctx, query,
			booking.CoachID,
			booking.CounterpartyID,
			booking.Type,
			booking.ScheduledStartAt,
			booking.ScheduledEndAt,
			booking.VenueTimezone,
			booking.Location,
			booking.ApprovalStatus,
			booking.FulfillmentStatus,
			booking.LockExpiresAt,
			booking.Fingerprint,
			booking.SeatPriceCents,
		).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
		if err != nil {
			return err
		}

		detail.BookingID = booking.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payment_details (booking_id, status, gross_cents, platform_fee_cents,
			                             provider_fee_cents, coach_payout_cents)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			detail.BookingID,
			detail.Status,
			detail.GrossCents,
			detail.PlatformFeeCents,
			detail.ProviderFeeCents,
			detail.CoachPayoutCents,
		)
		if err != nil {
			return err
		}

		for i := range transitions {
			transitions[i].BookingID = booking.ID
			if err := insertTransition(ctx, tx, &transitions[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return booking, err
}

func (r *BookingRepository) GetDetail(ctx context.Context, bookingID int64) (*models.PaymentDetail, error) {
	d := &models.PaymentDetail{}
	query := `
		SELECT booking_id, status, gross_cents, platform_fee_cents, provider_fee_cents,
		       coach_payout_cents, intent_ref, transfer_ref, payment_due_at,
		       counterparty_confirmed_at, payout_claimed_at, updated_at
		FROM payment_details
		WHERE booking_id = $1`

	err := r.db.QueryRowContext(ctx, query, bookingID).Scan(
		&d.BookingID,
		&d.Status,
		&d.GrossCents,
		&d.PlatformFeeCents,
		&d.ProviderFeeCents,
		&d.CoachPayoutCents,
		&d.IntentRef,
		&d.TransferRef,
		&d.PaymentDueAt,
		&d.CounterpartyConfirmedAt,
		&d.PayoutClaimedAt,
		&d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

// GetByIntentRef locates a booking through its payment-intent reference,
// used when reconciling provider webhooks.
func (r *BookingRepository) GetByIntentRef(ctx context.Context, intentRef string) (*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE id = (SELECT booking_id FROM payment_details WHERE intent_ref = $1)`

	booking, err := scanBooking(r.db.QueryRowContext(ctx, query, intentRef))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return booking, err
}

// FindOverlapping returns bookings for the coach whose window intersects the
// proposed window and which still hold the slot: approval active, or the
// provisional lock not yet expired.
func (r *BookingRepository) FindOverlapping(ctx context.Context, coachID int64, start, end, now time.Time) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE coach_id = $1
		  AND scheduled_start_at < $3
		  AND scheduled_end_at > $2
		  AND (approval_status IN ('pending_review', 'accepted') OR lock_expires_at > $4)
		ORDER BY scheduled_start_at`

	rows, err := r.db.QueryContext(ctx, query, coachID, start, end, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}

	return bookings, rows.Err()
}

// GetByFingerprint returns the most recent booking with the given request
// fingerprint created after the cutoff, or nil.
func (r *BookingRepository) GetByFingerprint(ctx context.Context, fingerprint string, createdAfter time.Time) (*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE fingerprint = $1 AND created_at > $2
		ORDER BY created_at DESC
		LIMIT 1`

	booking, err := scanBooking(r.db.QueryRowContext(ctx, query, fingerprint, createdAfter))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return booking, err
}

// ListByUser returns bookings where the user is the coach or the counterparty.
func (r *BookingRepository) ListByUser(ctx context.Context, userID int64) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE coach_id = $1 OR counterparty_id = $1
		ORDER BY scheduled_start_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}

	return bookings, rows.Err()
}

// Apply runs one state transition atomically: the mutated booking, detail and
// participant rows plus all audit records. An audit insert failure aborts the
// whole transition.
func (r *BookingRepository) Apply(ctx context.Context, cs *models.ChangeSet) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		if cs.Booking != nil {
			_, err := tx.ExecContext(ctx, `
				UPDATE bookings
				SET approval_status = $1, fulfillment_status = $2, lock_expires_at = $3,
				    cancelled_by = $4, cancelled_at = $5, cancel_reason = $6,
				    coach_confirmed_at = $7, updated_at = NOW()
				WHERE id = $8`,
				cs.Booking.ApprovalStatus,
				cs.Booking.FulfillmentStatus,
				cs.Booking.LockExpiresAt,
				cs.Booking.CancelledBy,
				cs.Booking.CancelledAt,
				cs.Booking.CancelReason,
				cs.Booking.CoachConfirmedAt,
				cs.Booking.ID,
			)
			if err != nil {
				return err
			}
		}

		if cs.Detail != nil {
			_, err := tx.ExecContext(ctx, `
				UPDATE payment_details
				SET status = $1, intent_ref = $2, payment_due_at = $3,
				    counterparty_confirmed_at = $4, updated_at = NOW()
				WHERE booking_id = $5`,
				cs.Detail.Status,
				cs.Detail.IntentRef,
				cs.Detail.PaymentDueAt,
				cs.Detail.CounterpartyConfirmedAt,
				cs.Detail.BookingID,
			)
			if err != nil {
				return err
			}
		}

		for i := range cs.Participants {
			p := &cs.Participants[i]
			_, err := tx.ExecContext(ctx, `
				UPDATE booking_participants
				SET status = $1, payment_status = $2, authorized_at = $3, cancelled_at = $4
				WHERE id = $5`,
				p.Status,
				p.PaymentStatus,
				p.AuthorizedAt,
				p.CancelledAt,
				p.ID,
			)
			if err != nil {
				return err
			}
		}

		for i := range cs.Transitions {
			if err := insertTransition(ctx, tx, &cs.Transitions[i]); err != nil {
				return err
			}
		}
		for i := range cs.Events {
			if err := insertPaymentEvent(ctx, tx, &cs.Events[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClaimPayout marks the payout as in flight. Only one concurrent caller can
// win the claim; everyone else sees claimed=false and re-reads.
func (r *BookingRepository) ClaimPayout(ctx context.Context, bookingID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_details
		SET payout_claimed_at = NOW(), updated_at = NOW()
		WHERE booking_id = $1 AND payout_claimed_at IS NULL AND transfer_ref IS NULL`,
		bookingID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ReleasePayoutClaim undoes a claim after a failed provider call so a later
// sweep pass or manual retry can attempt the transfer again.
func (r *BookingRepository) ReleasePayoutClaim(ctx context.Context, bookingID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_details
		SET payout_claimed_at = NULL, updated_at = NOW()
		WHERE booking_id = $1 AND transfer_ref IS NULL`,
		bookingID)
	return err
}

// SetTransferRef persists the provider transfer reference, but only while the
// field is still unset. A transfer reference, once written, is never
// overwritten; this conditional write is the at-most-once payout guarantee.
func (r *BookingRepository) SetTransferRef(ctx context.Context, bookingID int64, transferRef string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_details
		SET transfer_ref = $1, updated_at = NOW()
		WHERE booking_id = $2 AND transfer_ref IS NULL`,
		transferRef, bookingID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ListExpiredUnpaid returns accepted bookings whose payment window has passed
// without a capture, for the sweep to expire.
func (r *BookingRepository) ListExpiredUnpaid(ctx context.Context, now time.Time) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		JOIN payment_details d ON d.booking_id = b.id
		WHERE b.approval_status = 'accepted'
		  AND d.status = 'awaiting_client_payment'
		  AND d.payment_due_at IS NOT NULL
		  AND d.payment_due_at < $1
		ORDER BY d.payment_due_at ASC`

	return r.queryBookings(ctx, query, now)
}

// ListStaleDualConfirm returns individual and private-group bookings where
// the coach confirmed before the cutoff and the counterparty never did.
func (r *BookingRepository) ListStaleDualConfirm(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		JOIN payment_details d ON d.booking_id = b.id
		WHERE b.type IN ('individual', 'private_group')
		  AND b.approval_status = 'accepted'
		  AND b.fulfillment_status = 'scheduled'
		  AND b.coach_confirmed_at IS NOT NULL
		  AND b.coach_confirmed_at < $1
		  AND d.counterparty_confirmed_at IS NULL
		ORDER BY b.coach_confirmed_at ASC`

	return r.queryBookings(ctx, query, cutoff)
}

// ListStalePublicGroup returns public-group lessons that ended before the
// cutoff and were never settled.
func (r *BookingRepository) ListStalePublicGroup(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE type = 'public_group'
		  AND approval_status = 'accepted'
		  AND fulfillment_status = 'scheduled'
		  AND scheduled_end_at < $1
		ORDER BY scheduled_end_at ASC`

	return r.queryBookings(ctx, query, cutoff)
}

func (r *BookingRepository) queryBookings(ctx context.Context, query string, args ...interface{}) ([]models.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}

	return bookings, rows.Err()
}
