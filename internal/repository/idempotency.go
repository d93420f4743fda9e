package repository

import (
	"context"
	"database/sql"
	"time"

	"coachbook/internal/database"
	"coachbook/internal/models"
)

// IdempotencyRepository stores processed-delivery markers and in-flight
// creation claims. The (scope, key) primary key is what makes concurrent
// duplicates collide.
type IdempotencyRepository struct {
	db *database.DB
}

func NewIdempotencyRepository(db *database.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// ClaimResult reports the outcome of a Claim attempt.
type ClaimResult struct {
	// Won is true when this caller owns the key and should proceed.
	Won bool
	// Existing holds the stored result of a prior winner when Won is false.
	// Empty string means the prior winner is still in flight.
	Existing string
}

// Claim atomically takes ownership of (scope, key). Exactly one concurrent
// caller wins; losers observe the winner's stored result, or an empty result
// while the winner is still working. Rows past expiry are recycled in place.
func (r *IdempotencyRepository) Claim(ctx context.Context, scope, key string, ttl time.Duration) (*ClaimResult, error) {
	insert := `
		INSERT INTO idempotency_keys (scope, key, result, expires_at)
		VALUES ($1, $2, '', $3)
		ON CONFLICT (scope, key) DO UPDATE
		SET result = '', expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.expires_at < NOW()
		RETURNING key`

	var claimed string
	err := r.db.QueryRowContext(ctx, insert, scope, key, time.Now().Add(ttl)).Scan(&claimed)
	if err == nil {
		return &ClaimResult{Won: true}, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	// Live row already held by someone else; surface whatever they recorded.
	var result string
	err = r.db.QueryRowContext(ctx,
		`SELECT result FROM idempotency_keys WHERE scope = $1 AND key = $2`,
		scope, key,
	).Scan(&result)
	if err == sql.ErrNoRows {
		// Row vanished between the two statements. Treat as in flight; the
		// caller retries or reports a duplicate conflict.
		return &ClaimResult{Won: false}, nil
	}
	if err != nil {
		return nil, err
	}

	return &ClaimResult{Won: false, Existing: result}, nil
}

// StoreResult records the winner's outcome so later duplicates can replay it.
func (r *IdempotencyRepository) StoreResult(ctx context.Context, scope, key, result string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE idempotency_keys SET result = $3 WHERE scope = $1 AND key = $2`,
		scope, key, result)
	return err
}

// Release drops a claim after the guarded operation failed, so a retry of the
// same key can run again.
func (r *IdempotencyRepository) Release(ctx context.Context, scope, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE scope = $1 AND key = $2`,
		scope, key)
	return err
}

// Get returns the stored key, or nil when absent or expired.
func (r *IdempotencyRepository) Get(ctx context.Context, scope, key string) (*models.IdempotencyKey, error) {
	query := `
		SELECT key, scope, result, expires_at
		FROM idempotency_keys
		WHERE scope = $1 AND key = $2 AND expires_at >= NOW()`

	k := &models.IdempotencyKey{}
	err := r.db.QueryRowContext(ctx, query, scope, key).Scan(&k.Key, &k.Scope, &k.Result, &k.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return k, nil
}

// PurgeExpired removes inert rows; the sweep calls this on its daily run.
func (r *IdempotencyRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
