package repository

import (
	"context"
	"database/sql"

	"coachbook/internal/database"
	"coachbook/internal/models"

	"github.com/lib/pq"
)

type CoachRepository struct {
	db *database.DB
}

func NewCoachRepository(db *database.DB) *CoachRepository {
	return &CoachRepository{db: db}
}

func (r *CoachRepository) GetByID(ctx context.Context, id int64) (*models.Coach, error) {
	query := `
		SELECT id, display_name, email, hourly_rate_cents, platform_fee_pct,
		       allowed_durations_min, payout_destination, created_at
		FROM coaches
		WHERE id = $1`

	coach := &models.Coach{}
	var durations pq.Int64Array
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&coach.ID,
		&coach.DisplayName,
		&coach.Email,
		&coach.HourlyRateCents,
		&coach.PlatformFeePct,
		&durations,
		&coach.PayoutDestination,
		&coach.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	coach.AllowedDurationsMin = []int64(durations)
	return coach, nil
}

// Create exists for seeding and tests; coach profile management proper lives
// in another service.
func (r *CoachRepository) Create(ctx context.Context, coach *models.Coach) error {
	query := `
		INSERT INTO coaches (display_name, email, hourly_rate_cents, platform_fee_pct,
		                     allowed_durations_min, payout_destination)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return r.db.QueryRowContext(ctx, query,
		coach.DisplayName,
		coach.Email,
		coach.HourlyRateCents,
		coach.PlatformFeePct,
		pq.Array(coach.AllowedDurationsMin),
		coach.PayoutDestination,
	).Scan(&coach.ID, &coach.CreatedAt)
}
