package numbering

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed sequence counters.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Next performs the atomic increment-and-fetch for a counter key. The upsert
// is a single statement, so concurrent callers serialise on the row and each
// observes a distinct value.
func (r *Repository) Next(ctx context.Context, companyID string, series SeriesCode, period string) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `INSERT INTO sequences (company_id, series_code, period, last_value)
VALUES ($1, $2, $3, 1)
ON CONFLICT (company_id, series_code, period)
DO UPDATE SET last_value = sequences.last_value + 1
RETURNING last_value`, companyID, string(series), period).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}
