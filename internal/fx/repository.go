package fx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/db"
)

// Repository stores reference rates.
type Repository interface {
	RateOnOrBefore(ctx context.Context, currency string, date time.Time, lookbackDays int) (Rate, error)
	ListRates(ctx context.Context, currency string, from, to time.Time) ([]Rate, error)
	Upsert(ctx context.Context, rates []Rate) error
}

// PGRepository keeps rates in the exchange_rates table.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository wires the Postgres rate store.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// RateOnOrBefore returns the newest stored rate not after date and not older than the
// lookback window.
func (r *PGRepository) RateOnOrBefore(ctx context.Context, currency string, date time.Time, lookbackDays int) (Rate, error) {
	const query = `SELECT currency, rate_date, rate::text
FROM exchange_rates
WHERE currency = $1 AND rate_date <= $2 AND rate_date >= $3
ORDER BY rate_date DESC
LIMIT 1`
	day := Day(date)
	var (
		out  Rate
		text string
	)
	err := r.pool.QueryRow(ctx, query, currency, day, day.AddDate(0, 0, -lookbackDays)).Scan(&out.Currency, &out.RateDate, &text)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrRateUnavailable
	}
	if err != nil {
		return Rate{}, fmt.Errorf("fx: load rate: %w", err)
	}
	out.Rate, err = decimal.NewFromString(text)
	if err != nil {
		return Rate{}, fmt.Errorf("fx: decode rate %q: %w", text, err)
	}
	return out, nil
}

// ListRates returns stored rates for a currency inside [from, to], oldest first.
func (r *PGRepository) ListRates(ctx context.Context, currency string, from, to time.Time) ([]Rate, error) {
	const query = `SELECT currency, rate_date, rate::text
FROM exchange_rates
WHERE currency = $1 AND rate_date BETWEEN $2 AND $3
ORDER BY rate_date`
	rows, err := r.pool.Query(ctx, query, currency, Day(from), Day(to))
	if err != nil {
		return nil, fmt.Errorf("fx: list rates: %w", err)
	}
	defer rows.Close()

	var out []Rate
	for rows.Next() {
		var (
			rate Rate
			text string
		)
		if err := rows.Scan(&rate.Currency, &rate.RateDate, &text); err != nil {
			return nil, err
		}
		if rate.Rate, err = decimal.NewFromString(text); err != nil {
			return nil, fmt.Errorf("fx: decode rate %q: %w", text, err)
		}
		out = append(out, rate)
	}
	return out, rows.Err()
}

// Upsert writes rates in one transaction, replacing existing values for the same day.
func (r *PGRepository) Upsert(ctx context.Context, rates []Rate) error {
	if len(rates) == 0 {
		return nil
	}
	const stmt = `INSERT INTO exchange_rates (currency, rate_date, rate, updated_at)
VALUES ($1, $2, $3::numeric, now())
ON CONFLICT (currency, rate_date) DO UPDATE SET rate = EXCLUDED.rate, updated_at = now()`
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rate := range rates {
			batch.Queue(stmt, rate.Currency, Day(rate.RateDate), rate.Rate.String())
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("fx: upsert rates: %w", err)
		}
		return nil
	})
}
