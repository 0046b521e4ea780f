package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads master data.
type Repository interface {
	GetCatalogItem(ctx context.Context, id int64) (CatalogItem, error)
	ListVATRates(ctx context.Context) ([]VATRate, error)
	ListCurrencies(ctx context.Context) ([]Currency, error)
	ListExemptionReasons(ctx context.Context) ([]ExemptionReason, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetCatalogItem(ctx context.Context, id int64) (CatalogItem, error) {
	const query = `SELECT id, item_number, name, unit_of_measure, unit_price_excl_vat::text
FROM catalog_items
WHERE id = $1 AND active`
	var (
		item  CatalogItem
		price string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(&item.ID, &item.ItemNumber, &item.Name, &item.UnitOfMeasure, &price)
	if errors.Is(err, pgx.ErrNoRows) {
		return CatalogItem{}, ErrNotFound
	}
	if err != nil {
		return CatalogItem{}, fmt.Errorf("masterdata: get catalog item: %w", err)
	}
	if item.UnitPriceExclVAT, err = decimal.NewFromString(price); err != nil {
		return CatalogItem{}, fmt.Errorf("masterdata: decode price %q: %w", price, err)
	}
	return item, nil
}

func (r *repository) ListVATRates(ctx context.Context) ([]VATRate, error) {
	const query = `SELECT id, rate_percent::text, name FROM vat_rates WHERE active ORDER BY rate_percent DESC, id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("masterdata: list vat rates: %w", err)
	}
	defer rows.Close()

	var out []VATRate
	for rows.Next() {
		var (
			rate VATRate
			text string
		)
		if err := rows.Scan(&rate.ID, &text, &rate.Name); err != nil {
			return nil, err
		}
		if rate.RatePercent, err = decimal.NewFromString(text); err != nil {
			return nil, fmt.Errorf("masterdata: decode vat rate %q: %w", text, err)
		}
		out = append(out, rate)
	}
	return out, rows.Err()
}

func (r *repository) ListCurrencies(ctx context.Context) ([]Currency, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, name FROM currencies WHERE active ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("masterdata: list currencies: %w", err)
	}
	defer rows.Close()

	var out []Currency
	for rows.Next() {
		var c Currency
		if err := rows.Scan(&c.Code, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) ListExemptionReasons(ctx context.Context) ([]ExemptionReason, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, label FROM vat_exemption_reasons WHERE active ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("masterdata: list exemption reasons: %w", err)
	}
	defer rows.Close()

	var out []ExemptionReason
	for rows.Next() {
		var e ExemptionReason
		if err := rows.Scan(&e.ID, &e.Code, &e.Label); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
