// Package masterdata serves the read-only reference data an invoice is built from:
// catalog items, active VAT rates, active currencies and VAT exemption reasons.
package masterdata

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a lookup finds no active record.
var ErrNotFound = errors.New("masterdata: not found")

// CatalogItem is a sellable item with its list price.
type CatalogItem struct {
	ID               int64           `json:"id"`
	ItemNumber       string          `json:"item_number"`
	Name             string          `json:"name"`
	UnitOfMeasure    string          `json:"unit_of_measure"`
	UnitPriceExclVAT decimal.Decimal `json:"unit_price_excl_vat"`
}

// VATRate is a selectable VAT rate. Only RatePercent feeds the computation.
type VATRate struct {
	ID          int64           `json:"id"`
	RatePercent decimal.Decimal `json:"rate_percent"`
	Name        string          `json:"name"`
}

// Currency is an active document currency.
type Currency struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ExemptionReason justifies a 0% VAT line.
type ExemptionReason struct {
	ID    int64  `json:"id"`
	Code  string `json:"code"`
	Label string `json:"label"`
}
