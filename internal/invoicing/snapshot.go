package invoicing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StoredDocument is a persisted document handed back for editing. Line prices are
// stored VAT-inclusive.
type StoredDocument struct {
	CurrencyCode     string              `json:"currency_code"`
	ConversionRate   decimal.NullDecimal `json:"conversion_rate"`
	Date             time.Time           `json:"date"`
	VATRatePercent   decimal.Decimal     `json:"vat_rate_percent"`
	DiscountPercent  decimal.Decimal     `json:"discount_percent"`
	PricesIncludeVAT bool                `json:"prices_include_vat"`
	Lines            []StoredLine        `json:"lines"`
}

// StoredLine is one persisted line.
type StoredLine struct {
	CatalogItemID        *int64          `json:"catalog_item_id,omitempty"`
	UnitOfMeasure        string          `json:"unit_of_measure"`
	Quantity             decimal.Decimal `json:"quantity"`
	UnitPriceInclVAT     decimal.Decimal `json:"unit_price_incl_vat"`
	VATExemptionReasonID *int64          `json:"vat_exemption_reason_id,omitempty"`
}

// Hydrate converts a persisted document into its editable shape: each stored inclusive
// price yields the exclusive price, then the lines are re-derived under the stored basis.
func Hydrate(stored StoredDocument) Document {
	doc := Document{
		Items:            make([]LineItem, 0, len(stored.Lines)),
		VATRatePercent:   stored.VATRatePercent,
		DiscountPercent:  stored.DiscountPercent,
		CurrencyCode:     normalizeCurrency(stored.CurrencyCode),
		ConversionRate:   stored.ConversionRate,
		PricesIncludeVAT: stored.PricesIncludeVAT,
		Date:             stored.Date,
	}
	switch {
	case IsReferenceCurrency(doc.CurrencyCode):
		doc.ConversionRate = decimal.NewNullDecimal(one)
	case doc.ConversionRate.Valid && doc.ConversionRate.Decimal.Sign() <= 0:
		doc.ConversionRate = decimal.NullDecimal{}
	}
	for _, sl := range stored.Lines {
		line := LineItem{
			ID:                   uuid.New(),
			CatalogItemID:        sl.CatalogItemID,
			Quantity:             sl.Quantity,
			UnitOfMeasure:        sl.UnitOfMeasure,
			UnitPriceInclVAT:     sl.UnitPriceInclVAT,
			UnitPriceExclVAT:     ExclusivePrice(sl.UnitPriceInclVAT, stored.VATRatePercent),
			VATExemptionReasonID: sl.VATExemptionReasonID,
		}
		doc.Items = append(doc.Items, line.clone())
	}
	doc.Items = Reprice(doc.Items, doc.VATRatePercent, doc.PricesIncludeVAT)
	return doc
}

// Submission is the snapshot handed to the persistence collaborator.
type Submission struct {
	CurrencyCode     string           `json:"currency_code"`
	ConversionRate   decimal.Decimal  `json:"conversion_rate"`
	Date             time.Time        `json:"date"`
	PricesIncludeVAT bool             `json:"prices_include_vat"`
	VATRatePercent   decimal.Decimal  `json:"vat_rate_percent"`
	DiscountPercent  decimal.Decimal  `json:"discount_percent"`
	Totals           Totals           `json:"totals"`
	Lines            []SubmissionLine `json:"lines"`
}

// SubmissionLine is the per-line part of the submit contract.
type SubmissionLine struct {
	CatalogItemID        *int64          `json:"catalog_item_id"`
	Quantity             decimal.Decimal `json:"quantity"`
	UnitPriceExclVAT     decimal.Decimal `json:"unit_price_excl_vat"`
	VATRatePercent       decimal.Decimal `json:"vat_rate_percent"`
	VATExemptionReasonID *int64          `json:"vat_exemption_reason_id,omitempty"`
}

// Submission builds the submit snapshot. It does not judge completeness; unbound lines
// are reported with a nil CatalogItemID for the caller to reject.
func (d Document) Submission() Submission {
	sub := Submission{
		CurrencyCode:     d.CurrencyCode,
		Date:             d.Date,
		PricesIncludeVAT: d.PricesIncludeVAT,
		VATRatePercent:   d.VATRatePercent,
		DiscountPercent:  d.DiscountPercent,
		Totals:           d.Totals().Rounded(),
		Lines:            make([]SubmissionLine, 0, len(d.Items)),
	}
	if d.ConversionRate.Valid {
		sub.ConversionRate = d.ConversionRate.Decimal
	}
	for _, item := range d.Items {
		item = item.clone()
		sub.Lines = append(sub.Lines, SubmissionLine{
			CatalogItemID:        item.CatalogItemID,
			Quantity:             item.Quantity,
			UnitPriceExclVAT:     item.UnitPriceExclVAT,
			VATRatePercent:       d.VATRatePercent,
			VATExemptionReasonID: item.VATExemptionReasonID,
		})
	}
	return sub
}
