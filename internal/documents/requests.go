package documents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fx"
	"github.com/odyssey-erp/odyssey-invoicing/internal/invoicing"
)

// StartRequest opens a session. Stored hydrates a persisted document for editing;
// otherwise an empty document is created on Date in Currency.
type StartRequest struct {
	Date     string                 `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Currency string                 `json:"currency,omitempty" validate:"omitempty,iso4217"`
	Stored   *StoredDocumentRequest `json:"stored,omitempty"`
}

// StoredDocumentRequest is a persisted document as the persistence layer returns it.
// Line prices are VAT inclusive.
type StoredDocumentRequest struct {
	CurrencyCode     string              `json:"currency_code" validate:"required,iso4217"`
	ConversionRate   decimal.NullDecimal `json:"conversion_rate"`
	Date             string              `json:"date" validate:"required,datetime=2006-01-02"`
	VATRatePercent   decimal.Decimal     `json:"vat_rate_percent" validate:"gte=0,lte=100"`
	DiscountPercent  decimal.Decimal     `json:"discount_percent" validate:"gte=0,lte=100"`
	PricesIncludeVAT bool                `json:"prices_include_vat"`
	Lines            []StoredLineRequest `json:"lines" validate:"dive"`
}

// StoredLineRequest is one persisted line.
type StoredLineRequest struct {
	CatalogItemID        *int64          `json:"catalog_item_id,omitempty" validate:"omitempty,gt=0"`
	UnitOfMeasure        string          `json:"unit_of_measure"`
	Quantity             decimal.Decimal `json:"quantity" validate:"gte=0"`
	UnitPriceInclVAT     decimal.Decimal `json:"unit_price_incl_vat" validate:"gte=0"`
	VATExemptionReasonID *int64          `json:"vat_exemption_reason_id,omitempty" validate:"omitempty,gt=0"`
}

func (r StoredDocumentRequest) toStored() invoicing.StoredDocument {
	date, _ := time.Parse(time.DateOnly, r.Date)
	out := invoicing.StoredDocument{
		CurrencyCode:     r.CurrencyCode,
		ConversionRate:   r.ConversionRate,
		Date:             date,
		VATRatePercent:   r.VATRatePercent,
		DiscountPercent:  r.DiscountPercent,
		PricesIncludeVAT: r.PricesIncludeVAT,
		Lines:            make([]invoicing.StoredLine, 0, len(r.Lines)),
	}
	for _, line := range r.Lines {
		out.Lines = append(out.Lines, invoicing.StoredLine{
			CatalogItemID:        line.CatalogItemID,
			UnitOfMeasure:        line.UnitOfMeasure,
			Quantity:             line.Quantity,
			UnitPriceInclVAT:     line.UnitPriceInclVAT,
			VATExemptionReasonID: line.VATExemptionReasonID,
		})
	}
	return out
}

// ComputeRequest is a complete document for one-shot computation. Each line carries
// only its entry price: exclusive, or inclusive when PricesIncludeVAT is set.
type ComputeRequest struct {
	Lines            []ComputeLine       `json:"lines" validate:"dive"`
	VATRatePercent   decimal.Decimal     `json:"vat_rate_percent" validate:"gte=0,lte=100"`
	DiscountPercent  decimal.Decimal     `json:"discount_percent" validate:"gte=0,lte=100"`
	CurrencyCode     string              `json:"currency_code,omitempty" validate:"omitempty,iso4217"`
	ConversionRate   decimal.NullDecimal `json:"conversion_rate"`
	PricesIncludeVAT bool                `json:"prices_include_vat"`
	Date             string              `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// ComputeLine is one line of a ComputeRequest.
type ComputeLine struct {
	CatalogItemID        *int64          `json:"catalog_item_id,omitempty" validate:"omitempty,gt=0"`
	UnitOfMeasure        string          `json:"unit_of_measure,omitempty"`
	Quantity             decimal.Decimal `json:"quantity" validate:"gte=0"`
	UnitPrice            decimal.Decimal `json:"unit_price" validate:"gte=0"`
	VATExemptionReasonID *int64          `json:"vat_exemption_reason_id,omitempty" validate:"omitempty,gt=0"`
}

// ComputeResponse mirrors a session view without a session.
type ComputeResponse struct {
	Document   invoicing.Document `json:"document"`
	EntryField invoicing.Field    `json:"entry_field"`
	Totals     invoicing.Totals   `json:"totals"`
	Rate       RateInfo           `json:"rate"`
	Display    Display            `json:"display"`
}

// document builds the request through the same transitions an editing session uses.
func (r ComputeRequest) document(now time.Time) invoicing.Document {
	date := fx.Day(now)
	if r.Date != "" {
		date, _ = time.Parse(time.DateOnly, r.Date)
	}
	doc := invoicing.NewDocument(date).
		SetCurrency(r.CurrencyCode).
		SetVATRate(r.VATRatePercent).
		SetPricesIncludeVAT(r.PricesIncludeVAT).
		SetDiscount(r.DiscountPercent)
	if r.ConversionRate.Valid {
		doc = doc.ApplyConversionRate(doc.CurrencyCode, r.ConversionRate.Decimal)
	}
	for _, line := range r.Lines {
		next, lineID := doc.AddLine()
		next, _ = next.SetQuantity(lineID, line.Quantity)
		next, _ = next.SetUnitPrice(lineID, line.UnitPrice)
		next, _ = next.SetVATExemptionReason(lineID, line.VATExemptionReasonID)
		last := &next.Items[len(next.Items)-1]
		last.UnitOfMeasure = line.UnitOfMeasure
		if line.CatalogItemID != nil {
			id := *line.CatalogItemID
			last.CatalogItemID = &id
		}
		doc = next
	}
	return doc
}
