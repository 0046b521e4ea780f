package invoicing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Field names an editable line field.
type Field string

const (
	FieldQuantity         Field = "quantity"
	FieldUnitPriceExclVAT Field = "unit_price_excl_vat"
	FieldUnitPriceInclVAT Field = "unit_price_incl_vat"
)

// LineItem is one document line. UnitPriceExclVAT is the stored price; the inclusive
// price and the line total are derived from it and the document VAT rate.
type LineItem struct {
	ID                   uuid.UUID       `json:"id"`
	CatalogItemID        *int64          `json:"catalog_item_id,omitempty"`
	Quantity             decimal.Decimal `json:"quantity"`
	UnitOfMeasure        string          `json:"unit_of_measure"`
	UnitPriceExclVAT     decimal.Decimal `json:"unit_price_excl_vat"`
	UnitPriceInclVAT     decimal.Decimal `json:"unit_price_incl_vat"`
	LineTotal            decimal.Decimal `json:"line_total"`
	VATExemptionReasonID *int64          `json:"vat_exemption_reason_id,omitempty"`
}

// CatalogItem is the part of a catalog entry copied onto a line when it is selected.
type CatalogItem struct {
	ID               int64
	UnitOfMeasure    string
	UnitPriceExclVAT decimal.Decimal
}

// NewLine returns an empty, unbound line.
func NewLine() LineItem {
	return LineItem{ID: uuid.New()}
}

// NormalizeLine applies an edit of one field and returns the fully derived line.
// A price edit keeps the entered value literally and recomputes the counterpart with
// cent rounding; a quantity edit leaves both prices alone.
func NormalizeLine(line LineItem, field Field, value, vatRatePercent decimal.Decimal) LineItem {
	out := line.clone()
	switch field {
	case FieldQuantity:
		out.Quantity = value
	case FieldUnitPriceExclVAT:
		out.UnitPriceExclVAT = value
		out.UnitPriceInclVAT = InclusivePrice(value, vatRatePercent)
	case FieldUnitPriceInclVAT:
		out.UnitPriceInclVAT = value
		out.UnitPriceExclVAT = ExclusivePrice(value, vatRatePercent)
	}
	return out.withTotal()
}

// SelectCatalogItem binds a line to a catalog entry, taking over its unit and exclusive
// price. The quantity is kept.
func SelectCatalogItem(line LineItem, item CatalogItem, vatRatePercent decimal.Decimal) LineItem {
	out := line.clone()
	id := item.ID
	out.CatalogItemID = &id
	out.UnitOfMeasure = item.UnitOfMeasure
	out.UnitPriceExclVAT = item.UnitPriceExclVAT
	out.UnitPriceInclVAT = InclusivePrice(item.UnitPriceExclVAT, vatRatePercent)
	return out.withTotal()
}

func (l LineItem) withTotal() LineItem {
	l.LineTotal = l.Quantity.Mul(l.UnitPriceExclVAT)
	return l
}

func (l LineItem) clone() LineItem {
	if l.CatalogItemID != nil {
		v := *l.CatalogItemID
		l.CatalogItemID = &v
	}
	if l.VATExemptionReasonID != nil {
		v := *l.VATExemptionReasonID
		l.VATExemptionReasonID = &v
	}
	return l
}

func cloneLines(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		out[i] = item.clone()
	}
	return out
}
