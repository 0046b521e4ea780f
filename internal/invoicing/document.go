// Package invoicing derives line and document totals for invoices under a shared VAT
// rate, a global discount, a price basis toggle and an optional foreign currency.
package invoicing

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrLineNotFound is returned when an edit targets a line the document does not hold.
var ErrLineNotFound = errors.New("invoicing: line not found")

// Document is the computation-relevant state of an invoice being edited. Every
// transition returns a new Document and leaves the receiver untouched.
type Document struct {
	Items            []LineItem          `json:"items"`
	VATRatePercent   decimal.Decimal     `json:"vat_rate_percent"`
	DiscountPercent  decimal.Decimal     `json:"discount_percent"`
	CurrencyCode     string              `json:"currency_code"`
	ConversionRate   decimal.NullDecimal `json:"conversion_rate"`
	PricesIncludeVAT bool                `json:"prices_include_vat"`
	Date             time.Time           `json:"date"`
}

// NewDocument returns an empty EUR document dated on the given day.
func NewDocument(date time.Time) Document {
	return Document{
		Items:          []LineItem{},
		CurrencyCode:   ReferenceCurrency,
		ConversionRate: decimal.NewNullDecimal(one),
		Date:           date,
	}
}

func (d Document) clone() Document {
	d.Items = cloneLines(d.Items)
	return d
}

// Normalize re-derives every line and the currency state. It is used for documents
// that arrive from outside, where derived fields cannot be trusted.
func (d Document) Normalize() Document {
	out := d.clone()
	out.CurrencyCode = normalizeCurrency(out.CurrencyCode)
	if IsReferenceCurrency(out.CurrencyCode) {
		out.ConversionRate = decimal.NewNullDecimal(one)
	}
	for i, line := range out.Items {
		if line.ID == uuid.Nil {
			out.Items[i].ID = uuid.New()
		}
	}
	out.Items = Reprice(out.Items, out.VATRatePercent, out.PricesIncludeVAT)
	return out
}

// Totals aggregates the current lines.
func (d Document) Totals() Totals {
	return Aggregate(d.Items, d.DiscountPercent, d.VATRatePercent, d.CurrencyCode, d.ConversionRate)
}

// EntryField reports the price field the user edits under the current basis.
func (d Document) EntryField() Field {
	return EntryField(d.PricesIncludeVAT)
}

// Line looks up a line by ID.
func (d Document) Line(id uuid.UUID) (LineItem, bool) {
	idx := d.indexOf(id)
	if idx < 0 {
		return LineItem{}, false
	}
	return d.Items[idx].clone(), true
}

// AddLine appends an empty line and returns its ID.
func (d Document) AddLine() (Document, uuid.UUID) {
	out := d.clone()
	line := NewLine()
	out.Items = append(out.Items, line)
	return out, line.ID
}

// RemoveLine drops a line.
func (d Document) RemoveLine(id uuid.UUID) (Document, error) {
	idx := d.indexOf(id)
	if idx < 0 {
		return d, ErrLineNotFound
	}
	out := d.clone()
	out.Items = append(out.Items[:idx], out.Items[idx+1:]...)
	return out, nil
}

// SetQuantity changes a line quantity.
func (d Document) SetQuantity(id uuid.UUID, quantity decimal.Decimal) (Document, error) {
	return d.editLine(id, func(line LineItem) LineItem {
		return NormalizeLine(line, FieldQuantity, quantity, d.VATRatePercent)
	})
}

// SetUnitPrice writes the entry price field of the current basis and derives the other.
func (d Document) SetUnitPrice(id uuid.UUID, price decimal.Decimal) (Document, error) {
	field := d.EntryField()
	return d.editLine(id, func(line LineItem) LineItem {
		return NormalizeLine(line, field, price, d.VATRatePercent)
	})
}

// SelectCatalogItem binds a line to a catalog entry.
func (d Document) SelectCatalogItem(id uuid.UUID, item CatalogItem) (Document, error) {
	return d.editLine(id, func(line LineItem) LineItem {
		return SelectCatalogItem(line, item, d.VATRatePercent)
	})
}

// SetVATExemptionReason sets or clears the exemption reason of a line.
func (d Document) SetVATExemptionReason(id uuid.UUID, reasonID *int64) (Document, error) {
	return d.editLine(id, func(line LineItem) LineItem {
		if reasonID == nil {
			line.VATExemptionReasonID = nil
			return line
		}
		v := *reasonID
		line.VATExemptionReasonID = &v
		return line
	})
}

// SetVATRate changes the document VAT rate and re-derives every line.
func (d Document) SetVATRate(ratePercent decimal.Decimal) Document {
	out := d.clone()
	out.VATRatePercent = ratePercent
	out.Items = Reprice(out.Items, ratePercent, out.PricesIncludeVAT)
	return out
}

// SetPricesIncludeVAT switches the price basis and re-derives every line, holding the
// entry field of the new basis fixed.
func (d Document) SetPricesIncludeVAT(include bool) Document {
	out := d.clone()
	out.PricesIncludeVAT = include
	out.Items = Reprice(out.Items, out.VATRatePercent, include)
	return out
}

// SetDiscount changes the document discount.
func (d Document) SetDiscount(percent decimal.Decimal) Document {
	out := d.clone()
	out.DiscountPercent = percent
	return out
}

// SetCurrency switches the document currency. Switching to the reference currency pins
// the rate to 1; any other switch drops the rate until a new one is applied.
func (d Document) SetCurrency(code string) Document {
	code = normalizeCurrency(code)
	out := d.clone()
	if code == out.CurrencyCode {
		return out
	}
	out.CurrencyCode = code
	if IsReferenceCurrency(code) {
		out.ConversionRate = decimal.NewNullDecimal(one)
	} else {
		out.ConversionRate = decimal.NullDecimal{}
	}
	return out
}

// SetDate changes the document date. The last resolved rate stays in place until a rate
// for the new date is applied.
func (d Document) SetDate(date time.Time) Document {
	out := d.clone()
	out.Date = date
	return out
}

// ApplyConversionRate records a resolved rate for code. Results for a currency the
// document no longer uses are ignored, as are rates for the reference currency.
func (d Document) ApplyConversionRate(code string, rate decimal.Decimal) Document {
	code = normalizeCurrency(code)
	if code != d.CurrencyCode || IsReferenceCurrency(code) {
		return d
	}
	out := d.clone()
	if rate.Sign() <= 0 {
		out.ConversionRate = decimal.NullDecimal{}
		return out
	}
	out.ConversionRate = decimal.NewNullDecimal(rate)
	return out
}

// ClearConversionRate marks the rate for code as unavailable.
func (d Document) ClearConversionRate(code string) Document {
	return d.ApplyConversionRate(code, decimal.Zero)
}

// NeedsConversionRate reports whether the document currency requires a rate lookup.
func (d Document) NeedsConversionRate() bool {
	return !IsReferenceCurrency(d.CurrencyCode)
}

func (d Document) editLine(id uuid.UUID, fn func(LineItem) LineItem) (Document, error) {
	idx := d.indexOf(id)
	if idx < 0 {
		return d, ErrLineNotFound
	}
	out := d.clone()
	out.Items[idx] = fn(out.Items[idx])
	return out, nil
}

func (d Document) indexOf(id uuid.UUID) int {
	for i, line := range d.Items {
		if line.ID == id {
			return i
		}
	}
	return -1
}

func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ReferenceCurrency
	}
	return code
}
