package documents

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/odyssey-erp/odyssey-invoicing/internal/invoicing"
)

// Display holds rounded totals formatted for the configured locale.
type Display struct {
	Locale                         string `json:"locale"`
	SubtotalWithoutDiscount        string `json:"subtotal_without_discount"`
	DiscountAmount                 string `json:"discount_amount"`
	TaxableAmount                  string `json:"taxable_amount"`
	VATAmount                      string `json:"vat_amount"`
	TotalAmount                    string `json:"total_amount"`
	TotalAmountInReferenceCurrency string `json:"total_amount_in_reference_currency"`
}

// Formatter renders amounts with locale grouping and decimal separators.
type Formatter struct {
	tag language.Tag
}

// NewFormatter returns a formatter for tag.
func NewFormatter(tag language.Tag) *Formatter {
	return &Formatter{tag: tag}
}

// Format renders already rounded totals. Document amounts carry the document currency;
// the reference total carries EUR.
func (f *Formatter) Format(currencyCode string, t invoicing.Totals) Display {
	if f == nil {
		f = NewFormatter(language.English)
	}
	p := message.NewPrinter(f.tag)
	amount := func(v decimal.Decimal, code string) string {
		return p.Sprintf("%v %s", number.Decimal(v.InexactFloat64(), number.Scale(2)), code)
	}
	return Display{
		Locale:                         f.tag.String(),
		SubtotalWithoutDiscount:        amount(t.SubtotalWithoutDiscount, currencyCode),
		DiscountAmount:                 amount(t.DiscountAmount, currencyCode),
		TaxableAmount:                  amount(t.TaxableAmount, currencyCode),
		VATAmount:                      amount(t.VATAmount, currencyCode),
		TotalAmount:                    amount(t.TotalAmount, currencyCode),
		TotalAmountInReferenceCurrency: amount(t.TotalAmountInReferenceCurrency, invoicing.ReferenceCurrency),
	}
}
