package invoicing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ReferenceCurrency is the currency all reporting totals are converted into.
const ReferenceCurrency = "EUR"

// Totals holds the document-level aggregates. Values are unrounded; use Rounded for
// presentation.
type Totals struct {
	SubtotalWithoutDiscount        decimal.Decimal `json:"subtotal_without_discount"`
	DiscountAmount                 decimal.Decimal `json:"discount_amount"`
	TaxableAmount                  decimal.Decimal `json:"taxable_amount"`
	VATAmount                      decimal.Decimal `json:"vat_amount"`
	TotalAmount                    decimal.Decimal `json:"total_amount"`
	TotalAmountInReferenceCurrency decimal.Decimal `json:"total_amount_in_reference_currency"`
	// RateUnavailable is set when a foreign-currency document has no usable conversion
	// rate and the reference total fell back to the document total.
	RateUnavailable bool `json:"rate_unavailable"`
}

// IsReferenceCurrency reports whether code denotes the reference currency.
func IsReferenceCurrency(code string) bool {
	return strings.EqualFold(strings.TrimSpace(code), ReferenceCurrency)
}

// Aggregate computes the document totals. conversionRate follows the ECB quotation
// convention: 1 EUR = conversionRate units of currencyCode.
func Aggregate(items []LineItem, discountPercent, vatRatePercent decimal.Decimal, currencyCode string, conversionRate decimal.NullDecimal) Totals {
	var t Totals
	for _, item := range items {
		t.SubtotalWithoutDiscount = t.SubtotalWithoutDiscount.Add(item.LineTotal)
	}
	t.DiscountAmount = Percent(t.SubtotalWithoutDiscount, discountPercent)
	t.TaxableAmount = t.SubtotalWithoutDiscount.Sub(t.DiscountAmount)
	t.VATAmount = Percent(t.TaxableAmount, vatRatePercent)
	t.TotalAmount = t.TaxableAmount.Add(t.VATAmount)

	switch {
	case IsReferenceCurrency(currencyCode):
		t.TotalAmountInReferenceCurrency = t.TotalAmount
	case !conversionRate.Valid || conversionRate.Decimal.Sign() <= 0:
		t.TotalAmountInReferenceCurrency = t.TotalAmount
		t.RateUnavailable = true
	default:
		t.TotalAmountInReferenceCurrency = t.TotalAmount.Div(conversionRate.Decimal)
	}
	return t
}

// Rounded returns a copy with every amount rounded to cents.
func (t Totals) Rounded() Totals {
	return Totals{
		SubtotalWithoutDiscount:        Round2(t.SubtotalWithoutDiscount),
		DiscountAmount:                 Round2(t.DiscountAmount),
		TaxableAmount:                  Round2(t.TaxableAmount),
		VATAmount:                      Round2(t.VATAmount),
		TotalAmount:                    Round2(t.TotalAmount),
		TotalAmountInReferenceCurrency: Round2(t.TotalAmountInReferenceCurrency),
		RateUnavailable:                t.RateUnavailable,
	}
}
