package documents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-invoicing/internal/invoicing"
)

func TestFormatterUsesLocaleSeparators(t *testing.T) {
	totals := invoicing.Totals{
		SubtotalWithoutDiscount:        dec("1234.5"),
		TotalAmount:                    dec("36"),
		TotalAmountInReferenceCurrency: dec("33.33"),
	}

	en := NewFormatter(language.English).Format("USD", totals)
	assert.Equal(t, "en", en.Locale)
	assert.Equal(t, "1,234.50 USD", en.SubtotalWithoutDiscount)
	assert.Equal(t, "36.00 USD", en.TotalAmount)
	assert.Equal(t, "33.33 EUR", en.TotalAmountInReferenceCurrency)
	assert.Equal(t, "0.00 USD", en.VATAmount)

	de := NewFormatter(language.German).Format("EUR", totals)
	assert.Equal(t, "1.234,50 EUR", de.SubtotalWithoutDiscount)

	var missing *Formatter
	assert.Equal(t, "36.00 EUR", missing.Format("EUR", totals).TotalAmount)
}
