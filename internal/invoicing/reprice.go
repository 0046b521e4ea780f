package invoicing

import "github.com/shopspring/decimal"

// Reprice re-derives every line under a document-level VAT rate and price basis. The
// entry field of the basis (inclusive when pricesIncludeVAT) is held fixed; the other
// price and the line total are recomputed. The input slice is not modified.
//
// Rounding happens once per call on the derived field only, so repeated calls with the
// same rate and basis return identical lines.
func Reprice(items []LineItem, vatRatePercent decimal.Decimal, pricesIncludeVAT bool) []LineItem {
	out := cloneLines(items)
	for i, line := range out {
		if pricesIncludeVAT {
			line.UnitPriceExclVAT = ExclusivePrice(line.UnitPriceInclVAT, vatRatePercent)
		} else {
			line.UnitPriceInclVAT = InclusivePrice(line.UnitPriceExclVAT, vatRatePercent)
		}
		out[i] = line.withTotal()
	}
	return out
}

// EntryField reports which price field is edited directly under the given basis.
func EntryField(pricesIncludeVAT bool) Field {
	if pricesIncludeVAT {
		return FieldUnitPriceInclVAT
	}
	return FieldUnitPriceExclVAT
}
