package documents

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-invoicing/internal/invoicing"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/httpx"
)

// Rule tags reported by the document validators.
const (
	ruleCatalogRequired   = "catalog_required"
	ruleExemptionRequired = "exemption_required"
	ruleRateRequired      = "rate_required"
	ruleNonNegative       = "nonnegative"
	rulePercent           = "percent"
	ruleLinesRequired     = "lines_required"
	ruleActiveVATRate     = "active_vat_rate"
	ruleActiveCurrency    = "active_currency"
	ruleExemptionUnknown  = "exemption_unknown"
	ruleDecimalBounded    = "decimal_bounded"
	rulePositive          = "gt"
)

var ruleMessages = map[string]string{
	ruleCatalogRequired:   "every line must reference a catalog item",
	ruleExemptionRequired: "a VAT exemption reason is required when the VAT rate is 0%",
	ruleRateRequired:      "no conversion rate is available for the document currency and date",
	ruleLinesRequired:     "the document must contain at least one line",
	ruleActiveVATRate:     "the VAT rate is not one of the active VAT rates",
	ruleActiveCurrency:    "the currency is not active",
	ruleExemptionUnknown:  "the VAT exemption reason does not exist",
}

// fieldMessages complete "<field> ..." for generic rules.
var fieldMessages = map[string]string{
	ruleNonNegative:    "must not be negative",
	rulePercent:        "must be between 0 and 100",
	ruleDecimalBounded: "is outside the supported numeric range",
	"required":         "is required",
	"required_for_op":  "is required for this edit",
	"oneof":            "is not a supported value",
	"uuid":             "must be a UUID",
	"iso4217":          "must be an ISO 4217 currency code",
	"datetime":         "must be a date formatted YYYY-MM-DD",
	"gt":               "must be positive",
	"gte":              "is below the allowed minimum",
	"lte":              "is above the allowed maximum",
}

var hundred = decimal.NewFromInt(100)

// newValidator builds the validator used for requests and submissions. Decimal fields
// take part in numeric tags through their float value.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		switch d := field.Interface().(type) {
		case decimal.Decimal:
			return boundedFloat(d)
		case decimal.NullDecimal:
			if !d.Valid {
				return nil
			}
			return boundedFloat(d.Decimal)
		}
		return nil
	}, decimal.Decimal{}, decimal.NullDecimal{})
	v.RegisterStructValidation(editRules, Edit{})
	v.RegisterStructValidation(submissionRules, invoicing.Submission{})
	v.RegisterStructValidation(computeRules, ComputeRequest{})
	v.RegisterStructValidation(storedDocumentRules, StoredDocumentRequest{})
	return v
}

// boundedFloat converts d for numeric tags. Magnitudes beyond float64 map to an
// infinity of the same sign without converting the digits.
func boundedFloat(d decimal.Decimal) float64 {
	if !invoicing.WithinFloatRange(d) {
		if d.Exponent() < 0 && d.NumDigits()+int(d.Exponent()) <= 0 {
			return 0
		}
		return math.Inf(d.Sign())
	}
	return d.InexactFloat64()
}

// computeRules bounds every number of a compute request.
func computeRules(sl validator.StructLevel) {
	req := sl.Current().Interface().(ComputeRequest)
	checkBounded(sl, "vat_rate_percent", req.VATRatePercent)
	checkBounded(sl, "discount_percent", req.DiscountPercent)
	checkConversionRate(sl, req.ConversionRate)
	for i, line := range req.Lines {
		checkBounded(sl, fmt.Sprintf("lines[%d].quantity", i), line.Quantity)
		checkBounded(sl, fmt.Sprintf("lines[%d].unit_price", i), line.UnitPrice)
	}
}

// storedDocumentRules bounds every number of a hydrated document.
func storedDocumentRules(sl validator.StructLevel) {
	req := sl.Current().Interface().(StoredDocumentRequest)
	checkBounded(sl, "vat_rate_percent", req.VATRatePercent)
	checkBounded(sl, "discount_percent", req.DiscountPercent)
	checkConversionRate(sl, req.ConversionRate)
	for i, line := range req.Lines {
		checkBounded(sl, fmt.Sprintf("lines[%d].quantity", i), line.Quantity)
		checkBounded(sl, fmt.Sprintf("lines[%d].unit_price_incl_vat", i), line.UnitPriceInclVAT)
	}
}

func checkBounded(sl validator.StructLevel, field string, v decimal.Decimal) {
	if !invoicing.WithinFloatRange(v) {
		sl.ReportError(v, field, field, ruleDecimalBounded, "")
	}
}

// checkConversionRate accepts an absent rate but not an explicit zero or negative one.
func checkConversionRate(sl validator.StructLevel, rate decimal.NullDecimal) {
	if !rate.Valid {
		return
	}
	switch {
	case !invoicing.WithinFloatRange(rate.Decimal):
		sl.ReportError(rate, "conversion_rate", "ConversionRate", ruleDecimalBounded, "")
	case rate.Decimal.Sign() <= 0:
		sl.ReportError(rate, "conversion_rate", "ConversionRate", rulePositive, "0")
	}
}

// submissionRules enforces the submit contract on a document snapshot.
func submissionRules(sl validator.StructLevel) {
	sub := sl.Current().Interface().(invoicing.Submission)
	if len(sub.Lines) == 0 {
		sl.ReportError(sub.Lines, "lines", "Lines", ruleLinesRequired, "")
	}
	if !inPercentRange(sub.VATRatePercent) {
		sl.ReportError(sub.VATRatePercent, "vat_rate_percent", "VATRatePercent", rulePercent, "")
	}
	if !inPercentRange(sub.DiscountPercent) {
		sl.ReportError(sub.DiscountPercent, "discount_percent", "DiscountPercent", rulePercent, "")
	}
	if !invoicing.IsReferenceCurrency(sub.CurrencyCode) && sub.ConversionRate.Sign() <= 0 {
		sl.ReportError(sub.ConversionRate, "conversion_rate", "ConversionRate", ruleRateRequired, "")
	}
	zeroRated := sub.VATRatePercent.IsZero()
	for i, line := range sub.Lines {
		if line.CatalogItemID == nil {
			sl.ReportError(line.CatalogItemID, fmt.Sprintf("lines[%d].catalog_item_id", i), "CatalogItemID", ruleCatalogRequired, "")
		}
		if line.Quantity.Sign() < 0 {
			sl.ReportError(line.Quantity, fmt.Sprintf("lines[%d].quantity", i), "Quantity", ruleNonNegative, "")
		}
		if line.UnitPriceExclVAT.Sign() < 0 {
			sl.ReportError(line.UnitPriceExclVAT, fmt.Sprintf("lines[%d].unit_price_excl_vat", i), "UnitPriceExclVAT", ruleNonNegative, "")
		}
		if zeroRated && line.VATExemptionReasonID == nil {
			sl.ReportError(line.VATExemptionReasonID, fmt.Sprintf("lines[%d].vat_exemption_reason_id", i), "VATExemptionReasonID", ruleExemptionRequired, "")
		}
	}
}

func inPercentRange(v decimal.Decimal) bool {
	return v.Sign() >= 0 && v.LessThanOrEqual(hundred)
}

// violationsFrom converts validator output into response violations. Other errors are
// returned unchanged.
func violationsFrom(err error) ([]httpx.Violation, error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}
	out := make([]httpx.Violation, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, violation(fieldPath(fe), fe.Tag()))
	}
	return out, nil
}

func violation(field, rule string) httpx.Violation {
	if msg, ok := ruleMessages[rule]; ok {
		return httpx.Violation{Field: field, Rule: rule, Message: msg}
	}
	msg, ok := fieldMessages[rule]
	if !ok {
		msg = "is invalid"
	}
	return httpx.Violation{Field: field, Rule: rule, Message: field + " " + msg}
}

// fieldPath drops the root struct name from a namespace such as
// "Submission.lines[0].catalog_item_id".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}
