// Package fx resolves conversion rates between the reference currency and document
// currencies.
//
// Every rate in this package follows the ECB quotation convention: 1 EUR equals Rate
// units of Currency. A source quoting the inverse must convert before returning.
package fx

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Convention names the quotation convention all rates follow.
const Convention = "1 EUR = rate × currency"

// ReferenceCurrency is the base of every quote.
const ReferenceCurrency = "EUR"

var (
	// ErrRateUnavailable signals that no rate exists for the currency around the date.
	ErrRateUnavailable = errors.New("fx: rate unavailable")
	// ErrInvalidCurrency signals a malformed currency code.
	ErrInvalidCurrency = errors.New("fx: invalid currency code")
)

// Rate is a single reference rate. RateDate is the publication day actually used, which
// can precede the requested day on weekends and holidays.
type Rate struct {
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
	RateDate time.Time       `json:"rate_date"`
}

// Parity returns the identity rate for the reference currency.
func Parity(date time.Time) Rate {
	return Rate{Currency: ReferenceCurrency, Rate: decimal.NewFromInt(1), RateDate: Day(date)}
}

// NormalizeCurrency upper-cases and validates a three letter code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return code, nil
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
