package fx

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseRatesCSV reads rows of "currency,date,rate" with an optional header row. Rates
// must follow the ECB convention.
func ParseRatesCSV(r io.Reader) ([]Rate, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	var (
		out  []Rate
		line int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fx: csv: %w", err)
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "currency") {
			continue
		}
		code, err := NormalizeCurrency(record[0])
		if err != nil {
			return nil, fmt.Errorf("fx: csv line %d: %w", line, err)
		}
		date, err := time.Parse(time.DateOnly, strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("fx: csv line %d: bad date %q", line, record[1])
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(record[2]))
		if err != nil || rate.Sign() <= 0 {
			return nil, fmt.Errorf("fx: csv line %d: bad rate %q", line, record[2])
		}
		out = append(out, Rate{Currency: code, Rate: rate, RateDate: date})
	}
	return out, nil
}
