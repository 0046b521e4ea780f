package fx

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultDailyURL publishes the latest ECB reference rates.
	DefaultDailyURL = "https://www.ecb.europa.eu/stats/eurofxref/eurofxref-daily.xml"
	// DefaultHistoryURL publishes the last 90 days of ECB reference rates.
	DefaultHistoryURL = "https://www.ecb.europa.eu/stats/eurofxref/eurofxref-hist-90d.xml"

	defaultLookbackDays = 7
)

// Provider fetches a rate for a currency on a day from an upstream source.
type Provider interface {
	Fetch(ctx context.Context, currency string, date time.Time) (Rate, error)
}

// ECBProvider reads the ECB euro foreign exchange reference rate feeds. The ECB does not
// publish on weekends and TARGET holidays; a lookup falls back to the latest publication
// within LookbackDays before the requested day.
type ECBProvider struct {
	DailyURL     string
	HistoryURL   string
	Client       *http.Client
	LookbackDays int
}

// NewECBProvider builds a provider with default feed locations where urls are empty.
func NewECBProvider(dailyURL, historyURL string, client *http.Client) *ECBProvider {
	if dailyURL == "" {
		dailyURL = DefaultDailyURL
	}
	if historyURL == "" {
		historyURL = DefaultHistoryURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ECBProvider{DailyURL: dailyURL, HistoryURL: historyURL, Client: client, LookbackDays: defaultLookbackDays}
}

type ecbEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Days    []ecbDay `xml:"Cube>Cube"`
}

type ecbDay struct {
	Time  string    `xml:"time,attr"`
	Rates []ecbRate `xml:"Cube"`
}

type ecbRate struct {
	Currency string `xml:"currency,attr"`
	Rate     string `xml:"rate,attr"`
}

// Fetch returns the rate published for currency on date, or on the closest earlier
// publication day inside the lookback window.
func (p *ECBProvider) Fetch(ctx context.Context, currency string, date time.Time) (Rate, error) {
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return Rate{}, err
	}
	days, err := p.load(ctx, p.HistoryURL)
	if err != nil {
		return Rate{}, err
	}
	target := Day(date)
	lookback := p.LookbackDays
	if lookback <= 0 {
		lookback = defaultLookbackDays
	}
	earliest := target.AddDate(0, 0, -lookback)
	for _, day := range days {
		if day.date.After(target) {
			continue
		}
		if day.date.Before(earliest) {
			break
		}
		if rate, ok := day.rates[code]; ok {
			return Rate{Currency: code, Rate: rate, RateDate: day.date}, nil
		}
	}
	return Rate{}, fmt.Errorf("%w: %s on %s", ErrRateUnavailable, code, target.Format(time.DateOnly))
}

// Latest returns every rate of the most recent publication.
func (p *ECBProvider) Latest(ctx context.Context) ([]Rate, error) {
	days, err := p.load(ctx, p.DailyURL)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, ErrRateUnavailable
	}
	latest := days[0]
	out := make([]Rate, 0, len(latest.rates))
	for code, rate := range latest.rates {
		out = append(out, Rate{Currency: code, Rate: rate, RateDate: latest.date})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

// History returns every rate of the history feed, newest publication first.
func (p *ECBProvider) History(ctx context.Context) ([]Rate, error) {
	days, err := p.load(ctx, p.HistoryURL)
	if err != nil {
		return nil, err
	}
	var out []Rate
	for _, day := range days {
		codes := make([]string, 0, len(day.rates))
		for code := range day.rates {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			out = append(out, Rate{Currency: code, Rate: day.rates[code], RateDate: day.date})
		}
	}
	return out, nil
}

type publication struct {
	date  time.Time
	rates map[string]decimal.Decimal
}

// load fetches a feed and returns its publications, newest first.
func (p *ECBProvider) load(ctx context.Context, url string) ([]publication, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fx: ecb request: %w", err)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fx: ecb fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fx: ecb fetch: unexpected status %d", resp.StatusCode)
	}
	var env ecbEnvelope
	if err := xml.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("fx: ecb decode: %w", err)
	}
	out := make([]publication, 0, len(env.Days))
	for _, day := range env.Days {
		date, err := time.Parse(time.DateOnly, day.Time)
		if err != nil {
			return nil, fmt.Errorf("fx: ecb decode: bad day %q", day.Time)
		}
		pub := publication{date: date, rates: make(map[string]decimal.Decimal, len(day.Rates))}
		for _, r := range day.Rates {
			value, err := decimal.NewFromString(r.Rate)
			if err != nil || value.Sign() <= 0 {
				continue
			}
			pub.rates[r.Currency] = value
		}
		out = append(out, pub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].date.After(out[j].date) })
	return out, nil
}
