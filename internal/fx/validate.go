package fx

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// RateLister exposes stored rates for a window.
type RateLister interface {
	ListRates(ctx context.Context, currency string, from, to time.Time) ([]Rate, error)
}

// Requirement declares that a currency must have a rate for every business day in a window.
type Requirement struct {
	Currency string
	From     time.Time
	To       time.Time
}

// Gap lists the business days a currency has no stored rate for.
type Gap struct {
	Currency string      `json:"currency"`
	Missing  []time.Time `json:"missing"`
}

// Result summarises the validation outcome.
type Result struct {
	Checked int   `json:"checked"`
	Gaps    []Gap `json:"gaps"`
}

// Validate checks that every requirement is covered by stored rates. Weekends are
// skipped since the ECB never publishes on them; holidays surface as gaps.
func Validate(ctx context.Context, lister RateLister, reqs []Requirement) (Result, error) {
	if lister == nil {
		return Result{}, fmt.Errorf("fx: rate lister required")
	}
	res := Result{Gaps: make([]Gap, 0)}
	if len(reqs) == 0 {
		return res, nil
	}
	normalized := make([]Requirement, 0, len(reqs))
	for _, req := range reqs {
		code, err := NormalizeCurrency(req.Currency)
		if err != nil {
			return Result{}, fmt.Errorf("fx: requirement %q: %w", req.Currency, err)
		}
		if req.From.IsZero() || req.To.IsZero() {
			return Result{}, fmt.Errorf("fx: window required for %s", code)
		}
		from, to := Day(req.From), Day(req.To)
		if to.Before(from) {
			return Result{}, fmt.Errorf("fx: window for %s ends before it starts", code)
		}
		normalized = append(normalized, Requirement{Currency: code, From: from, To: to})
	}

	var (
		mu   sync.Mutex
		gaps []Gap
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, req := range normalized {
		req := req
		g.Go(func() error {
			if req.Currency == ReferenceCurrency {
				return nil
			}
			rates, err := lister.ListRates(gctx, req.Currency, req.From, req.To)
			if err != nil {
				return fmt.Errorf("fx: list %s: %w", req.Currency, err)
			}
			missing := missingDays(req.From, req.To, rates)
			if len(missing) == 0 {
				return nil
			}
			mu.Lock()
			gaps = append(gaps, Gap{Currency: req.Currency, Missing: missing})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i].Currency < gaps[j].Currency })
	res.Checked = len(normalized)
	res.Gaps = append(res.Gaps, gaps...)
	return res, nil
}

func missingDays(from, to time.Time, rates []Rate) []time.Time {
	have := make(map[time.Time]struct{}, len(rates))
	for _, rate := range rates {
		have[Day(rate.RateDate)] = struct{}{}
	}
	var missing []time.Time
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if _, ok := have[day]; !ok {
			missing = append(missing, day)
		}
	}
	return missing
}
