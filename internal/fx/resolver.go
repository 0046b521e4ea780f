package fx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// Lookup outcomes recorded by the resolver metrics.
const (
	SourceParity      = "parity"
	SourceCache       = "cache"
	SourceStore       = "store"
	SourceProvider    = "provider"
	SourceUnavailable = "unavailable"
	SourceError       = "error"
)

// ResolverConfig tunes the resolver.
type ResolverConfig struct {
	// Timeout bounds a provider call. Zero means no extra bound beyond the caller's context.
	Timeout time.Duration
	// LookbackDays is how far before the requested day a stored rate may be.
	LookbackDays int
	// Registerer receives the lookup counter when set.
	Registerer prometheus.Registerer
}

// Resolver answers (currency, date) rate lookups from the cache, the rate store and
// finally the upstream provider. Identical concurrent lookups share one resolution.
type Resolver struct {
	provider Provider
	repo     Repository
	cache    *Cache
	logger   *slog.Logger
	cfg      ResolverConfig
	group    singleflight.Group
	lookups  *prometheus.CounterVec
}

// NewResolver wires the lookup chain. repo and cache are optional.
func NewResolver(provider Provider, repo Repository, cache *Cache, logger *slog.Logger, cfg ResolverConfig) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = defaultLookbackDays
	}
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_fx_lookups_total",
		Help: "Conversion rate lookups by resolution source.",
	}, []string{"source"})
	if cfg.Registerer != nil {
		cfg.Registerer.MustRegister(lookups)
	}
	return &Resolver{provider: provider, repo: repo, cache: cache, logger: logger, cfg: cfg, lookups: lookups}
}

// Resolve returns the rate for currency on date. The reference currency resolves to 1
// without any lookup. A missing rate is reported as ErrRateUnavailable.
func (r *Resolver) Resolve(ctx context.Context, currency string, date time.Time) (Rate, error) {
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return Rate{}, err
	}
	if code == ReferenceCurrency {
		r.lookups.WithLabelValues(SourceParity).Inc()
		return Parity(date), nil
	}
	day := Day(date)
	key := code + ":" + day.Format(time.DateOnly)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.resolve(context.WithoutCancel(ctx), code, day)
	})
	select {
	case <-ctx.Done():
		return Rate{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Rate{}, res.Err
		}
		return res.Val.(Rate), nil
	}
}

func (r *Resolver) resolve(ctx context.Context, code string, day time.Time) (Rate, error) {
	if rate, ok, err := r.cache.Get(ctx, code, day); err != nil {
		r.logger.Warn("fx cache get", slog.String("currency", code), slog.Any("error", err))
	} else if ok {
		r.lookups.WithLabelValues(SourceCache).Inc()
		return rate, nil
	}

	if r.repo != nil {
		rate, err := r.repo.RateOnOrBefore(ctx, code, day, r.cfg.LookbackDays)
		switch {
		case err == nil:
			r.lookups.WithLabelValues(SourceStore).Inc()
			r.remember(ctx, day, rate)
			return rate, nil
		case !errors.Is(err, ErrRateUnavailable):
			r.logger.Warn("fx store lookup", slog.String("currency", code), slog.Any("error", err))
		}
	}

	if r.provider == nil {
		r.lookups.WithLabelValues(SourceUnavailable).Inc()
		return Rate{}, fmt.Errorf("%w: %s", ErrRateUnavailable, code)
	}
	fetchCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	rate, err := r.provider.Fetch(fetchCtx, code, day)
	if err != nil {
		if errors.Is(err, ErrRateUnavailable) {
			r.lookups.WithLabelValues(SourceUnavailable).Inc()
			return Rate{}, err
		}
		r.lookups.WithLabelValues(SourceError).Inc()
		return Rate{}, fmt.Errorf("fx: resolve %s: %w", code, err)
	}
	r.lookups.WithLabelValues(SourceProvider).Inc()
	if r.repo != nil {
		if err := r.repo.Upsert(ctx, []Rate{rate}); err != nil {
			r.logger.Warn("fx store rate", slog.String("currency", code), slog.Any("error", err))
		}
	}
	r.remember(ctx, day, rate)
	return rate, nil
}

func (r *Resolver) remember(ctx context.Context, day time.Time, rate Rate) {
	if err := r.cache.Set(ctx, day, rate); err != nil {
		r.logger.Warn("fx cache set", slog.String("currency", rate.Currency), slog.Any("error", err))
	}
}
