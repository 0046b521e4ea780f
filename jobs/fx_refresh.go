package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fx"
	jobmetrics "github.com/odyssey-erp/odyssey-invoicing/internal/jobs"
)

// RateFeed reads published reference rates.
type RateFeed interface {
	Latest(ctx context.Context) ([]fx.Rate, error)
	History(ctx context.Context) ([]fx.Rate, error)
}

// RateWriter persists rates.
type RateWriter interface {
	Upsert(ctx context.Context, rates []fx.Rate) error
}

// CacheInvalidator drops cached rate resolutions.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// FXRefreshJob copies ECB publications into the rate store so lookups rarely reach the
// upstream feed.
type FXRefreshJob struct {
	Feed    RateFeed
	Store   RateWriter
	Cache   CacheInvalidator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewFXRefreshJob wires dependencies for the refresh handler.
func NewFXRefreshJob(feed RateFeed, store RateWriter, cache CacheInvalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *FXRefreshJob {
	return &FXRefreshJob{Feed: feed, Store: store, Cache: cache, Logger: logger, Metrics: metrics, Timeout: time.Minute}
}

// Handle processes fx refresh tasks.
func (j *FXRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Feed == nil || j.Store == nil {
		return errors.New("fx refresh: handler not configured")
	}
	var payload FXRefreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("fx refresh: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Feed == "" {
		payload.Feed = FeedDaily
	}

	tracker := j.Metrics.Track(TaskFXRefresh)
	count, err := j.refresh(ctx, payload.Feed)
	err = tracker.End(err)

	logger := j.logger().With(slog.String("feed", payload.Feed))
	if err != nil {
		logger.Error("fx refresh failed", slog.Any("error", err))
		return err
	}
	logger.Info("fx refresh completed", slog.Int("rates", count))
	return nil
}

func (j *FXRefreshJob) refresh(ctx context.Context, feed string) (int, error) {
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	var (
		rates []fx.Rate
		err   error
	)
	switch feed {
	case FeedDaily:
		rates, err = j.Feed.Latest(ctx)
	case FeedHistory:
		rates, err = j.Feed.History(ctx)
	default:
		return 0, fmt.Errorf("fx refresh: unknown feed %q: %w", feed, asynq.SkipRetry)
	}
	if err != nil {
		return 0, fmt.Errorf("fx refresh: fetch: %w", err)
	}
	if err := j.Store.Upsert(ctx, rates); err != nil {
		return 0, fmt.Errorf("fx refresh: store: %w", err)
	}
	if j.Cache != nil {
		if err := j.Cache.Invalidate(ctx); err != nil {
			j.logger().Warn("fx cache invalidate", slog.Any("error", err))
		}
	}
	return len(rates), nil
}

func (j *FXRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskFXRefresh))
	}
	return slog.Default().With(slog.String("job", TaskFXRefresh))
}
