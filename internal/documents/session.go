package documents

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fx"
	"github.com/odyssey-erp/odyssey-invoicing/internal/invoicing"
)

// RateResolver looks up conversion rates.
type RateResolver interface {
	Resolve(ctx context.Context, currency string, date time.Time) (fx.Rate, error)
}

// RateStatus describes the conversion rate held by a session.
type RateStatus string

const (
	// RateFixed marks the reference currency, whose rate is always 1.
	RateFixed RateStatus = "fixed"
	// RateStored marks a rate carried over from a hydrated document.
	RateStored      RateStatus = "stored"
	RatePending     RateStatus = "pending"
	RateResolved    RateStatus = "resolved"
	RateUnavailable RateStatus = "unavailable"
)

// RateInfo is the rate part of a session view.
type RateInfo struct {
	Status   RateStatus `json:"status"`
	RateDate *time.Time `json:"rate_date,omitempty"`
}

// View is what clients see of a session after every change.
type View struct {
	ID         uuid.UUID          `json:"id"`
	Document   invoicing.Document `json:"document"`
	EntryField invoicing.Field    `json:"entry_field"`
	Totals     invoicing.Totals   `json:"totals"`
	Rate       RateInfo           `json:"rate"`
	Display    Display            `json:"display"`
}

// Session owns one document being edited. Edits are applied under the session lock;
// currency and date changes start a rate lookup in the background and only the most
// recently started lookup may write its result back.
type Session struct {
	id        uuid.UUID
	resolver  RateResolver
	formatter *Formatter
	logger    *slog.Logger
	base      context.Context
	timeout   time.Duration
	seq       fx.Sequencer

	mu       sync.Mutex
	doc      invoicing.Document
	status   RateStatus
	rateDate time.Time
	lastUsed time.Time
	pending  int
	idle     chan struct{}
}

type sessionDeps struct {
	resolver  RateResolver
	formatter *Formatter
	logger    *slog.Logger
	base      context.Context
	timeout   time.Duration
	now       time.Time
}

func newSession(doc invoicing.Document, hydrated bool, deps sessionDeps) *Session {
	idle := make(chan struct{})
	close(idle)
	s := &Session{
		id:        uuid.New(),
		resolver:  deps.resolver,
		formatter: deps.formatter,
		logger:    deps.logger,
		base:      deps.base,
		timeout:   deps.timeout,
		doc:       doc,
		lastUsed:  deps.now,
		idle:      idle,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !doc.NeedsConversionRate():
		s.status = RateFixed
	case hydrated && doc.ConversionRate.Valid && doc.ConversionRate.Decimal.Sign() > 0:
		s.status = RateStored
	default:
		s.refreshRateLocked()
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// View returns the current document with rounded totals.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Document returns the current document.
func (s *Session) Document() invoicing.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Apply runs a transition against the current document. A failed transition leaves
// the document unchanged.
func (s *Session) Apply(now time.Time, fn func(invoicing.Document) (invoicing.Document, Result, error)) (View, Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = now
	before := s.doc
	next, res, err := fn(before)
	if err != nil {
		return s.viewLocked(), Result{}, err
	}
	s.doc = next
	if next.CurrencyCode != before.CurrencyCode || !next.Date.Equal(before.Date) {
		s.refreshRateLocked()
	}
	return s.viewLocked(), res, nil
}

// Settle waits until no rate lookup is in flight.
func (s *Session) Settle(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

// refreshRateLocked supersedes any running lookup and starts a new one when the
// document currency needs a rate.
func (s *Session) refreshRateLocked() {
	ticket := s.seq.Next()
	if !s.doc.NeedsConversionRate() {
		s.status = RateFixed
		s.rateDate = time.Time{}
		return
	}
	if s.resolver == nil {
		s.doc = s.doc.ClearConversionRate(s.doc.CurrencyCode)
		s.status = RateUnavailable
		return
	}
	s.status = RatePending
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
	go s.lookup(ticket, s.doc.CurrencyCode, s.doc.Date)
}

func (s *Session) lookup(ticket uint64, code string, date time.Time) {
	ctx := s.base
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	rate, err := s.resolver.Resolve(ctx, code, date)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.lookupDoneLocked()
	if !s.seq.IsLatest(ticket) {
		s.logger.Debug("drop superseded rate lookup", slog.String("session", s.id.String()), slog.String("currency", code))
		return
	}
	if err != nil {
		if !errors.Is(err, fx.ErrRateUnavailable) {
			s.logger.Warn("rate lookup failed", slog.String("session", s.id.String()), slog.String("currency", code), slog.Any("error", err))
		}
		s.doc = s.doc.ClearConversionRate(code)
		s.status = RateUnavailable
		s.rateDate = time.Time{}
		return
	}
	s.doc = s.doc.ApplyConversionRate(code, rate.Rate)
	s.status = RateResolved
	s.rateDate = rate.RateDate
}

func (s *Session) lookupDoneLocked() {
	s.pending--
	if s.pending == 0 {
		close(s.idle)
	}
}

func (s *Session) viewLocked() View {
	info := RateInfo{Status: s.status}
	if !s.rateDate.IsZero() {
		d := s.rateDate
		info.RateDate = &d
	}
	totals := s.doc.Totals().Rounded()
	return View{
		ID:         s.id,
		Document:   s.doc,
		EntryField: s.doc.EntryField(),
		Totals:     totals,
		Rate:       info,
		Display:    s.formatter.Format(s.doc.CurrencyCode, totals),
	}
}
