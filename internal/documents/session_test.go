package documents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fx"
	"github.com/odyssey-erp/odyssey-invoicing/internal/invoicing"
)

var testDay = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// gatedResolver answers each lookup only when the test releases it.
type gatedResolver struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	rates map[string]decimal.Decimal
	calls []string
}

func newGatedResolver(rates map[string]string) *gatedResolver {
	g := &gatedResolver{gates: map[string]chan struct{}{}, rates: map[string]decimal.Decimal{}}
	for code, rate := range rates {
		g.rates[code] = dec(rate)
	}
	return g
}

func (g *gatedResolver) gate(code string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[code]
	if !ok {
		ch = make(chan struct{})
		g.gates[code] = ch
	}
	return ch
}

func (g *gatedResolver) release(code string) { close(g.gate(code)) }

func (g *gatedResolver) Resolve(ctx context.Context, currency string, date time.Time) (fx.Rate, error) {
	g.mu.Lock()
	g.calls = append(g.calls, currency)
	g.mu.Unlock()
	select {
	case <-g.gate(currency):
	case <-ctx.Done():
		return fx.Rate{}, ctx.Err()
	}
	rate, ok := g.rates[currency]
	if !ok {
		return fx.Rate{}, fx.ErrRateUnavailable
	}
	return fx.Rate{Currency: currency, Rate: rate, RateDate: fx.Day(date)}, nil
}

// instantResolver answers immediately.
type instantResolver struct {
	rates map[string]string
	err   error
}

func (r instantResolver) Resolve(ctx context.Context, currency string, date time.Time) (fx.Rate, error) {
	if r.err != nil {
		return fx.Rate{}, r.err
	}
	rate, ok := r.rates[currency]
	if !ok {
		return fx.Rate{}, fx.ErrRateUnavailable
	}
	return fx.Rate{Currency: currency, Rate: dec(rate), RateDate: fx.Day(date).AddDate(0, 0, -1)}, nil
}

func newTestStore(resolver RateResolver, now func() time.Time) *Store {
	return NewStore(StoreConfig{Resolver: resolver, Now: now, IdleTTL: time.Minute, LookupTimeout: time.Second})
}

func settle(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Settle(ctx))
}

func setCurrency(code string) func(invoicing.Document) (invoicing.Document, Result, error) {
	return func(doc invoicing.Document) (invoicing.Document, Result, error) {
		return doc.SetCurrency(code), Result{}, nil
	}
}

func TestSessionResolvesRateAfterCurrencyChange(t *testing.T) {
	store := newTestStore(instantResolver{rates: map[string]string{"USD": "1.08"}}, nil)
	defer store.Close()
	sess := store.Create(invoicing.NewDocument(testDay), false)
	assert.Equal(t, RateFixed, sess.View().Rate.Status)

	view, _, err := sess.Apply(testDay, setCurrency("USD"))
	require.NoError(t, err)
	assert.Contains(t, []RateStatus{RatePending, RateResolved}, view.Rate.Status)

	settle(t, sess)
	view = sess.View()
	assert.Equal(t, RateResolved, view.Rate.Status)
	require.NotNil(t, view.Rate.RateDate)
	assert.Equal(t, testDay.AddDate(0, 0, -1), *view.Rate.RateDate)
	assert.Equal(t, "1.08", view.Document.ConversionRate.Decimal.String())
}

func TestSessionLastLookupWins(t *testing.T) {
	resolver := newGatedResolver(map[string]string{"USD": "1.08", "GBP": "0.84"})
	store := newTestStore(resolver, nil)
	defer store.Close()
	sess := store.Create(invoicing.NewDocument(testDay), false)

	_, _, err := sess.Apply(testDay, setCurrency("USD"))
	require.NoError(t, err)
	_, _, err = sess.Apply(testDay, setCurrency("GBP"))
	require.NoError(t, err)

	resolver.release("GBP")
	require.Eventually(t, func() bool { return sess.View().Rate.Status == RateResolved }, time.Second, 5*time.Millisecond)
	resolver.release("USD")
	settle(t, sess)

	view := sess.View()
	assert.Equal(t, "GBP", view.Document.CurrencyCode)
	assert.Equal(t, "0.84", view.Document.ConversionRate.Decimal.String(), "late USD answer must not overwrite")
}

func TestSessionSupersededLookupDroppedAfterReturnToSameCurrency(t *testing.T) {
	resolver := newGatedResolver(map[string]string{"USD": "1.08"})
	store := newTestStore(resolver, nil)
	defer store.Close()
	sess := store.Create(invoicing.NewDocument(testDay), false)

	_, _, err := sess.Apply(testDay, setCurrency("USD"))
	require.NoError(t, err)
	_, _, err = sess.Apply(testDay, setCurrency("EUR"))
	require.NoError(t, err)
	assert.Equal(t, RateFixed, sess.View().Rate.Status)

	resolver.release("USD")
	settle(t, sess)
	view := sess.View()
	assert.Equal(t, RateFixed, view.Rate.Status)
	assert.Equal(t, "1", view.Document.ConversionRate.Decimal.String())
}

func TestSessionUnavailableRateDegradesReferenceTotal(t *testing.T) {
	store := newTestStore(instantResolver{err: errors.New("feed down")}, nil)
	defer store.Close()
	doc, id := invoicing.NewDocument(testDay).SetVATRate(dec("20")).AddLine()
	doc, _ = doc.SetQuantity(id, dec("3"))
	doc, _ = doc.SetUnitPrice(id, dec("10"))
	sess := store.Create(doc.SetCurrency("USD"), false)
	settle(t, sess)

	view := sess.View()
	assert.Equal(t, RateUnavailable, view.Rate.Status)
	assert.True(t, view.Totals.RateUnavailable)
	assert.Equal(t, "36", view.Totals.TotalAmountInReferenceCurrency.String())
}

func TestSessionWithoutResolver(t *testing.T) {
	store := newTestStore(nil, nil)
	sess := store.Create(invoicing.NewDocument(testDay).SetCurrency("USD"), false)
	assert.Equal(t, RateUnavailable, sess.View().Rate.Status)
	settle(t, sess)
}

func TestSessionHydratedKeepsStoredRate(t *testing.T) {
	resolver := newGatedResolver(nil)
	store := newTestStore(resolver, nil)
	defer store.Close()
	doc := invoicing.Hydrate(invoicing.StoredDocument{
		CurrencyCode:   "USD",
		ConversionRate: decimal.NewNullDecimal(dec("1.08")),
		Date:           testDay,
		VATRatePercent: dec("20"),
	})
	sess := store.Create(doc, true)
	assert.Equal(t, RateStored, sess.View().Rate.Status)
	assert.Empty(t, resolver.calls)
}

func TestSessionHydratedWithZeroRateLooksUpRate(t *testing.T) {
	store := newTestStore(instantResolver{rates: map[string]string{"USD": "1.08"}}, nil)
	defer store.Close()
	doc := invoicing.Hydrate(invoicing.StoredDocument{
		CurrencyCode:   "USD",
		ConversionRate: decimal.NewNullDecimal(decimal.Zero),
		Date:           testDay,
		VATRatePercent: dec("20"),
	})
	doc.ConversionRate = decimal.NewNullDecimal(decimal.Zero)
	sess := store.Create(doc, true)
	assert.NotEqual(t, RateStored, sess.View().Rate.Status)

	settle(t, sess)
	view := sess.View()
	assert.Equal(t, RateResolved, view.Rate.Status)
	assert.False(t, view.Totals.RateUnavailable)
	assert.Equal(t, "1.08", view.Document.ConversionRate.Decimal.String())
}

func TestSessionFailedTransitionKeepsDocument(t *testing.T) {
	store := newTestStore(nil, nil)
	sess := store.Create(invoicing.NewDocument(testDay), false)
	before := sess.Document()
	_, _, err := sess.Apply(testDay, func(doc invoicing.Document) (invoicing.Document, Result, error) {
		return doc.SetDiscount(dec("50")), Result{}, errors.New("rejected")
	})
	require.Error(t, err)
	assert.True(t, before.DiscountPercent.Equal(sess.Document().DiscountPercent))
}

func TestSessionSettleHonoursContext(t *testing.T) {
	resolver := newGatedResolver(map[string]string{"USD": "1.08"})
	store := newTestStore(resolver, nil)
	defer store.Close()
	sess := store.Create(invoicing.NewDocument(testDay).SetCurrency("USD"), false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, sess.Settle(ctx), context.DeadlineExceeded)

	resolver.release("USD")
	settle(t, sess)
}

type countingMetrics struct {
	mu          sync.Mutex
	active      int
	submissions map[string]int
}

func (m *countingMetrics) SetActiveSessions(n int) {
	m.mu.Lock()
	m.active = n
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveSubmission(outcome string) {
	m.mu.Lock()
	if m.submissions == nil {
		m.submissions = map[string]int{}
	}
	m.submissions[outcome]++
	m.mu.Unlock()
}

func TestStoreEvictsIdleSessions(t *testing.T) {
	now := testDay
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	metrics := &countingMetrics{}
	store := NewStore(StoreConfig{Now: clock, IdleTTL: time.Minute, Metrics: metrics})
	stale := store.Create(invoicing.NewDocument(testDay), false)
	fresh := store.Create(invoicing.NewDocument(testDay), false)
	assert.Equal(t, 2, metrics.active)

	mu.Lock()
	now = now.Add(45 * time.Second)
	mu.Unlock()
	_, err := store.Get(fresh.ID())
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(30 * time.Second)
	mu.Unlock()
	assert.Equal(t, 1, store.EvictIdle())

	_, err = store.Get(stale.ID())
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Get(fresh.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.active)

	require.NoError(t, store.Delete(fresh.ID()))
	require.ErrorIs(t, store.Delete(fresh.ID()), ErrSessionNotFound)
	assert.Zero(t, store.Len())
}

func TestStoreRunStopsOnCancel(t *testing.T) {
	store := NewStore(StoreConfig{IdleTTL: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("store did not stop")
	}
	assert.Error(t, store.base.Err())
}
