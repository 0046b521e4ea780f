package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-invoicing/internal/masterdata"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/httpx"
)

type fakeMasterData struct {
	items    map[int64]masterdata.CatalogItem
	vatRates []string
	reasons  map[int64]bool
	currency map[string]bool
}

func newFakeMasterData() *fakeMasterData {
	return &fakeMasterData{
		items: map[int64]masterdata.CatalogItem{
			7: {ID: 7, ItemNumber: "A-7", Name: "Widget", UnitOfMeasure: "pcs", UnitPriceExclVAT: dec("10.00")},
		},
		vatRates: []string{"20", "10", "0"},
		reasons:  map[int64]bool{3: true},
		currency: map[string]bool{"EUR": true, "USD": true},
	}
}

func (f *fakeMasterData) CatalogItem(ctx context.Context, id int64) (masterdata.CatalogItem, error) {
	item, ok := f.items[id]
	if !ok {
		return masterdata.CatalogItem{}, masterdata.ErrNotFound
	}
	return item, nil
}

func (f *fakeMasterData) IsActiveVATRate(ctx context.Context, percent decimal.Decimal) (bool, error) {
	for _, rate := range f.vatRates {
		if dec(rate).Equal(percent) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMasterData) IsActiveCurrency(ctx context.Context, code string) (bool, error) {
	return f.currency[code], nil
}

func (f *fakeMasterData) HasExemptionReason(ctx context.Context, id int64) (bool, error) {
	return f.reasons[id], nil
}

type apiFixture struct {
	t       *testing.T
	router  http.Handler
	store   *Store
	metrics *countingMetrics
}

func newAPIFixture(t *testing.T, resolver RateResolver) *apiFixture {
	t.Helper()
	metrics := &countingMetrics{}
	formatter := NewFormatter(language.English)
	store := NewStore(StoreConfig{
		Resolver:      resolver,
		Formatter:     formatter,
		Metrics:       metrics,
		IdleTTL:       time.Minute,
		LookupTimeout: time.Second,
		Now:           func() time.Time { return testDay.Add(9 * time.Hour) },
	})
	t.Cleanup(store.Close)
	svc := NewService(ServiceConfig{
		Store:         store,
		MasterData:    newFakeMasterData(),
		Resolver:      resolver,
		Formatter:     formatter,
		Metrics:       metrics,
		LookupTimeout: time.Second,
	})
	r := chi.NewRouter()
	r.Route("/api", NewHandler(nil, svc).MountRoutes)
	return &apiFixture{t: t, router: r, store: store, metrics: metrics}
}

func (f *apiFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

type viewBody struct {
	ID         uuid.UUID `json:"id"`
	LineID     uuid.UUID `json:"line_id"`
	EntryField string    `json:"entry_field"`
	Document   struct {
		CurrencyCode   string  `json:"currency_code"`
		ConversionRate *string `json:"conversion_rate"`
		Items          []struct {
			ID               uuid.UUID `json:"id"`
			CatalogItemID    *int64    `json:"catalog_item_id"`
			UnitOfMeasure    string    `json:"unit_of_measure"`
			UnitPriceExclVAT string    `json:"unit_price_excl_vat"`
			UnitPriceInclVAT string    `json:"unit_price_incl_vat"`
			LineTotal        string    `json:"line_total"`
		} `json:"items"`
	} `json:"document"`
	Totals struct {
		SubtotalWithoutDiscount        string `json:"subtotal_without_discount"`
		DiscountAmount                 string `json:"discount_amount"`
		VATAmount                      string `json:"vat_amount"`
		TotalAmount                    string `json:"total_amount"`
		TotalAmountInReferenceCurrency string `json:"total_amount_in_reference_currency"`
		RateUnavailable                bool   `json:"rate_unavailable"`
	} `json:"totals"`
	Rate    RateInfo `json:"rate"`
	Display Display  `json:"display"`
}

func (f *apiFixture) decode(rec *httptest.ResponseRecorder, status int) viewBody {
	f.t.Helper()
	require.Equal(f.t, status, rec.Code, rec.Body.String())
	var body viewBody
	require.NoError(f.t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func (f *apiFixture) edit(id uuid.UUID, edit Edit) viewBody {
	f.t.Helper()
	return f.decode(f.do(http.MethodPost, "/api/sessions/"+id.String()+"/edits", edit), http.StatusOK)
}

func TestEditingFlowComputesTotals(t *testing.T) {
	f := newAPIFixture(t, instantResolver{rates: map[string]string{"USD": "1.08"}})
	started := f.decode(f.do(http.MethodPost, "/api/sessions", StartRequest{Date: "2025-03-14"}), http.StatusCreated)
	assert.Equal(t, "EUR", started.Document.CurrencyCode)
	assert.Equal(t, "unit_price_excl_vat", started.EntryField)
	assert.Equal(t, 1, f.metrics.active)

	id := started.ID
	f.edit(id, Edit{Op: OpSetVATRate, Value: "20"})
	added := f.edit(id, Edit{Op: OpAddLine})
	line := added.LineID.String()
	f.edit(id, Edit{Op: OpSetQuantity, LineID: line, Value: "3"})
	view := f.edit(id, Edit{Op: OpSetUnitPrice, LineID: line, Value: "10,00"})

	require.Len(t, view.Document.Items, 1)
	assert.Equal(t, "12", view.Document.Items[0].UnitPriceInclVAT)
	assert.Equal(t, "30", view.Totals.SubtotalWithoutDiscount)
	assert.Equal(t, "6", view.Totals.VATAmount)
	assert.Equal(t, "36", view.Totals.TotalAmount)
	assert.Equal(t, "36.00 EUR", view.Display.TotalAmount)

	view = f.edit(id, Edit{Op: OpSetDiscount, Value: "10"})
	assert.Equal(t, "3", view.Totals.DiscountAmount)
	assert.Equal(t, "32.4", view.Totals.TotalAmount)

	f.edit(id, Edit{Op: OpSetDiscount, Value: "0"})
	f.edit(id, Edit{Op: OpSetCurrency, Currency: "USD"})
	sess, err := f.store.Get(id)
	require.NoError(t, err)
	settle(t, sess)

	view = f.decode(f.do(http.MethodGet, "/api/sessions/"+id.String(), nil), http.StatusOK)
	assert.Equal(t, RateResolved, view.Rate.Status)
	assert.Equal(t, "33.33", view.Totals.TotalAmountInReferenceCurrency)
	assert.Equal(t, "36.00 USD", view.Display.TotalAmount)
	assert.Equal(t, "33.33 EUR", view.Display.TotalAmountInReferenceCurrency)
}

func TestEditingSelectItemAndInclusiveBasis(t *testing.T) {
	f := newAPIFixture(t, nil)
	started := f.decode(f.do(http.MethodPost, "/api/sessions", nil), http.StatusCreated)
	id := started.ID
	f.edit(id, Edit{Op: OpSetVATRate, Value: "20"})
	line := f.edit(id, Edit{Op: OpAddLine}).LineID.String()

	item := int64(7)
	view := f.edit(id, Edit{Op: OpSelectItem, LineID: line, CatalogItemID: &item})
	require.NotNil(t, view.Document.Items[0].CatalogItemID)
	assert.Equal(t, "pcs", view.Document.Items[0].UnitOfMeasure)
	assert.Equal(t, "10", view.Document.Items[0].UnitPriceExclVAT)

	include := true
	view = f.edit(id, Edit{Op: OpSetPricesIncludeVAT, PricesIncludeVAT: &include})
	assert.Equal(t, "unit_price_incl_vat", view.EntryField)

	view = f.edit(id, Edit{Op: OpSetUnitPrice, LineID: line, Value: "12.00"})
	assert.Equal(t, "10", view.Document.Items[0].UnitPriceExclVAT)

	missing := int64(99)
	rec := f.do(http.MethodPost, "/api/sessions/"+id.String()+"/edits", Edit{Op: OpSelectItem, LineID: line, CatalogItemID: &missing})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEditValidation(t *testing.T) {
	f := newAPIFixture(t, nil)
	id := f.decode(f.do(http.MethodPost, "/api/sessions", nil), http.StatusCreated).ID
	path := "/api/sessions/" + id.String() + "/edits"

	cases := []struct {
		name  string
		edit  Edit
		field string
	}{
		{"unknown op", Edit{Op: "explode"}, "op"},
		{"line required", Edit{Op: OpSetQuantity, Value: "1"}, "line_id"},
		{"negative quantity", Edit{Op: OpSetQuantity, LineID: uuid.NewString(), Value: "-1"}, "value"},
		{"percent range", Edit{Op: OpSetDiscount, Value: "101"}, "value"},
		{"currency code", Edit{Op: OpSetCurrency, Currency: "EURO"}, "currency"},
		{"date format", Edit{Op: OpSetDate, Date: "14.03.2025"}, "date"},
		{"basis flag", Edit{Op: OpSetPricesIncludeVAT}, "prices_include_vat"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, path, tc.edit)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var problem httpx.ProblemDetail
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
			require.NotEmpty(t, problem.Violations)
			assert.Equal(t, tc.field, problem.Violations[0].Field)
		})
	}

	rec := f.do(http.MethodPost, path, Edit{Op: OpSetQuantity, LineID: uuid.NewString(), Value: "1"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown line")

	view := f.edit(id, Edit{Op: OpSetVATRate, Value: "abc"})
	assert.Equal(t, "0", view.Totals.VATAmount, "unparseable input counts as zero")
}

func TestSubmitRejectsIncompleteDocument(t *testing.T) {
	f := newAPIFixture(t, nil)
	id := f.decode(f.do(http.MethodPost, "/api/sessions", nil), http.StatusCreated).ID
	f.edit(id, Edit{Op: OpSetVATRate, Value: "0"})
	line := f.edit(id, Edit{Op: OpAddLine}).LineID.String()
	f.edit(id, Edit{Op: OpSetQuantity, LineID: line, Value: "1"})

	rec := f.do(http.MethodPost, "/api/sessions/"+id.String()+"/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	messages := map[string]string{}
	for _, v := range problem.Violations {
		messages[v.Field] = v.Message
	}
	assert.Equal(t, "every line must reference a catalog item", messages["lines[0].catalog_item_id"])
	assert.Equal(t, "a VAT exemption reason is required when the VAT rate is 0%", messages["lines[0].vat_exemption_reason_id"])
	assert.Equal(t, 1, f.metrics.submissions["rejected"])

	item, reason := int64(7), int64(3)
	f.edit(id, Edit{Op: OpSelectItem, LineID: line, CatalogItemID: &item})
	f.edit(id, Edit{Op: OpSetExemptionReason, LineID: line, ExemptionReasonID: &reason})

	rec = f.do(http.MethodPost, "/api/sessions/"+id.String()+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sub struct {
		CurrencyCode string `json:"currency_code"`
		Lines        []struct {
			CatalogItemID        int64  `json:"catalog_item_id"`
			VATExemptionReasonID *int64 `json:"vat_exemption_reason_id"`
			VATRatePercent       string `json:"vat_rate_percent"`
		} `json:"lines"`
		Totals struct {
			TotalAmount string `json:"total_amount"`
		} `json:"totals"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sub))
	require.Len(t, sub.Lines, 1)
	assert.Equal(t, int64(7), sub.Lines[0].CatalogItemID)
	assert.Equal(t, "10", sub.Totals.TotalAmount)
	assert.Equal(t, 1, f.metrics.submissions["accepted"])

	rec = f.do(http.MethodGet, "/api/sessions/"+id.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "accepted submission ends the session")
}

func TestSubmitChecksReferenceData(t *testing.T) {
	f := newAPIFixture(t, nil)
	id := f.decode(f.do(http.MethodPost, "/api/sessions", nil), http.StatusCreated).ID
	f.edit(id, Edit{Op: OpSetVATRate, Value: "19"})
	line := f.edit(id, Edit{Op: OpAddLine}).LineID.String()
	item, reason := int64(7), int64(42)
	f.edit(id, Edit{Op: OpSelectItem, LineID: line, CatalogItemID: &item})
	f.edit(id, Edit{Op: OpSetExemptionReason, LineID: line, ExemptionReasonID: &reason})

	rec := f.do(http.MethodPost, "/api/sessions/"+id.String()+"/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	rules := map[string]bool{}
	for _, v := range problem.Violations {
		rules[v.Rule] = true
	}
	assert.True(t, rules[ruleActiveVATRate])
	assert.True(t, rules[ruleExemptionUnknown])
}

func TestSubmitRequiresResolvedRate(t *testing.T) {
	f := newAPIFixture(t, instantResolver{})
	id := f.decode(f.do(http.MethodPost, "/api/sessions", StartRequest{Currency: "USD"}), http.StatusCreated).ID
	f.edit(id, Edit{Op: OpSetVATRate, Value: "20"})
	line := f.edit(id, Edit{Op: OpAddLine}).LineID.String()
	item := int64(7)
	f.edit(id, Edit{Op: OpSelectItem, LineID: line, CatalogItemID: &item})

	rec := f.do(http.MethodPost, "/api/sessions/"+id.String()+"/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), ruleRateRequired)
}

func TestHydratedSession(t *testing.T) {
	f := newAPIFixture(t, nil)
	item := int64(7)
	req := StartRequest{Stored: &StoredDocumentRequest{
		CurrencyCode:   "USD",
		ConversionRate: decimal.NewNullDecimal(dec("1.08")),
		Date:           "2025-03-14",
		VATRatePercent: dec("20"),
		Lines: []StoredLineRequest{{
			CatalogItemID:    &item,
			UnitOfMeasure:    "pcs",
			Quantity:         dec("3"),
			UnitPriceInclVAT: dec("12.00"),
		}},
	}}
	view := f.decode(f.do(http.MethodPost, "/api/sessions", req), http.StatusCreated)
	assert.Equal(t, RateStored, view.Rate.Status)
	require.Len(t, view.Document.Items, 1)
	assert.Equal(t, "10", view.Document.Items[0].UnitPriceExclVAT)
	assert.Equal(t, "33.33", view.Totals.TotalAmountInReferenceCurrency)

	bad := StartRequest{Stored: &StoredDocumentRequest{CurrencyCode: "USD", Date: "2025-03-14", VATRatePercent: dec("120")}}
	rec := f.do(http.MethodPost, "/api/sessions", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHydratedSessionRejectsZeroRate(t *testing.T) {
	f := newAPIFixture(t, instantResolver{rates: map[string]string{"USD": "1.08"}})
	req := StartRequest{Stored: &StoredDocumentRequest{
		CurrencyCode:   "USD",
		ConversionRate: decimal.NewNullDecimal(decimal.Zero),
		Date:           "2025-03-14",
		VATRatePercent: dec("20"),
	}}
	rec := f.do(http.MethodPost, "/api/sessions", req)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	require.Len(t, problem.Violations, 1)
	assert.Equal(t, "stored.conversion_rate", problem.Violations[0].Field)
	assert.Equal(t, "gt", problem.Violations[0].Rule)

	req.Stored.ConversionRate = decimal.NullDecimal{}
	view := f.decode(f.do(http.MethodPost, "/api/sessions", req), http.StatusCreated)
	assert.NotEqual(t, RateStored, view.Rate.Status)
}

func TestOversizedNumbersAreBounded(t *testing.T) {
	f := newAPIFixture(t, nil)
	id := f.decode(f.do(http.MethodPost, "/api/sessions", nil), http.StatusCreated).ID
	f.edit(id, Edit{Op: OpSetVATRate, Value: "20"})
	line := f.edit(id, Edit{Op: OpAddLine}).LineID.String()
	f.edit(id, Edit{Op: OpSetUnitPrice, LineID: line, Value: "10"})

	view := f.edit(id, Edit{Op: OpSetQuantity, LineID: line, Value: "1e20000000"})
	assert.Equal(t, "0", view.Totals.TotalAmount, "out of range quantity counts as zero")
	f.edit(id, Edit{Op: OpSetQuantity, LineID: line, Value: "2"})
	view = f.edit(id, Edit{Op: OpSetUnitPrice, LineID: line, Value: "9e999999"})
	assert.Equal(t, "0", view.Totals.TotalAmount, "out of range price counts as zero")

	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"quantity", `{"vat_rate_percent":"20","lines":[{"quantity":"1e20000000","unit_price":"10"}]}`, "lines[0].quantity"},
		{"unit price", `{"vat_rate_percent":"20","lines":[{"quantity":"1","unit_price":"1e400"}]}`, "lines[0].unit_price"},
		{"conversion rate", `{"currency_code":"USD","conversion_rate":"1e-20000000","lines":[]}`, "conversion_rate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/documents/compute", json.RawMessage(tc.body))
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			require.Less(t, rec.Body.Len(), 4096)
			var problem httpx.ProblemDetail
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
			fields := map[string]string{}
			for _, v := range problem.Violations {
				fields[v.Field] = v.Rule
			}
			assert.Equal(t, ruleDecimalBounded, fields[tc.field], problem.Violations)
		})
	}

	stored := `{"stored":{"currency_code":"EUR","date":"2025-03-14","lines":[{"quantity":"1e20000000","unit_price_incl_vat":"1"}]}}`
	rec := f.do(http.MethodPost, "/api/sessions", json.RawMessage(stored))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestCancelSession(t *testing.T) {
	f := newAPIFixture(t, nil)
	id := f.decode(f.do(http.MethodPost, "/api/sessions", nil), http.StatusCreated).ID
	rec := f.do(http.MethodDelete, "/api/sessions/"+id.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(http.MethodDelete, "/api/sessions/"+id.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(http.MethodGet, "/api/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComputeEndpoint(t *testing.T) {
	f := newAPIFixture(t, instantResolver{rates: map[string]string{"USD": "1.08"}})
	req := ComputeRequest{
		VATRatePercent: dec("20"),
		CurrencyCode:   "USD",
		Date:           "2025-03-14",
		Lines:          []ComputeLine{{Quantity: dec("3"), UnitPrice: dec("10.00")}},
	}
	view := f.decode(f.do(http.MethodPost, "/api/documents/compute", req), http.StatusOK)
	assert.Equal(t, RateResolved, view.Rate.Status)
	assert.Equal(t, "36", view.Totals.TotalAmount)
	assert.Equal(t, "33.33", view.Totals.TotalAmountInReferenceCurrency)

	req.PricesIncludeVAT = true
	req.CurrencyCode = ""
	req.Lines[0].UnitPrice = dec("12.00")
	view = f.decode(f.do(http.MethodPost, "/api/documents/compute", req), http.StatusOK)
	assert.Equal(t, RateFixed, view.Rate.Status)
	assert.Equal(t, "10", view.Document.Items[0].UnitPriceExclVAT)
	assert.Equal(t, "36", view.Totals.TotalAmountInReferenceCurrency)

	req.CurrencyCode = "GBP"
	view = f.decode(f.do(http.MethodPost, "/api/documents/compute", req), http.StatusOK)
	assert.Equal(t, RateUnavailable, view.Rate.Status)
	assert.True(t, view.Totals.RateUnavailable)

	req.DiscountPercent = dec("-1")
	rec := f.do(http.MethodPost, "/api/documents/compute", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
