package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-invoicing/internal/fx"
	"github.com/odyssey-erp/odyssey-invoicing/internal/invoicing"
	"github.com/odyssey-erp/odyssey-invoicing/internal/masterdata"
	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/httpx"
)

// MasterData answers the reference data questions of the editing flow.
type MasterData interface {
	CatalogItem(ctx context.Context, id int64) (masterdata.CatalogItem, error)
	IsActiveVATRate(ctx context.Context, percent decimal.Decimal) (bool, error)
	IsActiveCurrency(ctx context.Context, code string) (bool, error)
	HasExemptionReason(ctx context.Context, id int64) (bool, error)
}

// Service runs the editing flow on top of the session store.
type Service struct {
	store         *Store
	masterdata    MasterData
	resolver      RateResolver
	formatter     *Formatter
	validate      *validator.Validate
	logger        *slog.Logger
	metrics       Metrics
	lookupTimeout time.Duration
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Store         *Store
	MasterData    MasterData
	Resolver      RateResolver
	Formatter     *Formatter
	Logger        *slog.Logger
	Metrics       Metrics
	LookupTimeout time.Duration
}

// NewService constructs the editing service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:         cfg.Store,
		masterdata:    cfg.MasterData,
		resolver:      cfg.Resolver,
		formatter:     cfg.Formatter,
		validate:      newValidator(),
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		lookupTimeout: cfg.LookupTimeout,
	}
}

// Start opens a session on a new document, or on a stored one when req.Stored is set.
func (s *Service) Start(ctx context.Context, req StartRequest) (View, error) {
	if err := s.checkRequest(req); err != nil {
		return View{}, err
	}
	if req.Stored != nil {
		return s.store.Create(invoicing.Hydrate(req.Stored.toStored()), true).View(), nil
	}
	date := s.store.now()
	if req.Date != "" {
		date, _ = time.Parse(time.DateOnly, req.Date)
	}
	doc := invoicing.NewDocument(fx.Day(date))
	if req.Currency != "" {
		doc = doc.SetCurrency(req.Currency)
	}
	return s.store.Create(doc, false).View(), nil
}

// Show returns the current view of a session.
func (s *Service) Show(id uuid.UUID) (View, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return View{}, err
	}
	return sess.View(), nil
}

// Edit applies one edit to a session.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, edit Edit) (View, Result, error) {
	if err := s.checkRequest(edit); err != nil {
		return View{}, Result{}, err
	}
	sess, err := s.store.Get(id)
	if err != nil {
		return View{}, Result{}, err
	}
	var item *invoicing.CatalogItem
	if edit.Op == OpSelectItem {
		loaded, err := s.catalogItem(ctx, *edit.CatalogItemID)
		if err != nil {
			return View{}, Result{}, err
		}
		item = &loaded
	}
	fn, err := transition(edit, item)
	if err != nil {
		return View{}, Result{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	view, res, err := sess.Apply(s.store.now(), fn)
	if errors.Is(err, invoicing.ErrLineNotFound) {
		return view, Result{}, fmt.Errorf("%w: line %s", httpx.ErrNotFound, edit.LineID)
	}
	return view, res, err
}

// Submit settles pending lookups, checks the submit contract and returns the snapshot
// for persistence. An accepted submission ends the session.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) (invoicing.Submission, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return invoicing.Submission{}, err
	}
	if err := sess.Settle(ctx); err != nil {
		return invoicing.Submission{}, fmt.Errorf("documents: settle rate lookup: %w", err)
	}
	sub := sess.Document().Submission()
	if err := s.CheckSubmission(ctx, sub); err != nil {
		s.observe("rejected")
		return invoicing.Submission{}, err
	}
	s.observe("accepted")
	if err := s.store.Delete(id); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return invoicing.Submission{}, err
	}
	return sub, nil
}

// Cancel discards a session.
func (s *Service) Cancel(id uuid.UUID) error {
	return s.store.Delete(id)
}

// CheckSubmission validates the submit contract, then the master data references.
// All violations are reported together.
func (s *Service) CheckSubmission(ctx context.Context, sub invoicing.Submission) error {
	var violations []httpx.Violation
	if err := s.validate.Struct(sub); err != nil {
		found, err := violationsFrom(err)
		if err != nil {
			return err
		}
		violations = append(violations, found...)
	}
	if s.masterdata != nil {
		found, err := s.referenceViolations(ctx, sub)
		if err != nil {
			return err
		}
		violations = append(violations, found...)
	}
	if len(violations) > 0 {
		return &httpx.ViolationError{Violations: violations}
	}
	return nil
}

func (s *Service) referenceViolations(ctx context.Context, sub invoicing.Submission) ([]httpx.Violation, error) {
	var out []httpx.Violation
	ok, err := s.masterdata.IsActiveVATRate(ctx, sub.VATRatePercent)
	if err != nil {
		return nil, fmt.Errorf("documents: check vat rate: %w", err)
	}
	if !ok {
		out = append(out, violation("vat_rate_percent", ruleActiveVATRate))
	}
	ok, err = s.masterdata.IsActiveCurrency(ctx, sub.CurrencyCode)
	if err != nil {
		return nil, fmt.Errorf("documents: check currency: %w", err)
	}
	if !ok {
		out = append(out, violation("currency_code", ruleActiveCurrency))
	}
	for i, line := range sub.Lines {
		if line.VATExemptionReasonID == nil {
			continue
		}
		ok, err := s.masterdata.HasExemptionReason(ctx, *line.VATExemptionReasonID)
		if err != nil {
			return nil, fmt.Errorf("documents: check exemption reason: %w", err)
		}
		if !ok {
			out = append(out, violation(fmt.Sprintf("lines[%d].vat_exemption_reason_id", i), ruleExemptionUnknown))
		}
	}
	return out, nil
}

// Compute normalizes a document without a session. A missing rate for a foreign
// currency is resolved synchronously when a resolver is configured.
func (s *Service) Compute(ctx context.Context, req ComputeRequest) (ComputeResponse, error) {
	if err := s.checkRequest(req); err != nil {
		return ComputeResponse{}, err
	}
	doc := req.document(s.store.now())
	status := RateFixed
	var rateDate *time.Time
	switch {
	case !doc.NeedsConversionRate():
	case doc.ConversionRate.Valid:
		status = RateStored
	case s.resolver != nil:
		lookupCtx := ctx
		if s.lookupTimeout > 0 {
			var cancel context.CancelFunc
			lookupCtx, cancel = context.WithTimeout(ctx, s.lookupTimeout)
			defer cancel()
		}
		rate, err := s.resolver.Resolve(lookupCtx, doc.CurrencyCode, doc.Date)
		if err != nil {
			if !errors.Is(err, fx.ErrRateUnavailable) {
				s.logger.Warn("compute rate lookup", slog.String("currency", doc.CurrencyCode), slog.Any("error", err))
			}
			status = RateUnavailable
			break
		}
		doc = doc.ApplyConversionRate(doc.CurrencyCode, rate.Rate)
		status = RateResolved
		rateDate = &rate.RateDate
	default:
		status = RateUnavailable
	}
	totals := doc.Totals().Rounded()
	return ComputeResponse{
		Document:   doc,
		EntryField: doc.EntryField(),
		Totals:     totals,
		Rate:       RateInfo{Status: status, RateDate: rateDate},
		Display:    s.formatter.Format(doc.CurrencyCode, totals),
	}, nil
}

func (s *Service) catalogItem(ctx context.Context, id int64) (invoicing.CatalogItem, error) {
	if s.masterdata == nil {
		return invoicing.CatalogItem{}, fmt.Errorf("%w: catalog lookups are not configured", httpx.ErrUnavailable)
	}
	item, err := s.masterdata.CatalogItem(ctx, id)
	switch {
	case errors.Is(err, masterdata.ErrNotFound):
		return invoicing.CatalogItem{}, fmt.Errorf("%w: catalog item %d", httpx.ErrNotFound, id)
	case err != nil:
		return invoicing.CatalogItem{}, fmt.Errorf("documents: load catalog item: %w", err)
	}
	return invoicing.CatalogItem{ID: item.ID, UnitOfMeasure: item.UnitOfMeasure, UnitPriceExclVAT: item.UnitPriceExclVAT}, nil
}

func (s *Service) checkRequest(req any) error {
	if err := s.validate.Struct(req); err != nil {
		found, err := violationsFrom(err)
		if err != nil {
			return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		return &httpx.ViolationError{Request: true, Violations: found}
	}
	return nil
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveSubmission(outcome)
	}
}
