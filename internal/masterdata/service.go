package masterdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// ErrInvalidID is returned for non-positive identifiers.
var ErrInvalidID = errors.New("masterdata: invalid id")

// Service answers master data lookups for the editing flow and for submit validation.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new master data service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// CatalogItem returns an active catalog item.
func (s *Service) CatalogItem(ctx context.Context, id int64) (CatalogItem, error) {
	if id <= 0 {
		return CatalogItem{}, fmt.Errorf("%w: catalog item %d", ErrInvalidID, id)
	}
	return s.repo.GetCatalogItem(ctx, id)
}

// VATRates lists the active VAT rates.
func (s *Service) VATRates(ctx context.Context) ([]VATRate, error) {
	return s.repo.ListVATRates(ctx)
}

// IsActiveVATRate reports whether percent is one of the active VAT rates.
func (s *Service) IsActiveVATRate(ctx context.Context, percent decimal.Decimal) (bool, error) {
	rates, err := s.repo.ListVATRates(ctx)
	if err != nil {
		return false, err
	}
	for _, rate := range rates {
		if rate.RatePercent.Equal(percent) {
			return true, nil
		}
	}
	return false, nil
}

// Currencies lists the active currencies. Rows whose code is not a known ISO 4217
// currency are skipped.
func (s *Service) Currencies(ctx context.Context) ([]Currency, error) {
	rows, err := s.repo.ListCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Currency, 0, len(rows))
	for _, row := range rows {
		code := strings.ToUpper(strings.TrimSpace(row.Code))
		if _, err := currency.ParseISO(code); err != nil {
			s.logger.Warn("skip unknown currency", slog.String("code", row.Code))
			continue
		}
		row.Code = code
		out = append(out, row)
	}
	return out, nil
}

// IsActiveCurrency reports whether code is an active currency.
func (s *Service) IsActiveCurrency(ctx context.Context, code string) (bool, error) {
	currencies, err := s.Currencies(ctx)
	if err != nil {
		return false, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range currencies {
		if c.Code == code {
			return true, nil
		}
	}
	return false, nil
}

// ExemptionReasons lists the active VAT exemption reasons.
func (s *Service) ExemptionReasons(ctx context.Context) ([]ExemptionReason, error) {
	return s.repo.ListExemptionReasons(ctx)
}

// HasExemptionReason reports whether id names an active exemption reason.
func (s *Service) HasExemptionReason(ctx context.Context, id int64) (bool, error) {
	reasons, err := s.repo.ListExemptionReasons(ctx)
	if err != nil {
		return false, err
	}
	for _, reason := range reasons {
		if reason.ID == id {
			return true, nil
		}
	}
	return false, nil
}
