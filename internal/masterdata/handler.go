package masterdata

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/httpx"
)

// Handler exposes master data over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers master data routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/vat-rates", h.listVATRates)
	r.Get("/currencies", h.listCurrencies)
	r.Get("/exemption-reasons", h.listExemptionReasons)
	r.Get("/catalog-items/{id}", h.showCatalogItem)
}

func (h *Handler) listVATRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.service.VATRates(r.Context())
	if err != nil {
		h.fail(w, "list vat rates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vat_rates": nonNil(rates)})
}

func (h *Handler) listCurrencies(w http.ResponseWriter, r *http.Request) {
	currencies, err := h.service.Currencies(r.Context())
	if err != nil {
		h.fail(w, "list currencies", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"currencies": nonNil(currencies)})
}

func (h *Handler) listExemptionReasons(w http.ResponseWriter, r *http.Request) {
	reasons, err := h.service.ExemptionReasons(r.Context())
	if err != nil {
		h.fail(w, "list exemption reasons", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"exemption_reasons": nonNil(reasons)})
}

func (h *Handler) showCatalogItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: catalog item id", httpx.ErrValidation))
		return
	}
	item, err := h.service.CatalogItem(r.Context(), id)
	if err != nil {
		h.fail(w, "get catalog item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrInvalidID):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
