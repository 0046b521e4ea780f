package fx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/httpx"
)

// Handler exposes rate lookups over JSON.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
	now      func() time.Time
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, resolver: resolver, now: time.Now}
}

// MountRoutes registers rate routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/rates/{currency}", h.showRate)
}

type rateResponse struct {
	Rate
	Convention string `json:"convention"`
}

func (h *Handler) showRate(w http.ResponseWriter, r *http.Request) {
	date := h.now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: date must be formatted YYYY-MM-DD", httpx.ErrValidation))
			return
		}
		date = parsed
	}
	rate, err := h.resolver.Resolve(r.Context(), chi.URLParam(r, "currency"), date)
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, rateResponse{Rate: rate, Convention: Convention})
	case errors.Is(err, ErrInvalidCurrency):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, ErrRateUnavailable):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	default:
		h.logger.Warn("resolve rate", slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnavailable, err))
	}
}
