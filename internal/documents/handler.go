package documents

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/httpx"
)

// Handler wires the document editing endpoints.
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

// MountRoutes registers document routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/documents/compute", h.compute)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.start)
		r.Get("/{id}", h.show)
		r.Post("/{id}/edits", h.edit)
		r.Post("/{id}/submit", h.submit)
		r.Delete("/{id}", h.cancel)
	})
}

type editResponse struct {
	View
	LineID *uuid.UUID `json:"line_id,omitempty"`
}

func (h *Handler) compute(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Compute(r.Context(), req)
	if err != nil {
		h.fail(w, "compute document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	view, err := h.service.Start(r.Context(), req)
	if err != nil {
		h.fail(w, "start session", err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+view.ID.String())
	httpx.JSON(w, http.StatusCreated, view)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Show(id)
	if err != nil {
		h.fail(w, "show session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var edit Edit
	if err := httpx.DecodeJSON(r, &edit); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, res, err := h.service.Edit(r.Context(), id, edit)
	if err != nil {
		h.fail(w, "edit session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, editResponse{View: view, LineID: res.LineID})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	sub, err := h.service.Submit(r.Context(), id)
	if err != nil {
		h.fail(w, "submit session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.service.Cancel(id); err != nil {
		h.fail(w, "cancel session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: session id", httpx.ErrValidation))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
		return
	case errors.Is(err, httpx.ErrValidation), errors.Is(err, httpx.ErrUnprocessable),
		errors.Is(err, httpx.ErrNotFound), errors.Is(err, httpx.ErrUnavailable):
	default:
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
