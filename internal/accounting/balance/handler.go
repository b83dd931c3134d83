package balance

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/retail-ledger/internal/platform/httpx"
)

// Handler exposes balance reports.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the trial balance route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.trialBalance)
}

// MountAccountRoutes registers per-account routes under the accounts group.
func (h *Handler) MountAccountRoutes(r chi.Router) {
	r.Get("/{id}/balance", h.balance)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, err := httpx.DateQuery(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Balance(r.Context(), id, asOf)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "account balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.DateQuery(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), asOf)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "trial balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}
