package accounts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/retail-ledger/internal/platform/httpx"
)

// Handler exposes the registry over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/hierarchy", h.hierarchy)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.deactivate)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeRetired, _ := strconv.ParseBool(q.Get("include_retired"))
	accounts, err := h.service.List(r.Context(), ListFilter{
		Search:         q.Get("search"),
		Type:           AccountType(q.Get("type")),
		IncludeRetired: includeRetired,
	})
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "list accounts", err)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) hierarchy(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.Hierarchy(r.Context())
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "account hierarchy", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "get account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "update account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	outcome, err := h.service.DeactivateOrDelete(r.Context(), id)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "deactivate account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "outcome": outcome})
}
