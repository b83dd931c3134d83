package sequence

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/retail-ledger/internal/platform/httpx"
)

// Handler exposes the allocator over HTTP.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sequence routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sequences/{prefix}/next", h.next)
	r.Get("/sequences/{prefix}/peek", h.peek)
}

type numberResponse struct {
	Prefix string `json:"prefix"`
	Number string `json:"number"`
}

func (h *Handler) next(w http.ResponseWriter, r *http.Request) {
	prefix := strings.ToUpper(chi.URLParam(r, "prefix"))
	number, err := h.service.Next(r.Context(), prefix)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "next sequence", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, numberResponse{Prefix: prefix, Number: number})
}

func (h *Handler) peek(w http.ResponseWriter, r *http.Request) {
	prefix := strings.ToUpper(chi.URLParam(r, "prefix"))
	number, err := h.service.Peek(r.Context(), prefix)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "peek sequence", err)
		return
	}
	httpx.JSON(w, http.StatusOK, numberResponse{Prefix: prefix, Number: number})
}
