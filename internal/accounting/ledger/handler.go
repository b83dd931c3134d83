package ledger

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/retail-ledger/internal/platform/httpx"
)

// Handler exposes ledger entries over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/entries", h.query)
	r.Post("/entries", h.post)
	r.Post("/entries/{id}/reverse", h.reverse)
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	from, err := httpx.DateQuery(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.DateQuery(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accountID, err := httpx.IDQuery(r, "account_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	billID, err := httpx.IDQuery(r, "bill_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	page, err := h.service.Query(r.Context(), QueryFilter{
		AccountID:     accountID,
		From:          from,
		To:            to,
		VoucherType:   VoucherType(q.Get("voucher_type")),
		VoucherNumber: q.Get("voucher_number"),
		BillID:        billID,
		Page:          httpx.IntQuery(r, "page"),
		PerPage:       httpx.IntQuery(r, "limit"),
	})
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "query ledger", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req PostRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Post(r.Context(), req)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "post entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type reverseRequest struct {
	Date      string `json:"date"`
	Narration string `json:"narration"`
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reverseRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	in := ReverseInput{EntryID: id, Narration: req.Narration}
	if req.Date != "" {
		d, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		in.Date = d
	}
	entry, err := h.service.Reverse(r.Context(), in)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "reverse entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}
