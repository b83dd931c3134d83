package documents

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/retail-ledger/internal/platform/httpx"
)

// IdempotencyHeader carries a client key that makes create requests safe to retry.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes documents over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/bills", func(r chi.Router) {
		r.Get("/", h.listBills)
		r.Post("/", h.createBill)
		r.Get("/{id}", h.getBill)
		r.Put("/{id}", h.updateBill)
		r.Post("/{id}/cancel", h.cancelBill)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Get("/{id}", h.getOrder)
		r.Post("/{id}/status", h.updateOrderStatus)
		r.Post("/{id}/convert", h.convertOrder)
	})
	r.Route("/purchases", func(r chi.Router) {
		r.Get("/", h.listPurchases)
		r.Post("/", h.createPurchase)
	})
	r.Route("/expenses", func(r chi.Router) {
		r.Get("/", h.listExpenses)
		r.Post("/", h.createExpense)
	})
}

func (h *Handler) createBill(w http.ResponseWriter, r *http.Request) {
	var req CreateBillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	bill, err := h.service.CreateBill(r.Context(), req)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "create bill", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bill)
}

func (h *Handler) getBill(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bill, err := h.service.GetBill(r.Context(), id)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "get bill", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) listBills(w http.ResponseWriter, r *http.Request) {
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
	customerID, err := httpx.IDQuery(r, "customer_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListBills(r.Context(), BillFilter{
		Search:     r.URL.Query().Get("search"),
		CustomerID: customerID,
		From:       from,
		To:         to,
		Page:       httpx.IntQuery(r, "page"),
		PerPage:    httpx.IntQuery(r, "limit"),
	})
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "list bills", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) updateBill(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateBillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	bill, err := h.service.UpdateBill(r.Context(), id, req)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "update bill", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelBill(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	bill, err := h.service.CancelBill(r.Context(), id, req.Reason)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "cancel bill", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	order, err := h.service.CreateOrder(r.Context(), req)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListOrders(r.Context(), OrderFilter{
		Status:  OrderStatus(r.URL.Query().Get("status")),
		Search:  r.URL.Query().Get("search"),
		Page:    httpx.IntQuery(r, "page"),
		PerPage: httpx.IntQuery(r, "limit"),
	})
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "list orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

type statusRequest struct {
	Status OrderStatus `json:"status"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "update order status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) convertOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ConvertOrderRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	bill, err := h.service.ConvertOrderToBill(r.Context(), id, req)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "convert order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bill)
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	var req CreatePurchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	purchase, err := h.service.CreatePurchase(r.Context(), req)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "create purchase", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchase)
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	supplierID, err := httpx.IDQuery(r, "supplier_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListPurchases(r.Context(), PurchaseFilter{
		Search:     r.URL.Query().Get("search"),
		SupplierID: supplierID,
		Page:       httpx.IntQuery(r, "page"),
		PerPage:    httpx.IntQuery(r, "limit"),
	})
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "list purchases", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	expense, err := h.service.CreateExpense(r.Context(), req)
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "create expense", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, expense)
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
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
	page, err := h.service.ListExpenses(r.Context(), ExpenseFilter{
		Category: r.URL.Query().Get("category"),
		From:     from,
		To:       to,
		Page:     httpx.IntQuery(r, "page"),
		PerPage:  httpx.IntQuery(r, "limit"),
	})
	if err != nil {
		httpx.RespondErrorLogged(w, r, h.logger, "list expenses", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}
