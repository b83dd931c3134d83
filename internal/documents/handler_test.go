package documents

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retail-ledger/internal/shared"
)

func newTestRouter(t *testing.T) (*chi.Mux, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	svc, _, _ := newTestService(repo, chart())
	router := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(router)
	return router, repo
}

func serve(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req = req.WithContext(shared.ContextWithActor(req.Context(), 7))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const billJSON = `{
	"lines": [{"description": "Bread", "quantity": "2", "rate": "25", "amount": "50"}],
	"subtotal": "50",
	"total": "50",
	"paid_amount": "50",
	"payment_mode": "UPI"
}`

func TestHandlerCreateBill(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := serve(router, http.MethodPost, "/bills", billJSON, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var bill Bill
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bill))
	assert.Equal(t, "INV0001", bill.BillNumber)
	assert.Len(t, bill.Entries, 1)

	rec = serve(router, http.MethodGet, "/bills/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodGet, "/bills/999", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerIdempotencyHeader(t *testing.T) {
	router, repo := newTestRouter(t)
	headers := map[string]string{IdempotencyHeader: "till-3-0001"}

	rec := serve(router, http.MethodPost, "/bills", billJSON, headers)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = serve(router, http.MethodPost, "/bills", billJSON, headers)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, repo.st.bills, 1)
}

func TestHandlerRejectsUnbalancedBill(t *testing.T) {
	router, repo := newTestRouter(t)
	body := strings.Replace(billJSON, `"total": "50"`, `"total": "55"`, 1)

	rec := serve(router, http.MethodPost, "/bills", body, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.st.entries)
}

func TestHandlerOrderLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := serve(router, http.MethodPost, "/orders", `{
		"customer_id": 3,
		"lines": [{"description": "Cake", "quantity": 1, "rate": 300, "amount": 300}],
		"subtotal": 300,
		"total": 300
	}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))

	rec = serve(router, http.MethodPost, "/orders/1/status", `{"status": "CONFIRMED"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodPost, "/orders/1/convert", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var bill Bill
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bill))
	assert.True(t, bill.BalanceAmount.Equal(d("300")))

	rec = serve(router, http.MethodPost, "/orders/1/status", `{"status": "CANCELLED"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(router, http.MethodGet, "/orders?status=FULFILLED", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page Page[Order]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, order.OrderNumber, page.Items[0].OrderNumber)
}

func TestHandlerCancelBill(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := serve(router, http.MethodPost, "/bills", billJSON, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(router, http.MethodPost, "/bills/1/cancel", `{"reason": "wrong item"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bill Bill
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bill))
	assert.Equal(t, BillCancelled, bill.Status)
	require.Len(t, bill.Entries, 1)
	assert.Contains(t, bill.Entries[0].Narration, "wrong item")
}

func TestHandlerCreateExpenseRejectsCredit(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := serve(router, http.MethodPost, "/expenses", `{"category": "rent", "amount": "100", "description": "April", "payment_mode": "CREDIT"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodPost, "/expenses", `{"category": "rent", "amount": "100", "description": "April"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHandlerListBillsRejectsBadDate(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := serve(router, http.MethodGet, "/bills?from=yesterday", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerListRejectsMalformedPartyFilter(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := serve(router, http.MethodGet, "/bills?customer_id=abc", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(router, http.MethodGet, "/purchases?supplier_id=2x", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerUpdateBill(t *testing.T) {
	router, repo := newTestRouter(t)
	rec := serve(router, http.MethodPost, "/bills", billJSON, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	revised := `{
	"lines": [{"description": "Bread", "quantity": "3", "rate": "25", "amount": "75"}],
	"subtotal": "75",
	"total": "75",
	"paid_amount": "75",
	"payment_mode": "UPI"
}`
	rec = serve(router, http.MethodPut, "/bills/1", revised, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bill Bill
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bill))
	assert.Equal(t, "INV0001", bill.BillNumber)
	assert.True(t, bill.Total.Equal(d("75")))
	assert.Len(t, repo.entriesFor("INV0001"), 3)

	rec = serve(router, http.MethodPut, "/bills/999", revised, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(router, http.MethodPut, "/bills/1", `{"lines": []}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
