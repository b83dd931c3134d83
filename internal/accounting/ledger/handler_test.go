package ledger

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

func newLedgerRouter(t *testing.T) (http.Handler, *memLedger) {
	t.Helper()
	svc, repo, _ := newTestService(1, 2)
	r := chi.NewRouter()
	r.Route("/ledger", NewHandler(nil, svc).MountRoutes)
	return r, repo
}

func doLedger(h http.Handler, method, path, body string, withActor bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if withActor {
		req = req.WithContext(shared.ContextWithActor(req.Context(), 1))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerPostQueryReverse(t *testing.T) {
	h, repo := newLedgerRouter(t)

	rec := doLedger(h, http.MethodPost, "/ledger/entries",
		`{"date":"2024-03-01","debit_account_id":1,"credit_account_id":2,"amount":"250.00","narration":"Opening cash"}`, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var posted Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posted))
	assert.Equal(t, "JV0001", posted.VoucherNumber)

	rec = doLedger(h, http.MethodGet, "/ledger/entries?account_id=1&limit=10", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var page Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Entries, 1)
	assert.Equal(t, 1, page.Pagination.Total)

	rec = doLedger(h, http.MethodPost, "/ledger/entries/1/reverse", `{"narration":"Keyed twice"}`, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doLedger(h, http.MethodPost, "/ledger/entries/1/reverse", "", true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, repo.entries, 2)
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	h, repo := newLedgerRouter(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		actor  bool
		status int
	}{
		{"no actor", http.MethodPost, "/ledger/entries", `{"debit_account_id":1,"credit_account_id":2,"amount":"5"}`, false, http.StatusUnauthorized},
		{"same account", http.MethodPost, "/ledger/entries", `{"debit_account_id":1,"credit_account_id":1,"amount":"5"}`, true, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/ledger/entries", `{"debit_account_id":`, true, http.StatusBadRequest},
		{"non-numeric account", http.MethodGet, "/ledger/entries?account_id=abc", "", false, http.StatusBadRequest},
		{"trailing junk account", http.MethodGet, "/ledger/entries?account_id=1x", "", false, http.StatusBadRequest},
		{"negative bill", http.MethodGet, "/ledger/entries?bill_id=-4", "", false, http.StatusBadRequest},
		{"bad from", http.MethodGet, "/ledger/entries?from=01-03-2024", "", false, http.StatusBadRequest},
		{"unknown voucher type", http.MethodGet, "/ledger/entries?voucher_type=BONUS", "", false, http.StatusBadRequest},
		{"missing linked bill", http.MethodPost, "/ledger/entries", `{"debit_account_id":1,"credit_account_id":2,"amount":"5","bill_id":999}`, true, http.StatusNotFound},
		{"missing entry", http.MethodPost, "/ledger/entries/9/reverse", "", true, http.StatusNotFound},
		{"bad reverse date", http.MethodPost, "/ledger/entries/1/reverse", `{"date":"yesterday"}`, true, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doLedger(h, tc.method, tc.path, tc.body, tc.actor)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, repo.entries)
}

func TestHandlerQueryHugePage(t *testing.T) {
	h, _ := newLedgerRouter(t)
	rec := doLedger(h, http.MethodPost, "/ledger/entries", `{"debit_account_id":1,"credit_account_id":2,"amount":"5"}`, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doLedger(h, http.MethodGet, "/ledger/entries?page=9223372036854775807&limit=200", "", false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Empty(t, page.Entries)
	assert.Equal(t, shared.MaxPage, page.Pagination.Page)
	assert.Equal(t, 1, page.Pagination.Total)
}
