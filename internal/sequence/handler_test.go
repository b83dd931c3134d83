package sequence

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestHandlerNextThenPeek(t *testing.T) {
	router := chi.NewRouter()
	NewHandler(nil, NewService(newMemoryRepo(), nil, nil)).MountRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sequences/inv/next", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var got numberResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, numberResponse{Prefix: "INV", Number: "INV0001"}, got)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sequences/INV/peek", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "INV0002", got.Number)
}

func TestHandlerRejectsBadPrefix(t *testing.T) {
	router := chi.NewRouter()
	NewHandler(nil, NewService(newMemoryRepo(), nil, nil)).MountRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sequences/1bad/next", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
