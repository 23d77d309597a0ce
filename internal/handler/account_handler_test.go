package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-accounts/internal/repository/memory"
	"bank-accounts/internal/service"
	"bank-accounts/pkg/metrics"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewAccountRepository(0, logger)
	svc := service.NewAccountService(repo, metrics.NewCollector(), logger)
	h := NewAccountHandler(svc)

	router := mux.NewRouter()
	router.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	router.HandleFunc("/accounts/{account_id}", h.GetAccount).Methods("GET")
	router.HandleFunc("/accounts/{account_id}/deposit", h.Deposit).Methods("POST")
	router.HandleFunc("/accounts/{account_id}/withdrawal", h.Withdraw).Methods("POST")
	return router
}

func doRequest(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func createTestAccount(t *testing.T, router *mux.Router) string {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/accounts", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data AccountResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data.AccountID
}

func TestCreateAccount_Created(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/accounts", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		Data AccountResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "0", resp.Data.Balance)
	assert.Equal(t, "/accounts/"+resp.Data.AccountID, rec.Header().Get("Location"))

	_, err := uuid.Parse(resp.Data.AccountID)
	assert.NoError(t, err)
}

func TestGetAccount_OK(t *testing.T) {
	router := newTestRouter(t)
	id := createTestAccount(t, router)

	rec := doRequest(t, router, http.MethodGet, "/accounts/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data AccountResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.Data.AccountID)
	assert.Equal(t, "0", resp.Data.Balance)
}

func TestGetAccount_NotFound(t *testing.T) {
	router := newTestRouter(t)
	missing := uuid.New().String()

	rec := doRequest(t, router, http.MethodGet, "/accounts/"+missing, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "account_not_found", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, missing)
}

func TestGetAccount_InvalidID(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/accounts/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_input", resp.Error.Code)
}

func TestDeposit_AcceptedNoBody(t *testing.T) {
	router := newTestRouter(t)
	id := createTestAccount(t, router)

	rec := doRequest(t, router, http.MethodPost, "/accounts/"+id+"/deposit", AmountRequest{Amount: "10.5"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = doRequest(t, router, http.MethodGet, "/accounts/"+id, nil)
	var resp struct {
		Data AccountResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "10.5", resp.Data.Balance)
}

func TestWithdraw_Accepted(t *testing.T) {
	router := newTestRouter(t)
	id := createTestAccount(t, router)

	doRequest(t, router, http.MethodPost, "/accounts/"+id+"/deposit", AmountRequest{Amount: "10"})

	rec := doRequest(t, router, http.MethodPost, "/accounts/"+id+"/withdrawal", AmountRequest{Amount: "3"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	router := newTestRouter(t)
	id := createTestAccount(t, router)

	rec := doRequest(t, router, http.MethodPost, "/accounts/"+id+"/withdrawal", AmountRequest{Amount: "1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "insufficient_funds", resp.Error.Code)
	assert.Equal(t, "Not enough money", resp.Error.Message)
}

func TestMutations_InvalidAmount(t *testing.T) {
	router := newTestRouter(t)
	id := createTestAccount(t, router)

	tests := []struct {
		name   string
		path   string
		amount string
	}{
		{"deposit zero", "/deposit", "0"},
		{"deposit negative", "/deposit", "-5"},
		{"withdraw zero", "/withdrawal", "0"},
		{"withdraw negative", "/withdrawal", "-5"},
		{"deposit garbage", "/deposit", "ten"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/accounts/"+id+tt.path, AmountRequest{Amount: tt.amount})
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "invalid_amount", resp.Error.Code)
		})
	}
}

func TestMutations_UnknownAccountID(t *testing.T) {
	router := newTestRouter(t)
	missing := uuid.New().String()

	rec := doRequest(t, router, http.MethodPost, "/accounts/"+missing+"/deposit", AmountRequest{Amount: "1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/accounts/"+missing+"/withdrawal", AmountRequest{Amount: "1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMutations_MalformedBody(t *testing.T) {
	router := newTestRouter(t)
	id := createTestAccount(t, router)

	req := httptest.NewRequest(http.MethodPost, "/accounts/"+id+"/deposit", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_input", resp.Error.Code)
}
