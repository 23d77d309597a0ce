package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"bank-accounts/internal/domain"
	"bank-accounts/internal/errors"
	"bank-accounts/internal/service"
)

type AccountHandler struct {
	accountService *service.AccountService
}

func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

type AccountResponse struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
}

// AmountRequest carries the amount as a decimal string so no precision is
// lost to binary floating point on the wire.
type AmountRequest struct {
	Amount string `json:"amount"`
}

func accountResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		AccountID: account.ID.String(),
		Balance:   account.Balance.String(),
	}
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountService.CreateAccount()
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/accounts/"+account.ID.String())
	writeJSON(w, http.StatusCreated, accountResponse(account))
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["account_id"]

	account, err := h.accountService.GetAccount(accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accountResponse(account))
}

func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.accountService.Deposit)
}

func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.accountService.Withdraw)
}

func (h *AccountHandler) mutate(w http.ResponseWriter, r *http.Request, op func(string, decimal.Decimal) error) {
	accountID := mux.Vars(r)["account_id"]

	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidAmount, "invalid amount format").WithDetails(err.Error()))
		return
	}

	if err := op(accountID, amount); err != nil {
		writeError(w, err)
		return
	}

	// Accepted, no body.
	w.WriteHeader(http.StatusAccepted)
}
