/**
 * @description
 * This file contains the HTTP handlers for the account-service's API endpoints.
 * Handlers parse incoming requests, call the application service, and map the
 * service's errors onto HTTP statuses. They are the bridge between the web layer
 * and the ledger logic.
 *
 * @dependencies
 * - encoding/json, log, net/http, strconv: Standard Go libraries.
 * - internal/account/app, internal/account/domain, internal/account/store.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/modernbank/banking/internal/account/app"
	"github.com/modernbank/banking/internal/account/domain"
	"github.com/modernbank/banking/internal/account/store"
)

// AccountHandlers holds the application service that handlers will use.
type AccountHandlers struct {
	service *app.Service
}

// NewAccountHandlers creates a new instance of AccountHandlers.
func NewAccountHandlers(service *app.Service) *AccountHandlers {
	return &AccountHandlers{service: service}
}

// CreateAccountHandler opens a new account.
func (h *AccountHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	account, err := h.service.CreateAccount(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_account outcome=failed account=%s err=%v", req.AccountNumber, err)
		switch {
		case errors.Is(err, app.ErrMissingField):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrCustomerNotFound):
			h.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, store.ErrAccountExists):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, account)
}

// GetAccountHandler returns one account.
func (h *AccountHandlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")

	account, err := h.service.GetAccount(r.Context(), accountNumber)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account number does not exist")
			return
		}
		log.Printf("level=error component=api endpoint=get_account account=%s err=%v", accountNumber, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, account)
}

// ListAccountsHandler returns all accounts owned by a customer.
func (h *AccountHandlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	accounts, err := h.service.ListAccounts(r.Context(), customerID)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_accounts customer_id=%s err=%v", customerID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}

	h.writeJSON(w, http.StatusOK, accounts)
}

// GetBalanceHandler returns the current balance of an account.
func (h *AccountHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")

	balance, err := h.service.GetBalance(r.Context(), accountNumber)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account number does not exist")
			return
		}
		log.Printf("level=error component=api endpoint=get_balance account=%s err=%v", accountNumber, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// ListTransactionsHandler returns the account's ledger entries, newest first.
func (h *AccountHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")

	transactions, err := h.service.ListTransactions(r.Context(), accountNumber)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_transactions account=%s err=%v", accountNumber, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}

	h.writeJSON(w, http.StatusOK, transactions)
}

// DepositHandler records a deposit.
func (h *AccountHandlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	h.recordTransaction(w, r, domain.DirectionDeposit)
}

// WithdrawHandler records a withdrawal, pending when requested.
func (h *AccountHandlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.recordTransaction(w, r, domain.DirectionWithdrawal)
}

func (h *AccountHandlers) recordTransaction(w http.ResponseWriter, r *http.Request, direction string) {
	accountNumber := chi.URLParam(r, "accountNumber")

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	var (
		result *domain.TransactionResult
		err    error
	)
	if direction == domain.DirectionDeposit {
		result, err = h.service.Deposit(r.Context(), accountNumber, req)
	} else {
		result, err = h.service.Withdraw(r.Context(), accountNumber, req)
	}
	if err != nil {
		log.Printf("level=warn component=api endpoint=%s outcome=failed account=%s amount=%d err=%v", direction, accountNumber, req.Amount, err)
		switch {
		case errors.Is(err, app.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Account number does not exist")
		case errors.Is(err, store.ErrInsufficientFunds):
			h.writeError(w, http.StatusPaymentRequired, "Insufficient account balance")
		default:
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// SettleWithdrawalHandler flips a pending withdrawal to completed or failed.
func (h *AccountHandlers) SettleWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")
	sequence, err := strconv.Atoi(chi.URLParam(r, "sequence"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction sequence")
		return
	}

	var req domain.SettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	txn, err := h.service.SettleWithdrawal(r.Context(), accountNumber, sequence, req.Decision)
	if err != nil {
		log.Printf("level=warn component=api endpoint=settle_withdrawal outcome=failed account=%s seq=%d decision=%s err=%v", accountNumber, sequence, req.Decision, err)
		switch {
		case errors.Is(err, app.ErrInvalidDecision):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrTransactionNotFound):
			h.writeError(w, http.StatusNotFound, "Transaction does not exist")
		case errors.Is(err, store.ErrAlreadySettled):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, txn)
}

// writeJSON is a helper for writing JSON responses.
func (h *AccountHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *AccountHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
