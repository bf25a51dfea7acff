/**
 * @description
 * This file contains the HTTP handlers for the transfer-service's API endpoints.
 * Handlers take the customer id from the authenticated token, parse the request,
 * call the application service, and map its errors onto HTTP statuses.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/transfer/app, internal/transfer/domain, internal/transfer/store,
 *   pkg/accountclient.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/modernbank/banking/internal/transfer/app"
	"github.com/modernbank/banking/internal/transfer/domain"
	"github.com/modernbank/banking/internal/transfer/store"
	"github.com/modernbank/banking/pkg/accountclient"
)

// TransferHandlers holds the application service that handlers will use.
type TransferHandlers struct {
	service *app.Service
}

// NewTransferHandlers creates a new instance of TransferHandlers.
func NewTransferHandlers(service *app.Service) *TransferHandlers {
	return &TransferHandlers{service: service}
}

// SubmitInternalHandler submits a transfer between two accounts of this bank.
func (h *TransferHandlers) SubmitInternalHandler(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, domain.KindInternal)
}

// SubmitExternalHandler submits a transfer to another bank. The response is 202:
// the transfer is accepted for processing and settles asynchronously.
func (h *TransferHandlers) SubmitExternalHandler(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, domain.KindExternal)
}

func (h *TransferHandlers) submit(w http.ResponseWriter, r *http.Request, kind string) {
	customerID, ok := GetCustomerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	var (
		record *domain.TransferRecord
		err    error
	)
	if kind == domain.KindInternal {
		record, err = h.service.SubmitInternal(r.Context(), customerID, req)
	} else {
		record, err = h.service.SubmitExternal(r.Context(), customerID, req)
	}
	if err != nil {
		h.writeSubmitError(w, customerID, kind, req, err)
		return
	}

	status := http.StatusCreated
	if kind == domain.KindExternal && record.Status == domain.StatusPending {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, record)
}

func (h *TransferHandlers) writeSubmitError(w http.ResponseWriter, customerID, kind string, req domain.TransferRequest, err error) {
	log.Printf("level=warn component=api endpoint=submit_transfer outcome=failed customer_id=%s kind=%s amount=%d err=%v",
		customerID, kind, req.Amount, err)

	var limitErr *app.LimitExceededError
	var fundsErr *app.InsufficientFundsError
	switch {
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrMissingAccount),
		errors.Is(err, app.ErrSameAccount):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrSourceNotOwned):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, accountclient.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account number does not exist")
	case errors.As(err, &fundsErr):
		h.writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":   "Insufficient account balance",
			"balance": fundsErr.Balance,
		})
	case errors.Is(err, store.ErrLimitNotConfigured):
		h.writeError(w, http.StatusUnprocessableEntity, "Transfer limits are not configured")
	case errors.As(err, &limitErr):
		h.writeError(w, http.StatusUnprocessableEntity, limitErr.Error())
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many transfer submissions; try again shortly")
	case errors.Is(err, app.ErrUpstreamUnavailable):
		h.writeError(w, http.StatusBadGateway, "Account service unavailable; transfer rejected")
	case errors.Is(err, app.ErrInconsistentState):
		h.writeError(w, http.StatusInternalServerError, "Transfer could not be finalized; contact support")
	default:
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// HistoryHandler returns the customer's transfer history, newest first.
func (h *TransferHandlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	customerID, ok := GetCustomerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	records, err := h.service.History(r.Context(), customerID)
	if err != nil {
		log.Printf("level=error component=api endpoint=history customer_id=%s err=%v", customerID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if records == nil {
		records = []domain.TransferRecord{}
	}

	h.writeJSON(w, http.StatusOK, records)
}

// GetLimitHandler returns the customer's configured transfer limits.
func (h *TransferHandlers) GetLimitHandler(w http.ResponseWriter, r *http.Request) {
	customerID, ok := GetCustomerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit, err := h.service.GetLimit(r.Context(), customerID)
	if err != nil {
		if errors.Is(err, store.ErrLimitNotConfigured) {
			h.writeError(w, http.StatusNotFound, "Transfer limits are not configured")
			return
		}
		log.Printf("level=error component=api endpoint=get_limit customer_id=%s err=%v", customerID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, limit)
}

// SetLimitHandler creates or replaces the customer's transfer limits.
func (h *TransferHandlers) SetLimitHandler(w http.ResponseWriter, r *http.Request) {
	customerID, ok := GetCustomerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req domain.LimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	limit, err := h.service.SetLimit(r.Context(), customerID, req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidLimit) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=set_limit customer_id=%s err=%v", customerID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, limit)
}

// AvailableLimitHandler returns the one-time ceiling and today's leftover
// allowance.
func (h *TransferHandlers) AvailableLimitHandler(w http.ResponseWriter, r *http.Request) {
	customerID, ok := GetCustomerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	available, err := h.service.AvailableLimit(r.Context(), customerID)
	if err != nil {
		if errors.Is(err, store.ErrLimitNotConfigured) {
			h.writeError(w, http.StatusNotFound, "Transfer limits are not configured")
			return
		}
		log.Printf("level=error component=api endpoint=available_limit customer_id=%s err=%v", customerID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, available)
}

// writeJSON is a helper for writing JSON responses.
func (h *TransferHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *TransferHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
