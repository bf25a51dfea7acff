/**
 * @description
 * This file sets up the HTTP router for the account-service. The ledger is only
 * ever called by sibling services (transfer-service and the UI's BFF layer), so
 * every mutating route sits behind the shared internal API key check.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// InternalKeyMiddleware rejects requests that do not carry the shared internal
// API key. Constant-time comparison, same header as the other services.
func InternalKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Internal-API-Key")
			if apiKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccountRoutes creates and returns a new router for the account service.
func AccountRoutes(h *AccountHandlers, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(InternalKeyMiddleware(internalAPIKey))

		r.Post("/accounts", h.CreateAccountHandler)
		r.Get("/accounts/{accountNumber}", h.GetAccountHandler)
		r.Get("/accounts/{accountNumber}/balance", h.GetBalanceHandler)
		r.Get("/accounts/{accountNumber}/transactions", h.ListTransactionsHandler)
		r.Post("/accounts/{accountNumber}/deposits", h.DepositHandler)
		r.Post("/accounts/{accountNumber}/withdrawals", h.WithdrawHandler)
		r.Post("/accounts/{accountNumber}/withdrawals/{sequence}/settlement", h.SettleWithdrawalHandler)

		r.Get("/customers/{customerID}/accounts", h.ListAccountsHandler)
	})

	return r
}
