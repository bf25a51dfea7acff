/**
 * @description
 * This file sets up the HTTP router for the transfer-service. All transfer
 * routes require an authenticated customer; the customer id always comes from
 * the token, never from the URL or body.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TransferRoutes creates and returns a new router for the transfer service.
func TransferRoutes(h *TransferHandlers, jwtSecret string) http.Handler {
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
		r.Use(AuthMiddleware(jwtSecret))

		r.Post("/internal", h.SubmitInternalHandler)
		r.Post("/external", h.SubmitExternalHandler)
		r.Get("/history", h.HistoryHandler)

		r.Get("/limits", h.GetLimitHandler)
		r.Post("/limits", h.SetLimitHandler)
		r.Get("/limits/available", h.AvailableLimitHandler)
	})

	return r
}
