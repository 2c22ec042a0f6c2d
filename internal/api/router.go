/**
 * @description
 * This file sets up the HTTP router for the commission-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
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

// CommissionRoutes creates and returns a new router for the commission service.
func CommissionRoutes(h *CommissionHandlers, jwtSecret string) http.Handler {
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

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		// Commission ledger endpoints
		r.Post("/commissions/calculate", h.CalculateCommissionHandler)
		r.Get("/commissions/{commissionID}", h.GetCommissionHandler)
		r.Post("/commissions/{commissionID}/approve", h.ApproveCommissionHandler)
		r.Post("/commissions/{commissionID}/pay", h.MarkCommissionPaidHandler)

		// Provider endpoints
		r.Get("/providers/{providerID}/commissions", h.ListProviderCommissionsHandler)
		r.Get("/providers/{providerID}/tier", h.GetTierStatusHandler)

		// Institution rate management endpoints
		r.Put("/institutions/{institutionID}/rate", h.UpdateInstitutionRateHandler)
		r.Get("/institutions/{institutionID}/rate-history", h.GetRateHistoryHandler)

		// Revenue reporting endpoint
		r.Get("/revenue", h.GetRevenueHandler)

		// Operational endpoints
		r.Post("/jobs/threshold-check", h.RunThresholdCheckHandler)
	})

	return r
}
