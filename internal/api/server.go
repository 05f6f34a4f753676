// internal/api/server.go
package api

import (
	"github.com/gorilla/mux"

	"github.com/link-makers/linkgen/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(limiter *ratelimit.ClientLimiter, rateLimitMax int) *mux.Router {
	r := mux.NewRouter()

	// Workflow endpoints (rate limited)
	apiRoutes := r.PathPrefix("/api").Subrouter()
	apiRoutes.Use(RateLimitMiddleware(limiter, rateLimitMax))

	apiRoutes.HandleFunc("/get-download-url", h.GetDownloadURL).Methods("POST", "OPTIONS")
	apiRoutes.HandleFunc("/download", h.Download).Methods("POST", "OPTIONS")
	apiRoutes.HandleFunc("/batch-download", h.BatchDownload).Methods("POST", "OPTIONS")
	apiRoutes.HandleFunc("/batch-status/{batchId}", h.BatchStatus).Methods("GET")

	// Service endpoints (not rate limited)
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/", h.Root).Methods("GET")

	r.Use(RequestContextMiddleware)
	r.Use(corsMiddleware)

	return r
}
