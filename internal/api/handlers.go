// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/link-makers/linkgen/internal/batch"
	"github.com/link-makers/linkgen/internal/reqctx"
	"github.com/link-makers/linkgen/pkg/models"
)

// Workflow is what the handlers need from the extraction service.
type Workflow interface {
	ExtractWith(ctx context.Context, url string, persist bool) *models.ExtractionResult
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	workflow     Workflow
	orchestrator *batch.Orchestrator
}

// NewHandler creates a new HTTP handler
func NewHandler(workflow Workflow, orchestrator *batch.Orchestrator) *Handler {
	return &Handler{
		workflow:     workflow,
		orchestrator: orchestrator,
	}
}

type urlRequest struct {
	URL string `json:"url"`
}

type batchRequest struct {
	URLs []string `json:"urls"`
}

// GetDownloadURL handles POST /api/get-download-url: runs the workflow for
// one source URL and returns only the generated link.
func (h *Handler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}

	res := h.workflow.ExtractWith(r.Context(), req.URL, false)
	if !res.Success {
		h.writeFailure(w, r, res)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"generatedText": res.GeneratedText,
	})
}

// Download handles POST /api/download: runs the workflow and persists the
// resulting file to disk.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}

	res := h.workflow.ExtractWith(r.Context(), req.URL, true)
	if !res.Success {
		h.writeFailure(w, r, res)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"generatedText": res.GeneratedText,
		"filePath":      res.FilePath,
		"fileName":      res.FileName,
		"fileSize":      res.FileSize,
	})
}

// BatchDownload handles POST /api/batch-download: validates the submission,
// registers it, and returns the batch ID while processing continues in the
// background. Validation failures never touch the browser session.
func (h *Handler) BatchDownload(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "URLs array is required")
		return
	}

	// The request context dies with the response; background processing
	// needs its own lifetime.
	batchID, total, err := h.orchestrator.Submit(context.Background(), req.URLs)
	if err != nil {
		switch {
		case errors.Is(err, batch.ErrEmptyBatch), errors.Is(err, batch.ErrBatchTooLarge):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Batch download started",
		"batchId":    batchID,
		"totalFiles": total,
	})
}

// BatchStatus handles GET /api/batch-status/{batchId}.
func (h *Handler) BatchStatus(w http.ResponseWriter, r *http.Request) {
	batchID := mux.Vars(r)["batchId"]

	job, err := h.orchestrator.Status(batchID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Batch not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"batchId":     job.ID,
		"isCompleted": job.IsCompleted(),
		"status":      job.Status,
		"createdAt":   job.CreatedAt,
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Root handles GET /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Linkgen download service",
		"endpoints": []string{
			"POST /api/get-download-url",
			"POST /api/download",
			"POST /api/batch-download",
			"GET /api/batch-status/{batchId}",
			"GET /health",
		},
	})
}

// writeFailure maps a failed extraction to a status code. Input-shaped
// failures are the client's problem; everything else is a 500 with the
// failure detail but never a stack trace.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, res *models.ExtractionResult) {
	rc := reqctx.FromContext(r.Context())
	log.Error().
		Str("request_id", rc.RequestID).
		Str("url", res.URL).
		Str("code", res.Code).
		Str("error", res.Error).
		Dur("elapsed", rc.Elapsed()).
		Msg("Extraction failed")

	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"success": false,
		"message": "Failed to process URL",
		"code":    res.Code,
		"error":   res.Error,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
