// internal/batch/orchestrator.go
package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/link-makers/linkgen/pkg/models"
)

// Runner is the per-item workflow the orchestrator drives. The extractor
// service implements it; tests supply fakes.
type Runner interface {
	// EnsureSession guarantees an authenticated context is ready.
	EnsureSession(ctx context.Context) error
	// Extract runs the workflow for one source URL.
	Extract(ctx context.Context, url string) *models.ExtractionResult
	// Reset restores the extraction surface between items.
	Reset(ctx context.Context) error
}

// ErrBatchTooLarge is returned when a submission exceeds the cap. The cap
// bounds how long one batch holds the shared session.
var ErrBatchTooLarge = errors.New("too many URLs in batch")

// ErrEmptyBatch is returned for a submission with no URLs.
var ErrEmptyBatch = errors.New("no URLs provided")

// Orchestrator sequences many extractions over one shared authenticated
// session. Items run strictly in submission order because the UI has one
// mutable form; per-item failures are recorded, never propagated.
type Orchestrator struct {
	runner Runner
	store  *Store
	cap    int
}

// NewOrchestrator creates a batch orchestrator backed by the given store.
func NewOrchestrator(runner Runner, store *Store, cap int) *Orchestrator {
	if cap <= 0 {
		cap = 10
	}
	return &Orchestrator{runner: runner, store: store, cap: cap}
}

// Prepare validates and de-duplicates a submission without touching the
// session. Order of first occurrence is preserved.
func (o *Orchestrator) Prepare(urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(urls) > o.cap {
		return nil, fmt.Errorf("%w: maximum %d URLs allowed per batch", ErrBatchTooLarge, o.cap)
	}

	seen := make(map[string]struct{}, len(urls))
	deduped := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		deduped = append(deduped, u)
	}
	if len(deduped) == 0 {
		return nil, ErrEmptyBatch
	}
	return deduped, nil
}

// Run processes the URLs synchronously and returns one result per input
// URL in input order. A failure on one URL never aborts the rest; only a
// failure to establish the shared authenticated session fails everything.
func (o *Orchestrator) Run(ctx context.Context, urls []string) ([]*models.ExtractionResult, error) {
	deduped, err := o.Prepare(urls)
	if err != nil {
		return nil, err
	}

	if err := o.runner.EnsureSession(ctx); err != nil {
		return nil, err
	}

	log.Info().Int("urls", len(deduped)).Msg("Starting batch download process")

	results := make([]*models.ExtractionResult, 0, len(deduped))
	for i, u := range deduped {
		res := o.runItem(ctx, u, i, len(deduped))
		results = append(results, res)
	}
	return results, nil
}

// Submit registers the URLs as a background batch and returns the batch
// identifier with the accepted URL count. Processing continues after
// return; callers poll the store for status.
func (o *Orchestrator) Submit(ctx context.Context, urls []string) (string, int, error) {
	deduped, err := o.Prepare(urls)
	if err != nil {
		return "", 0, err
	}

	batchID := o.store.Create(deduped)
	log.Info().Str("batch_id", batchID).Int("urls", len(deduped)).Msg("Batch accepted")

	go o.process(ctx, batchID, deduped)

	return batchID, len(deduped), nil
}

// Status returns the current snapshot for a batch.
func (o *Orchestrator) Status(batchID string) (*models.BatchJob, error) {
	return o.store.Get(batchID)
}

func (o *Orchestrator) process(ctx context.Context, batchID string, urls []string) {
	if err := o.runner.EnsureSession(ctx); err != nil {
		// Nothing can proceed without authentication; fail every entry.
		log.Error().Err(err).Str("batch_id", batchID).Msg("Batch aborted: session unavailable")
		for _, u := range urls {
			o.record(batchID, u, models.URLState{Status: models.StatusFailed, Error: err.Error()})
		}
		return
	}

	for i, u := range urls {
		res := o.runItem(ctx, u, i, len(urls))

		state := models.URLState{
			GeneratedText: res.GeneratedText,
			FilePath:      res.FilePath,
			FileName:      res.FileName,
			FileSize:      res.FileSize,
			Error:         res.Error,
		}
		if res.Success {
			state.Status = models.StatusCompleted
		} else {
			state.Status = models.StatusFailed
		}
		o.record(batchID, u, state)
	}
}

// runItem runs one extraction with per-item isolation and resets the form
// before the next item. Skipping the reset causes stale-state failures on
// the following submission.
func (o *Orchestrator) runItem(ctx context.Context, url string, index, total int) *models.ExtractionResult {
	log.Info().
		Str("url", url).
		Int("item", index+1).
		Int("total", total).
		Msg("Processing batch item")

	res := o.runner.Extract(ctx, url)

	if index < total-1 {
		if err := o.runner.Reset(ctx); err != nil {
			log.Warn().Err(err).Msg("Form reset failed; next item may see stale state")
		}
	}
	return res
}

func (o *Orchestrator) record(batchID, url string, state models.URLState) {
	if err := o.store.Update(batchID, url, state); err != nil {
		log.Warn().Err(err).Str("batch_id", batchID).Str("url", url).Msg("Failed to record batch status")
	}
}
