// internal/batch/store.go
package batch

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/link-makers/linkgen/pkg/models"
)

// ErrNotFound is returned when a batch identifier is unknown, either
// because it never existed or because the job was already evicted.
var ErrNotFound = fmt.Errorf("batch not found")

// Store holds in-flight and recently completed batch jobs in memory.
// Completed jobs are evicted a fixed TTL after they reach full completion;
// no external persistence exists or is needed.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*models.BatchJob
	ttl  time.Duration
	now  func() time.Time
}

// NewStore creates a batch job store with the given TTL-after-completion.
func NewStore(ttl time.Duration, now func() time.Time) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		jobs: make(map[string]*models.BatchJob),
		ttl:  ttl,
		now:  now,
	}
}

// Create registers a new job covering the given URLs, all marked
// downloading, and returns its generated identifier.
func (s *Store) Create(urls []string) string {
	job := &models.BatchJob{
		ID:        uuid.New().String(),
		Status:    make(map[string]models.URLState, len(urls)),
		CreatedAt: s.now(),
	}
	for _, u := range urls {
		job.Status[u] = models.URLState{Status: models.StatusDownloading, UpdatedAt: s.now()}
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	return job.ID
}

// Update overwrites the state recorded for one URL of a job. When the write
// brings the job to full completion its eviction clock starts.
func (s *Store) Update(batchID, url string, state models.URLState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[batchID]
	if !ok {
		return ErrNotFound
	}

	state.UpdatedAt = s.now()
	job.Status[url] = state

	if job.CompletedAt.IsZero() && job.IsCompleted() {
		job.CompletedAt = s.now()
		log.Info().
			Str("batch_id", batchID).
			Int("urls", len(job.Status)).
			Msg("Batch completed")
	}
	return nil
}

// Get returns a snapshot of a job. The returned job is a copy; mutating it
// does not affect the store.
func (s *Store) Get(batchID string) (*models.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[batchID]
	if !ok {
		return nil, ErrNotFound
	}

	snapshot := &models.BatchJob{
		ID:          job.ID,
		Status:      make(map[string]models.URLState, len(job.Status)),
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
	for u, st := range job.Status {
		snapshot.Status[u] = st
	}
	return snapshot, nil
}

// SweepExpired removes jobs whose TTL-after-completion has elapsed and
// returns how many were evicted.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, job := range s.jobs {
		if !job.CompletedAt.IsZero() && s.now().Sub(job.CompletedAt) >= s.ttl {
			delete(s.jobs, id)
			evicted++
		}
	}
	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Msg("Evicted completed batch jobs")
	}
	return evicted
}

// StartJanitor runs the periodic eviction sweep until ctx is cancelled.
func (s *Store) StartJanitor(done <-chan struct{}, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.SweepExpired()
			}
		}
	}()
}

// Len reports the number of jobs currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
