package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/link-makers/linkgen/pkg/models"
)

// fakeRunner records calls and answers per scripted outcomes.
type fakeRunner struct {
	mu         sync.Mutex
	ensureErr  error
	failURLs   map[string]string
	extracted  []string
	resets     int
	ensureHits int
}

func (f *fakeRunner) EnsureSession(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureHits++
	return f.ensureErr
}

func (f *fakeRunner) Extract(ctx context.Context, url string) *models.ExtractionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracted = append(f.extracted, url)

	if msg, bad := f.failURLs[url]; bad {
		return &models.ExtractionResult{URL: url, Success: false, Error: msg}
	}
	return &models.ExtractionResult{URL: url, Success: true, GeneratedText: "https://cdn.example.com/" + url}
}

func (f *fakeRunner) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func waitCompleted(t *testing.T, s *Store, id string) *models.BatchJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.Get(id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if job.IsCompleted() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("batch never completed")
	return nil
}

func TestRun_PreservesInputOrder(t *testing.T) {
	r := &fakeRunner{}
	o := NewOrchestrator(r, NewStore(time.Hour, nil), 10)

	urls := []string{"u1", "u2", "u3"}
	results, err := o.Run(context.Background(), urls)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.URL != urls[i] {
			t.Errorf("result %d: got %s, want %s", i, res.URL, urls[i])
		}
	}
	// Reset runs between items, not after the last one.
	if r.resets != 2 {
		t.Errorf("expected 2 resets, got %d", r.resets)
	}
}

func TestRun_IsolatesItemFailures(t *testing.T) {
	r := &fakeRunner{failURLs: map[string]string{"u2": "control value empty after settling"}}
	o := NewOrchestrator(r, NewStore(time.Hour, nil), 10)

	results, err := o.Run(context.Background(), []string{"u1", "u2", "u3"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !results[0].Success || results[1].Success || !results[2].Success {
		t.Errorf("unexpected success pattern: %v %v %v",
			results[0].Success, results[1].Success, results[2].Success)
	}
	if len(r.extracted) != 3 {
		t.Errorf("a failed item must not stop the rest; extracted %v", r.extracted)
	}
}

func TestPrepare_DedupesPreservingFirstOccurrence(t *testing.T) {
	o := NewOrchestrator(&fakeRunner{}, NewStore(time.Hour, nil), 10)

	got, err := o.Prepare([]string{"u1", "u2", "u1", "", "u3", "u2"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	want := []string{"u1", "u2", "u3"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPrepare_RejectsEmptyAndOversized(t *testing.T) {
	o := NewOrchestrator(&fakeRunner{}, NewStore(time.Hour, nil), 10)

	if _, err := o.Prepare(nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("nil urls: got %v", err)
	}
	if _, err := o.Prepare([]string{"", ""}); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("blank urls: got %v", err)
	}

	eleven := make([]string, 11)
	for i := range eleven {
		eleven[i] = strings.Repeat("u", i+1)
	}
	if _, err := o.Prepare(eleven); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("11 urls: got %v", err)
	}
}

func TestSubmit_RejectionTouchesNoSession(t *testing.T) {
	r := &fakeRunner{}
	o := NewOrchestrator(r, NewStore(time.Hour, nil), 10)

	if _, _, err := o.Submit(context.Background(), nil); err == nil {
		t.Fatal("expected rejection")
	}
	if r.ensureHits != 0 || len(r.extracted) != 0 {
		t.Error("a rejected submission must not touch the session")
	}
}

func TestSubmit_ProcessesInBackground(t *testing.T) {
	r := &fakeRunner{failURLs: map[string]string{"u2": "boom"}}
	store := NewStore(time.Hour, nil)
	o := NewOrchestrator(r, store, 10)

	id, total, err := o.Submit(context.Background(), []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 accepted urls, got %d", total)
	}

	job := waitCompleted(t, store, id)

	if st := job.Status["u1"]; st.Status != models.StatusCompleted || st.GeneratedText == "" {
		t.Errorf("u1 state: %+v", st)
	}
	if st := job.Status["u2"]; st.Status != models.StatusFailed || st.Error != "boom" {
		t.Errorf("u2 state: %+v", st)
	}
}

func TestSubmit_SessionFailureFailsEveryEntry(t *testing.T) {
	r := &fakeRunner{ensureErr: errors.New("browser engine unavailable")}
	store := NewStore(time.Hour, nil)
	o := NewOrchestrator(r, store, 10)

	id, _, err := o.Submit(context.Background(), []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	job := waitCompleted(t, store, id)
	for u, st := range job.Status {
		if st.Status != models.StatusFailed {
			t.Errorf("url %s: expected failed, got %s", u, st.Status)
		}
		if !strings.Contains(st.Error, "unavailable") {
			t.Errorf("url %s: error %q lacks cause", u, st.Error)
		}
	}
	if len(r.extracted) != 0 {
		t.Error("no extraction may run without a session")
	}
}
