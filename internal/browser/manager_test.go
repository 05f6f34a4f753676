package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func countingLauncher(launches *int32) LaunchFunc {
	return func(ctx context.Context) (*Session, error) {
		atomic.AddInt32(launches, 1)
		return &Session{}, nil
	}
}

func TestAcquire_ReusesLiveSession(t *testing.T) {
	var launches int32
	m := NewManager(Options{Launch: countingLauncher(&launches)})

	s1, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	s2, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}

	if s1 != s2 {
		t.Error("expected the same session on repeat acquire")
	}
	if n := atomic.LoadInt32(&launches); n != 1 {
		t.Errorf("expected one launch, got %d", n)
	}
	if s1.ID == "" || s1.CreatedAt.IsZero() {
		t.Error("session identity not assigned")
	}
}

func TestAcquire_ConcurrentColdStartsLaunchOnce(t *testing.T) {
	var launches int32
	slow := func(ctx context.Context) (*Session, error) {
		atomic.AddInt32(&launches, 1)
		time.Sleep(20 * time.Millisecond)
		return &Session{}, nil
	}
	m := NewManager(Options{Launch: slow})

	var wg sync.WaitGroup
	sessions := make([]*Session, 8)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Acquire(context.Background())
			if err != nil {
				t.Errorf("acquire %d: %v", i, err)
				return
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	if n := atomic.LoadInt32(&launches); n != 1 {
		t.Errorf("expected exactly one launch, got %d", n)
	}
	for i, s := range sessions {
		if s != sessions[0] {
			t.Errorf("session %d differs from session 0", i)
		}
	}
}

func TestAcquire_RetriesAfterLaunchFailure(t *testing.T) {
	var launches int32
	flaky := func(ctx context.Context) (*Session, error) {
		if atomic.AddInt32(&launches, 1) == 1 {
			return nil, errors.New("chrome not found")
		}
		return &Session{}, nil
	}
	m := NewManager(Options{Launch: flaky})

	if _, err := m.Acquire(context.Background()); err == nil {
		t.Fatal("expected first acquire to fail")
	}
	if m.Current() != nil {
		t.Fatal("failed launch must not retain a handle")
	}

	s, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("retry acquire: %v", err)
	}
	if s == nil {
		t.Fatal("expected a session on retry")
	}
}

func TestSweepExpired_RenewsOldSession(t *testing.T) {
	var launches int32
	now := time.Now()
	clock := func() time.Time { return now }

	m := NewManager(Options{
		Launch: countingLauncher(&launches),
		MaxAge: time.Hour,
		Now:    clock,
	})

	s1, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Fresh session survives a sweep.
	if m.SweepExpired() {
		t.Error("fresh session must not be swept")
	}

	now = now.Add(2 * time.Hour)
	if !m.SweepExpired() {
		t.Error("expired session must be swept")
	}
	if m.Current() != nil {
		t.Error("swept session still cached")
	}

	s2, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after sweep: %v", err)
	}
	if s1 == s2 {
		t.Error("expected a fresh session after sweep")
	}
	if n := atomic.LoadInt32(&launches); n != 2 {
		t.Errorf("expected two launches, got %d", n)
	}
}

func TestTeardown_Idempotent(t *testing.T) {
	var launches int32
	m := NewManager(Options{Launch: countingLauncher(&launches)})

	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	m.Teardown()
	m.Teardown() // no session left; must not panic

	if m.Current() != nil {
		t.Error("handle survived teardown")
	}
}
