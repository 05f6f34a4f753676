// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Session is the process-wide shared automation-engine handle. At most one
// live instance exists at a time; it is created lazily and torn down by the
// janitor or at shutdown.
type Session struct {
	ID        string
	CreatedAt time.Time

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// BrowserContext returns the chromedp browser context new tabs derive from.
func (s *Session) BrowserContext() context.Context {
	return s.browserCtx
}

// LaunchFunc starts an engine and returns the live session. Injectable so
// tests can run without Chrome.
type LaunchFunc func(ctx context.Context) (*Session, error)

// Options configures the session manager.
type Options struct {
	Headless   bool
	ChromePath string
	MaxAge     time.Duration
	// Now is the clock used for age checks; defaults to time.Now.
	Now func() time.Time
	// Launch overrides the engine launcher; defaults to a chromedp launcher.
	Launch LaunchFunc
}

// Manager owns the shared browser session. Acquire returns the same session
// until it is torn down; a single-flight group ensures two simultaneous cold
// requests start exactly one engine.
type Manager struct {
	mu     sync.Mutex
	sess   *Session
	sf     singleflight.Group
	now    func() time.Time
	launch LaunchFunc
	maxAge time.Duration
}

// NewManager creates a session manager. No engine is started until the first
// Acquire call.
func NewManager(opts Options) *Manager {
	m := &Manager{
		now:    opts.Now,
		launch: opts.Launch,
		maxAge: opts.MaxAge,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.maxAge <= 0 {
		m.maxAge = time.Hour
	}
	if m.launch == nil {
		m.launch = chromedpLauncher(opts.Headless, opts.ChromePath)
	}
	return m
}

// Acquire returns the live shared session, creating it on first call or
// after a prior teardown. On launch failure no handle is retained, so the
// next call retries from scratch.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if s := m.sess; s != nil {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	v, err, _ := m.sf.Do("session", func() (interface{}, error) {
		// Re-check under the lock: another flight may have just finished.
		m.mu.Lock()
		if s := m.sess; s != nil {
			m.mu.Unlock()
			return s, nil
		}
		m.mu.Unlock()

		s, err := m.launch(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to start browser engine: %w", err)
		}
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = m.now()
		}

		m.mu.Lock()
		m.sess = s
		m.mu.Unlock()

		log.Info().Str("session_id", s.ID).Msg("Browser session started")
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Current returns the live session without creating one, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Teardown closes the shared session unconditionally and clears the cached
// handle so the next Acquire re-establishes it.
func (m *Manager) Teardown() {
	m.mu.Lock()
	s := m.sess
	m.sess = nil
	m.mu.Unlock()

	if s == nil {
		return
	}

	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}

	log.Info().
		Str("session_id", s.ID).
		Dur("age", m.now().Sub(s.CreatedAt)).
		Msg("Browser session torn down")
}

// SweepExpired tears the session down if its age exceeds the configured
// maximum. Returns true when a teardown happened.
func (m *Manager) SweepExpired() bool {
	m.mu.Lock()
	s := m.sess
	m.mu.Unlock()

	if s == nil || m.now().Sub(s.CreatedAt) < m.maxAge {
		return false
	}

	log.Info().Str("session_id", s.ID).Msg("Performing periodic browser cleanup")
	m.Teardown()
	return true
}

// StartJanitor launches the periodic sweep. It stops when ctx is cancelled.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SweepExpired()
			}
		}
	}()
}

// chromedpLauncher builds the default engine launcher. Launch is configured
// for unattended operation; sandbox restrictions are relaxed for
// containerized execution.
func chromedpLauncher(headless bool, chromePath string) LaunchFunc {
	return func(ctx context.Context) (*Session, error) {
		if chromePath == "" {
			chromePath = FindChrome()
		}

		allocOpts := []chromedp.ExecAllocatorOption{
			chromedp.NoFirstRun,
			chromedp.NoDefaultBrowserCheck,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-setuid-sandbox", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-extensions", true),
			chromedp.Flag("disable-background-networking", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("mute-audio", true),
			chromedp.Flag("log-level", "3"),
			chromedp.WindowSize(1280, 720),
		}
		if chromePath != "" {
			allocOpts = append([]chromedp.ExecAllocatorOption{chromedp.ExecPath(chromePath)}, allocOpts...)
		}
		if headless {
			allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag("headless", false))
		}

		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)

		// Force the engine process to start now so a broken install fails
		// the Acquire call instead of the first extraction.
		if err := chromedp.Run(browserCtx, chromedp.Navigate("about:blank")); err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("engine warm-up failed: %w", err)
		}

		return &Session{
			browserCtx:    browserCtx,
			browserCancel: browserCancel,
			allocCancel:   allocCancel,
		}, nil
	}
}
