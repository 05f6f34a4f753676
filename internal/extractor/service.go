// internal/extractor/service.go
package extractor

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/link-makers/linkgen/internal/auth"
	"github.com/link-makers/linkgen/internal/browser"
	"github.com/link-makers/linkgen/internal/retry"
	"github.com/link-makers/linkgen/pkg/models"
)

// DriverFactory opens a fresh driver over the shared session. Injectable so
// tests can run the service without Chrome.
type DriverFactory func(sess *browser.Session) (browser.Driver, error)

// ServiceOptions wires the service's collaborators.
type ServiceOptions struct {
	Manager     *browser.Manager
	Credentials auth.Credentials
	Workflow    Config
	Persister   Persister
	// WarmSession keeps one authenticated context open across requests;
	// otherwise a context is opened per request and closed after use.
	WarmSession bool
	// SessionName enables cookie persistence between process restarts;
	// empty disables it.
	SessionName   string
	LoginAttempts int
	DriverFactory DriverFactory
	DownloadDir   string
}

// Service owns the authenticated workflow: it acquires the shared browser
// session, logs in at most once per engine instance, and runs extractions
// serially against the warm context. A single mutex guards the context; one
// request's form fill can never be overwritten by another's.
type Service struct {
	opts ServiceOptions

	mu       sync.Mutex
	drv      browser.Driver
	proc     *Procedure
	engineID string
}

// NewService creates the workflow service.
func NewService(opts ServiceOptions) *Service {
	if opts.LoginAttempts <= 0 {
		opts.LoginAttempts = 2
	}
	if opts.DriverFactory == nil {
		opts.DriverFactory = func(sess *browser.Session) (browser.Driver, error) {
			return browser.NewDriver(sess, opts.DownloadDir)
		}
	}
	return &Service{opts: opts}
}

// EnsureSession guarantees an authenticated context is ready. Safe to call
// repeatedly; login runs at most once per engine instance.
func (s *Service) EnsureSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(ctx)
}

func (s *Service) ensureLocked(ctx context.Context) error {
	sess, err := s.opts.Manager.Acquire(ctx)
	if err != nil {
		return NewWorkflowError(CodeSessionInit, "browser engine unavailable", err)
	}

	if s.drv != nil && s.engineID == sess.ID {
		return nil
	}

	// Engine was renewed (or this is the first use); the old context died
	// with it.
	if s.drv != nil {
		s.drv.Close()
		s.drv, s.proc = nil, nil
	}

	drv, err := s.opts.DriverFactory(sess)
	if err != nil {
		return NewWorkflowError(CodeSessionInit, "failed to open browsing context", err)
	}

	if err := s.authenticate(ctx, drv); err != nil {
		drv.Close()
		return err
	}

	s.drv = drv
	s.engineID = sess.ID
	s.proc = NewProcedure(drv, s.opts.Workflow, s.opts.Persister)
	return nil
}

// authenticate restores persisted cookies when possible and falls back to a
// full login. Login is retried with backoff; it is the fragile step worth
// amortizing, and a transient failure should not burn the whole batch.
func (s *Service) authenticate(ctx context.Context, drv browser.Driver) error {
	if s.restoreCookies(ctx, drv) {
		return nil
	}

	err := retry.WithRetry(ctx, retry.Config{MaxAttempts: s.opts.LoginAttempts}, func() error {
		return auth.Login(ctx, drv, s.opts.Credentials, auth.Options{})
	})
	if err != nil {
		return NewWorkflowError(CodeAuth, "login did not complete", err)
	}

	s.saveCookies(ctx, drv)
	return nil
}

// restoreCookies attempts a warm start from a persisted cookie jar. It
// reports success only when the extraction surface accepts the restored
// identity.
func (s *Service) restoreCookies(ctx context.Context, drv browser.Driver) bool {
	if s.opts.SessionName == "" {
		return false
	}

	data, err := auth.LoadSession(s.opts.SessionName)
	if err != nil {
		log.Debug().Err(err).Msg("No usable persisted session")
		return false
	}
	if err := drv.SetCookies(ctx, data.Cookies); err != nil {
		log.Debug().Err(err).Msg("Failed to restore cookies")
		return false
	}

	cfg := s.opts.Workflow
	cfg.applyDefaults()
	if err := drv.Navigate(ctx, cfg.SurfaceURL); err != nil {
		return false
	}
	if err := drv.WaitVisible(ctx, cfg.InputSel, cfg.ResetSettle); err != nil {
		// Restored cookies no longer authenticate; fall through to login.
		_ = auth.DeleteSession(s.opts.SessionName)
		return false
	}

	log.Info().Str("session", s.opts.SessionName).Msg("Restored persisted login session")
	return true
}

func (s *Service) saveCookies(ctx context.Context, drv browser.Driver) {
	if s.opts.SessionName == "" {
		return
	}
	cookies, err := drv.Cookies(ctx)
	if err != nil || len(cookies) == 0 {
		log.Debug().Err(err).Msg("Could not capture cookies for persistence")
		return
	}
	if err := auth.SaveSession(auth.FromCookies(s.opts.SessionName, cookies)); err != nil {
		log.Warn().Err(err).Msg("Failed to persist login session")
	}
}

// Extract runs one extraction against the authenticated context using the
// configured workflow profile.
func (s *Service) Extract(ctx context.Context, sourceURL string) *models.ExtractionResult {
	return s.ExtractWith(ctx, sourceURL, s.opts.Workflow.PersistFile)
}

// ExtractWith runs one extraction, overriding whether the artifact is
// persisted or only the generated link is captured. Both API profiles share
// the one authenticated context.
func (s *Service) ExtractWith(ctx context.Context, sourceURL string, persist bool) *models.ExtractionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(ctx); err != nil {
		return &models.ExtractionResult{
			URL:     sourceURL,
			Success: false,
			Error:   err.Error(),
			Code:    string(CodeOf(err)),
		}
	}

	proc := s.proc
	if persist != s.opts.Workflow.PersistFile {
		cfg := s.opts.Workflow
		cfg.PersistFile = persist
		proc = NewProcedure(s.drv, cfg, s.opts.Persister)
	}

	res := proc.Run(ctx, sourceURL)

	if !s.opts.WarmSession {
		// Per-request model: the context is closed after use so the next
		// request starts clean.
		s.drv.Close()
		s.drv, s.proc, s.engineID = nil, nil, ""
	}
	return res
}

// Reset restores the extraction surface between batch items.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil {
		return nil
	}
	return s.proc.Reset(ctx)
}

// Close releases the warm context. The shared engine itself belongs to the
// browser manager.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drv != nil {
		s.drv.Close()
		s.drv, s.proc, s.engineID = nil, nil, ""
	}
}
