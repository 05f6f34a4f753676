// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/link-makers/linkgen/internal/auth"
	"github.com/link-makers/linkgen/internal/batch"
	"github.com/link-makers/linkgen/internal/browser"
	"github.com/link-makers/linkgen/internal/config"
	"github.com/link-makers/linkgen/internal/downloader"
	"github.com/link-makers/linkgen/internal/extractor"
	"github.com/link-makers/linkgen/internal/ratelimit"
)

// Application holds all application dependencies and manages their lifecycle.
//
// It is created once at startup and shared across all CLI commands.
// Use Close() to ensure proper resource cleanup on shutdown.
type Application struct {
	Config       *config.Config
	Logger       *zerolog.Logger
	Manager      *browser.Manager
	Service      *extractor.Service
	Store        *batch.Store
	Orchestrator *batch.Orchestrator
	Downloader   *downloader.Downloader
	Limiter      *ratelimit.ClientLimiter

	janitorCancel context.CancelFunc
	done          chan struct{}
	startTime     time.Time
}

// New creates and initializes a new Application with all dependencies.
//
// It performs the following initialization steps:
//   - Configures logging based on the provided config
//   - Creates the browser session manager (engine start is lazy)
//   - Creates the downloader, journal, and batch store
//   - Wires the extraction service and batch orchestrator
//
// If any step fails, an error is returned and no resources are allocated.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	// Initialize logger based on config
	logLevel := zerolog.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	var logWriter io.Writer
	if cfg.JSONLog {
		// JSON logs to stderr
		logWriter = os.Stderr
	} else {
		// Human-friendly console output otherwise
		logWriter = zerolog.NewConsoleWriter()
	}

	logger := log.Output(logWriter).With().Timestamp().Logger()
	log.Logger = logger

	logger.Debug().
		Str("level", cfg.LogLevel).
		Bool("json", cfg.JSONLog).
		Msg("Logger initialized")

	// Browser engine starts lazily on first use. Only the manager, which
	// guards the shared handle, is created now.
	manager := browser.NewManager(browser.Options{
		Headless:   cfg.Headless,
		ChromePath: cfg.ChromePath,
		MaxAge:     cfg.SessionMaxAge,
	})

	journal, err := downloader.NewJournal(cfg.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open download journal: %w", err)
	}

	dl := downloader.NewDownloader(cfg.DownloadDir, cfg.HTTPTimeout, journal)
	logger.Debug().
		Str("dir", cfg.DownloadDir).
		Msg("Downloader initialized")

	service := extractor.NewService(extractor.ServiceOptions{
		Manager: manager,
		Credentials: auth.Credentials{
			Email:    cfg.Email,
			Password: cfg.Password,
		},
		Workflow: extractor.Config{
			SurfaceURL:    config.SiteBaseURL,
			InputSel:      config.InputSelector,
			ResetSel:      config.ResetSelector,
			LinkPrefix:    config.LinkPrefix,
			PersistFile:   cfg.PersistFile,
			Reset:         cfg.ResetStrategy,
			NavigateFirst: !cfg.WarmSession,
			FormTimeout:   cfg.FormTimeout,
			SettleBudget:  cfg.SettleBudget,
			ResetSettle:   cfg.ResetSettle,
			DownloadWait:  cfg.DownloadWait,
		},
		Persister:     dl,
		WarmSession:   cfg.WarmSession,
		SessionName:   cfg.SessionName,
		LoginAttempts: cfg.LoginAttempts,
		DownloadDir:   cfg.DownloadDir,
	})

	store := batch.NewStore(cfg.BatchTTL, nil)
	orchestrator := batch.NewOrchestrator(service, store, cfg.BatchCap)

	limiter := ratelimit.NewClientLimiter(cfg.RateLimitMax, cfg.RateLimitSpan)

	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	manager.StartJanitor(janitorCtx, cfg.SweepInterval)
	store.StartJanitor(done, cfg.SweepInterval)
	limiter.StartJanitor(done, cfg.SweepInterval, cfg.RateLimitSpan)

	app := &Application{
		Config:        cfg,
		Logger:        &logger,
		Manager:       manager,
		Service:       service,
		Store:         store,
		Orchestrator:  orchestrator,
		Downloader:    dl,
		Limiter:       limiter,
		janitorCancel: janitorCancel,
		done:          done,
		startTime:     time.Now(),
	}

	logger.Info().Msg("Application initialized successfully")
	return app, nil
}

// Close gracefully shuts down the application and all its resources.
//
// It stops the background janitors, releases the authenticated context,
// and tears down the shared browser engine. Errors during shutdown are
// logged but do not prevent other shutdown steps.
func (a *Application) Close(ctx context.Context) error {
	a.Logger.Info().Msg("Shutting down application")

	a.janitorCancel()
	close(a.done)

	a.Service.Close()
	a.Manager.Teardown()

	a.Logger.Info().
		Dur("uptime", time.Since(a.startTime)).
		Msg("Application shutdown complete")
	return nil
}
