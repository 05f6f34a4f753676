package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/link-makers/linkgen/pkg/models"
	"github.com/spf13/cobra"
)

// Config holds application configuration values
type Config struct {
	// Logging
	LogLevel string
	JSONLog  bool

	// HTTP server
	Port int

	// Credentials for the target site
	Email    string
	Password string

	// Browser
	Headless   bool
	ChromePath string

	// Workflow
	PersistFile   bool
	WarmSession   bool
	ResetStrategy models.ResetStrategy
	SessionName   string

	// Destinations
	DownloadDir string
	JournalPath string

	// Timing
	FormTimeout    time.Duration
	LoginTimeout   time.Duration
	SettleBudget   time.Duration
	ResetSettle    time.Duration
	DownloadWait   time.Duration
	SessionMaxAge  time.Duration
	SweepInterval  time.Duration
	BatchTTL       time.Duration
	HTTPTimeout    time.Duration
	ServerShutdown time.Duration

	// Limits
	BatchCap      int
	RateLimitMax  int
	RateLimitSpan time.Duration
	LoginAttempts int
}

// Load builds a Config by combining defaults, environment variables, and CLI
// flags. Caller should pass the command so flags can be read; nil is allowed.
func Load(cmd *cobra.Command) (*Config, error) {
	cfg := &Config{
		LogLevel:       DefaultLogLevel,
		JSONLog:        DefaultJSONLog,
		Port:           DefaultPort,
		Headless:       DefaultHeadless,
		PersistFile:    false,
		WarmSession:    true,
		ResetStrategy:  models.ResetButton,
		SessionName:    DefaultSessionName,
		DownloadDir:    DefaultDownloadDir,
		JournalPath:    DefaultJournalPath,
		FormTimeout:    DefaultFormTimeout,
		LoginTimeout:   DefaultLoginTimeout,
		SettleBudget:   DefaultSettleBudget,
		ResetSettle:    DefaultResetSettle,
		DownloadWait:   DefaultDownloadWait,
		SessionMaxAge:  DefaultSessionMaxAge,
		SweepInterval:  DefaultSweepInterval,
		BatchTTL:       DefaultBatchTTL,
		HTTPTimeout:    DefaultHTTPTimeout,
		ServerShutdown: DefaultServerShutdown,
		BatchCap:       DefaultBatchCap,
		RateLimitMax:   DefaultRateLimitMax,
		RateLimitSpan:  DefaultRateLimitSpan,
		LoginAttempts:  DefaultLoginAttempts,
	}

	// Environment overrides
	cfg.Email = os.Getenv("STOCIP_EMAIL")
	cfg.Password = os.Getenv("STOCIP_PASSWORD")

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		// Production always runs headless; anything else may show a window.
		cfg.Headless = v == "production"
	}
	if v := os.Getenv("LINKGEN_DOWNLOAD_DIR"); v != "" {
		cfg.DownloadDir = v
	}
	if v := os.Getenv("LINKGEN_JOURNAL"); v != "" {
		cfg.JournalPath = v
	}
	if v := os.Getenv("LINKGEN_CHROME_PATH"); v != "" {
		cfg.ChromePath = v
	}
	if v := os.Getenv("LINKGEN_SESSION_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SessionMaxAge = d
		}
	}

	// CLI flag overrides
	if cmd != nil {
		if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
			if p, err := strconv.Atoi(f.Value.String()); err == nil {
				cfg.Port = p
			}
		}
		if f := cmd.Flags().Lookup("json"); f != nil && f.Value.String() == "true" {
			cfg.JSONLog = true
		}
		if f := cmd.Flags().Lookup("verbose"); f != nil && f.Value.String() == "true" {
			cfg.LogLevel = "debug"
		}
		if f := cmd.Flags().Lookup("headful"); f != nil && f.Value.String() == "true" {
			cfg.Headless = false
		}
		if f := cmd.Flags().Lookup("persist"); f != nil && f.Value.String() == "true" {
			cfg.PersistFile = true
		}
		if f := cmd.Flags().Lookup("output"); f != nil && f.Changed {
			cfg.DownloadDir = f.Value.String()
		}
		if f := cmd.Flags().Lookup("reset"); f != nil && f.Changed {
			cfg.ResetStrategy = models.ResetStrategy(f.Value.String())
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// RegisterFlags attaches the shared CLI flags to a command.
func RegisterFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().Bool("json", false, "Emit JSON logs")
	cmd.PersistentFlags().Bool("headful", false, "Run the browser with a visible window")
	cmd.PersistentFlags().Bool("persist", false, "Download the file as well as the generated link")
	cmd.PersistentFlags().StringP("output", "o", DefaultDownloadDir, "Destination directory for persisted files")
	cmd.PersistentFlags().String("reset", string(models.ResetButton), "Reset strategy between batch items (reload|button|none)")
}
