package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel = "info"
	DefaultJSONLog  = false
	DefaultPort     = 3000

	DefaultHeadless    = true
	DefaultDownloadDir = "./downloads"
	DefaultJournalPath = "./downloads/journal.log"

	DefaultFormTimeout    = 60 * time.Second
	DefaultLoginTimeout   = 60 * time.Second
	DefaultSettleBudget   = 3 * time.Second
	DefaultSettlePoll     = 50 * time.Millisecond
	DefaultResetSettle    = 1 * time.Second
	DefaultDownloadWait   = 2 * time.Minute
	DefaultSessionMaxAge  = 1 * time.Hour
	DefaultSweepInterval  = 15 * time.Minute
	DefaultBatchTTL       = 1 * time.Hour
	DefaultBatchCap       = 10
	DefaultRateLimitMax   = 20
	DefaultRateLimitSpan  = 15 * time.Minute
	DefaultSessionName    = "linkgen"
	DefaultLoginAttempts  = 2
	DefaultHTTPTimeout    = 5 * time.Minute
	DefaultServerShutdown = 10 * time.Second
)

// The target site is a fixed collaborator endpoint, not configuration.
const (
	SiteBaseURL  = "https://stocip.com"
	SiteLoginURL = SiteBaseURL + "/login"

	IdentitySelector = `input[type="text"], input[type="email"]`
	SecretSelector   = `input[type="password"]`
	SubmitSelector   = `button[type="submit"]`
	InputSelector    = ".download-input"
	ResetSelector    = "#resetButton"

	// Generated links are only trusted once they carry a qualifying prefix.
	LinkPrefix = "http"
)
