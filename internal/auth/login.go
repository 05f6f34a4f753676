// internal/auth/login.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/link-makers/linkgen/internal/browser"
	"github.com/link-makers/linkgen/internal/config"
)

// ErrAuthenticationFailed marks any failure to complete the login flow.
// Callers must discard the browsing context and start over; no partial
// credential state is retriable.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Credentials identify the account on the target site.
type Credentials struct {
	Email    string
	Password string
}

// Options configures the login procedure.
type Options struct {
	// LoginURL is the login surface; defaults to the site constant.
	LoginURL string
	// Timeout bounds the whole procedure.
	Timeout time.Duration
	// SettledSelector is waited on after submission as the
	// network-quiescence signal; defaults to the extraction input.
	SettledSelector string
}

// Login drives the login form to completion on the given context. On return
// the context's cookie state represents an authenticated user.
func Login(ctx context.Context, drv browser.Driver, creds Credentials, opts Options) error {
	if creds.Email == "" || creds.Password == "" {
		return fmt.Errorf("%w: missing credentials (set STOCIP_EMAIL and STOCIP_PASSWORD)", ErrAuthenticationFailed)
	}
	if opts.LoginURL == "" {
		opts.LoginURL = config.SiteLoginURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = config.DefaultLoginTimeout
	}
	if opts.SettledSelector == "" {
		opts.SettledSelector = config.InputSelector
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	start := time.Now()
	log.Info().Str("url", opts.LoginURL).Msg("Navigating to login page")

	if err := drv.Navigate(ctx, opts.LoginURL); err != nil {
		return fmt.Errorf("%w: navigate: %v", ErrAuthenticationFailed, err)
	}
	if err := drv.WaitVisible(ctx, config.IdentitySelector, opts.Timeout); err != nil {
		return fmt.Errorf("%w: identity field never appeared: %v", ErrAuthenticationFailed, err)
	}
	if err := drv.Fill(ctx, config.IdentitySelector, creds.Email); err != nil {
		return fmt.Errorf("%w: fill identity: %v", ErrAuthenticationFailed, err)
	}
	if err := drv.Fill(ctx, config.SecretSelector, creds.Password); err != nil {
		return fmt.Errorf("%w: fill secret: %v", ErrAuthenticationFailed, err)
	}

	log.Debug().Msg("Submitting login form")
	if err := drv.Click(ctx, config.SubmitSelector); err != nil {
		return fmt.Errorf("%w: submit: %v", ErrAuthenticationFailed, err)
	}

	// The post-login page hosts the extraction input; its appearance is the
	// signal that navigation has fully settled.
	if err := drv.WaitVisible(ctx, opts.SettledSelector, opts.Timeout); err != nil {
		return fmt.Errorf("%w: post-login page never settled: %v", ErrAuthenticationFailed, err)
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("Login successful")
	return nil
}
