// internal/browser/driver.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/rs/zerolog/log"

	"github.com/link-makers/linkgen/pkg/models"
)

// DownloadStart is emitted when the engine reports a download beginning.
type DownloadStart struct {
	GUID              string
	URL               string
	SuggestedFilename string
}

// Driver is the set of page interactions the workflow needs from a browsing
// context. The production implementation wraps a chromedp tab; tests supply
// fakes.
type Driver interface {
	// Navigate loads the URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until the selector is visible or the bound elapses.
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	// Fill clears the control and types the value into it.
	Fill(ctx context.Context, sel, value string) error
	// PressEnter sends an Enter keystroke to the control.
	PressEnter(ctx context.Context, sel string) error
	// Click activates the control.
	Click(ctx context.Context, sel string) error
	// InputValue reads the control's value and placeholder attributes.
	InputValue(ctx context.Context, sel string) (value, placeholder string, err error)
	// PageHTML returns the current document markup.
	PageHTML(ctx context.Context) (string, error)
	// Downloads delivers download-started events observed on this context.
	Downloads() <-chan DownloadStart
	// AwaitDownload blocks until the identified download finishes and
	// returns the on-disk artifact path and its reported byte count.
	AwaitDownload(ctx context.Context, guid string, timeout time.Duration) (path string, size int64, err error)
	// CancelDownload discards an in-flight download to avoid wasted I/O.
	CancelDownload(ctx context.Context, guid string) error
	// Cookies captures the context's cookie jar.
	Cookies(ctx context.Context) ([]models.Cookie, error)
	// SetCookies restores a previously captured cookie jar.
	SetCookies(ctx context.Context, cookies []models.Cookie) error
	// Close releases the underlying tab.
	Close() error
}

// ChromeDriver implements Driver over one chromedp tab derived from the
// shared session.
type ChromeDriver struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	downloadDir string

	starts chan DownloadStart

	mu      sync.Mutex
	done    map[string]chan downloadOutcome
	started map[string]bool
}

type downloadOutcome struct {
	state string
	bytes int64
}

// NewDriver opens a tab on the shared session and wires download event
// tracking. Downloaded artifacts land in downloadDir named by GUID.
func NewDriver(sess *Session, downloadDir string) (*ChromeDriver, error) {
	if sess == nil {
		return nil, fmt.Errorf("browser session is required")
	}

	abs, err := filepath.Abs(downloadDir)
	if err != nil {
		return nil, fmt.Errorf("resolve download dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(sess.BrowserContext())

	d := &ChromeDriver{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		downloadDir: abs,
		starts:      make(chan DownloadStart, 8),
		done:        make(map[string]chan downloadOutcome),
		started:     make(map[string]bool),
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *cdpbrowser.EventDownloadWillBegin:
			d.mu.Lock()
			d.started[e.GUID] = true
			d.mu.Unlock()
			select {
			case d.starts <- DownloadStart{GUID: e.GUID, URL: e.URL, SuggestedFilename: e.SuggestedFilename}:
			default:
				log.Warn().Str("guid", e.GUID).Msg("Download event buffer full, dropping event")
			}
		case *cdpbrowser.EventDownloadProgress:
			if e.State == cdpbrowser.DownloadProgressStateInProgress {
				return
			}
			d.mu.Lock()
			ch := d.outcomeChan(e.GUID)
			d.mu.Unlock()
			select {
			case ch <- downloadOutcome{state: string(e.State), bytes: int64(e.TotalBytes)}:
			default:
			}
		}
	})

	err = chromedp.Run(tabCtx,
		network.Enable(),
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(abs).
			WithEventsEnabled(true),
	)
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("configure tab: %w", err)
	}

	return d, nil
}

// outcomeChan must be called with d.mu held.
func (d *ChromeDriver) outcomeChan(guid string) chan downloadOutcome {
	ch, ok := d.done[guid]
	if !ok {
		ch = make(chan downloadOutcome, 1)
		d.done[guid] = ch
	}
	return ch
}

func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := d.tabCtx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(d.tabCtx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (d *ChromeDriver) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(d.tabCtx, timeout)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", sel, err)
	}
	return nil
}

func (d *ChromeDriver) Fill(ctx context.Context, sel, value string) error {
	return d.run(ctx,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
}

func (d *ChromeDriver) PressEnter(ctx context.Context, sel string) error {
	return d.run(ctx, chromedp.SendKeys(sel, kb.Enter, chromedp.ByQuery))
}

func (d *ChromeDriver) Click(ctx context.Context, sel string) error {
	return d.run(ctx, chromedp.Click(sel, chromedp.ByQuery))
}

func (d *ChromeDriver) InputValue(ctx context.Context, sel string) (string, string, error) {
	var value, placeholder string
	var ok bool
	err := d.run(ctx,
		chromedp.Value(sel, &value, chromedp.ByQuery),
		chromedp.AttributeValue(sel, "placeholder", &placeholder, &ok, chromedp.ByQuery),
	)
	if err != nil {
		return "", "", fmt.Errorf("read %q: %w", sel, err)
	}
	return value, placeholder, nil
}

func (d *ChromeDriver) PageHTML(ctx context.Context) (string, error) {
	var html string
	if err := d.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (d *ChromeDriver) Downloads() <-chan DownloadStart {
	return d.starts
}

func (d *ChromeDriver) AwaitDownload(ctx context.Context, guid string, timeout time.Duration) (string, int64, error) {
	d.mu.Lock()
	ch := d.outcomeChan(guid)
	d.mu.Unlock()

	select {
	case out := <-ch:
		if out.state != string(cdpbrowser.DownloadProgressStateCompleted) {
			return "", 0, fmt.Errorf("download %s ended in state %s", guid, out.state)
		}
		// AllowAndName stores the artifact under its GUID.
		return filepath.Join(d.downloadDir, guid), out.bytes, nil
	case <-time.After(timeout):
		return "", 0, fmt.Errorf("download %s did not complete within %s", guid, timeout)
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}
}

func (d *ChromeDriver) CancelDownload(ctx context.Context, guid string) error {
	return d.run(ctx, cdpbrowser.CancelDownload(guid))
}

func (d *ChromeDriver) Cookies(ctx context.Context) ([]models.Cookie, error) {
	var raw []*network.Cookie
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	cookies := make([]models.Cookie, len(raw))
	for i, c := range raw {
		cookies[i] = models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		}
	}
	return cookies, nil
}

func (d *ChromeDriver) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			param := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if c.Expires > 0 {
				exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				param = param.WithExpires(&exp)
			}
			if err := param.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

func (d *ChromeDriver) Close() error {
	d.tabCancel()
	return nil
}
