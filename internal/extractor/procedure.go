// internal/extractor/procedure.go
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/link-makers/linkgen/internal/browser"
	"github.com/link-makers/linkgen/internal/config"
	"github.com/link-makers/linkgen/pkg/models"
)

// Persister stores the physical file when the workflow is configured to
// retain more than the generated link.
type Persister interface {
	// PersistArtifact copies an engine-downloaded artifact into the
	// destination directory under the suggested name and verifies its size.
	PersistArtifact(ctx context.Context, tmpPath, fileName string, wantSize int64) (path string, size int64, err error)
	// FetchLink downloads the generated link over HTTP when the engine
	// never produced an artifact of its own.
	FetchLink(ctx context.Context, link string) (path string, name string, size int64, err error)
	// Record appends a completed download to the persistent journal.
	Record(sourceURL, link, path string, size int64)
}

// Config parametrizes one workflow profile. The single-flow, batch-flow,
// and physical-download variants all run through the same procedure.
type Config struct {
	SurfaceURL  string
	InputSel    string
	ResetSel    string
	LinkPrefix  string
	PersistFile bool
	Reset       models.ResetStrategy
	// NavigateFirst loads the extraction surface before every submission
	// instead of reusing the already-open page.
	NavigateFirst bool

	FormTimeout  time.Duration
	SettleBudget time.Duration
	SettlePoll   time.Duration
	ResetSettle  time.Duration
	DownloadWait time.Duration
}

func (c *Config) applyDefaults() {
	if c.SurfaceURL == "" {
		c.SurfaceURL = config.SiteBaseURL
	}
	if c.InputSel == "" {
		c.InputSel = config.InputSelector
	}
	if c.ResetSel == "" {
		c.ResetSel = config.ResetSelector
	}
	if c.LinkPrefix == "" {
		c.LinkPrefix = config.LinkPrefix
	}
	if c.FormTimeout <= 0 {
		c.FormTimeout = config.DefaultFormTimeout
	}
	if c.SettleBudget <= 0 {
		c.SettleBudget = config.DefaultSettleBudget
	}
	if c.SettlePoll <= 0 {
		c.SettlePoll = config.DefaultSettlePoll
	}
	if c.ResetSettle <= 0 {
		c.ResetSettle = config.DefaultResetSettle
	}
	if c.DownloadWait <= 0 {
		c.DownloadWait = config.DefaultDownloadWait
	}
	if c.Reset == "" {
		c.Reset = models.ResetButton
	}
}

// Procedure runs the single-item extraction state machine against one
// browsing context. It is not safe for concurrent use; callers serialize.
type Procedure struct {
	drv       browser.Driver
	cfg       Config
	persister Persister
}

// NewProcedure builds a procedure over an authenticated driver. persister
// may be nil for link-only profiles.
func NewProcedure(drv browser.Driver, cfg Config, persister Persister) *Procedure {
	cfg.applyDefaults()
	return &Procedure{drv: drv, cfg: cfg, persister: persister}
}

// Run submits the source URL and returns a well-formed result. Failures are
// reported in the result, never panicked; the page is left either completed
// or explicitly reset by the caller before the next submission.
func (p *Procedure) Run(ctx context.Context, sourceURL string) *models.ExtractionResult {
	res := &models.ExtractionResult{URL: sourceURL, StartedAt: time.Now()}
	defer func() { res.Duration = time.Since(res.StartedAt) }()

	if err := p.run(ctx, sourceURL, res); err != nil {
		res.Success = false
		res.Error = err.Error()
		res.Code = string(CodeOf(err))
		log.Warn().Str("url", sourceURL).Err(err).Msg("Extraction failed")
		return res
	}

	res.Success = true
	log.Info().
		Str("url", sourceURL).
		Str("generated", res.GeneratedText).
		Dur("elapsed", res.Duration).
		Msg("Extraction completed")
	return res
}

func (p *Procedure) run(ctx context.Context, sourceURL string, res *models.ExtractionResult) error {
	// Navigate
	if p.cfg.NavigateFirst {
		if err := p.drv.Navigate(ctx, p.cfg.SurfaceURL); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return NewWorkflowError(CodeTimeout, "navigation to extraction surface timed out", err)
			}
			return NewWorkflowError(CodeFormNotFound, "extraction surface unreachable", err)
		}
	}

	// AwaitFormReady
	if err := p.drv.WaitVisible(ctx, p.cfg.InputSel, p.cfg.FormTimeout); err != nil {
		return NewWorkflowError(CodeFormNotFound, "download input never appeared", err)
	}

	p.drainDownloads()

	// Submit
	if err := p.drv.Fill(ctx, p.cfg.InputSel, sourceURL); err != nil {
		return NewWorkflowError(CodeFormNotFound, "failed to fill download input", err)
	}
	if err := p.drv.PressEnter(ctx, p.cfg.InputSel); err != nil {
		return NewWorkflowError(CodeFormNotFound, "failed to submit download input", err)
	}

	// AwaitResult: a download-started event and a qualifying value mutation
	// race; whichever fires first counts as submission accepted.
	dl, err := p.awaitAccepted(ctx, sourceURL)
	if err != nil {
		return err
	}

	// The UI updates the field asynchronously after the event fires, so the
	// settled re-read, not the first signal, is authoritative. A bounded
	// poll replaces the historical fixed sleep.
	text, err := p.settleAndExtract(ctx, sourceURL)
	if err != nil {
		return err
	}
	res.GeneratedText = text

	// Persist or discard the physical artifact.
	if p.cfg.PersistFile {
		if err := p.persist(ctx, dl, text, res); err != nil {
			return err
		}
	} else if dl != nil {
		if err := p.drv.CancelDownload(ctx, dl.GUID); err != nil {
			log.Debug().Err(err).Str("guid", dl.GUID).Msg("Could not cancel in-flight download")
		}
	}

	return nil
}

// drainDownloads clears stale download events left by a previous item.
func (p *Procedure) drainDownloads() {
	for {
		select {
		case <-p.drv.Downloads():
		default:
			return
		}
	}
}

func (p *Procedure) awaitAccepted(ctx context.Context, sourceURL string) (*browser.DownloadStart, error) {
	deadline := time.NewTimer(p.cfg.FormTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(p.cfg.SettlePoll)
	defer poll.Stop()

	for {
		select {
		case dl := <-p.drv.Downloads():
			log.Debug().Str("guid", dl.GUID).Str("filename", dl.SuggestedFilename).Msg("Download event observed")
			return &dl, nil
		case <-poll.C:
			value, _, err := p.drv.InputValue(ctx, p.cfg.InputSel)
			if err == nil && p.generated(value, sourceURL) {
				return nil, nil
			}
		case <-deadline.C:
			return nil, NewWorkflowError(CodeTimeout, "no download event or generated link within bound", nil)
		case <-ctx.Done():
			return nil, NewWorkflowError(CodeTimeout, "extraction cancelled", ctx.Err())
		}
	}
}

// settleAndExtract polls the control until its value carries a qualifying
// link or the settle budget runs out, then reads the final text.
func (p *Procedure) settleAndExtract(ctx context.Context, sourceURL string) (string, error) {
	settleDeadline := time.Now().Add(p.cfg.SettleBudget)
	var value, placeholder string

	for {
		var err error
		value, placeholder, err = p.drv.InputValue(ctx, p.cfg.InputSel)
		if err != nil {
			return "", NewWorkflowError(CodeNoText, "failed to read download input", err)
		}
		if p.generated(value, sourceURL) || time.Now().After(settleDeadline) {
			break
		}
		select {
		case <-time.After(p.cfg.SettlePoll):
		case <-ctx.Done():
			return "", NewWorkflowError(CodeTimeout, "extraction cancelled while settling", ctx.Err())
		}
	}

	// Value attribute preferred, placeholder as fallback. The source URL
	// still echoed in the field counts as nothing generated.
	text := strings.TrimSpace(value)
	if text == sourceURL {
		text = ""
	}
	if text == "" {
		text = strings.TrimSpace(placeholder)
	}
	if text == "" {
		text = p.scrapeLinkFallback(ctx)
	}
	if text == "" {
		return "", NewWorkflowError(CodeNoText, "control value empty after settling", nil)
	}
	return text, nil
}

// scrapeLinkFallback scans the page markup for an anchor carrying a
// qualifying link when the input itself stayed empty.
func (p *Procedure) scrapeLinkFallback(ctx context.Context) string {
	html, err := p.drv.PageHTML(ctx)
	if err != nil {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		_, marked := s.Attr("download")
		if !marked && !s.HasClass("download-link") {
			return true
		}
		if href, _ := s.Attr("href"); p.qualifies(href) {
			link = href
			return false
		}
		return true
	})
	return link
}

func (p *Procedure) persist(ctx context.Context, dl *browser.DownloadStart, link string, res *models.ExtractionResult) error {
	if p.persister == nil {
		return NewWorkflowError(CodeSizeMismatch, "persistence requested but no persister configured", nil)
	}

	if dl != nil {
		tmpPath, reported, err := p.drv.AwaitDownload(ctx, dl.GUID, p.cfg.DownloadWait)
		if err != nil {
			return NewWorkflowError(CodeTimeout, "download did not complete", err)
		}
		name := dl.SuggestedFilename
		if name == "" {
			name = dl.GUID
		}
		path, size, err := p.persister.PersistArtifact(ctx, tmpPath, name, reported)
		if err != nil {
			return classifyPersistErr(err)
		}
		res.FilePath, res.FileName, res.FileSize = path, name, size
		p.persister.Record(res.URL, link, path, size)
		return nil
	}

	// No engine artifact; fetch the generated link directly.
	path, name, size, err := p.persister.FetchLink(ctx, link)
	if err != nil {
		return classifyPersistErr(err)
	}
	res.FilePath, res.FileName, res.FileSize = path, name, size
	p.persister.Record(res.URL, link, path, size)
	return nil
}

func classifyPersistErr(err error) error {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we
	}
	return NewWorkflowError(CodeSizeMismatch, "failed to persist download", err)
}

// Reset returns the extraction surface to a clean state between items.
// A missing reset control is a form failure for that item, never a silent
// continue with stale state.
func (p *Procedure) Reset(ctx context.Context) error {
	switch p.cfg.Reset {
	case models.ResetNone:
		return nil
	case models.ResetReload:
		if err := p.drv.Navigate(ctx, p.cfg.SurfaceURL); err != nil {
			return NewWorkflowError(CodeFormNotFound, "failed to reload extraction surface", err)
		}
	case models.ResetButton:
		if err := p.drv.WaitVisible(ctx, p.cfg.ResetSel, p.cfg.ResetSettle); err != nil {
			return NewWorkflowError(CodeFormNotFound, "reset control not present", err)
		}
		if err := p.drv.Click(ctx, p.cfg.ResetSel); err != nil {
			return NewWorkflowError(CodeFormNotFound, "failed to activate reset control", err)
		}
		select {
		case <-time.After(p.cfg.ResetSettle):
		case <-ctx.Done():
			return NewWorkflowError(CodeTimeout, "reset cancelled", ctx.Err())
		}
	default:
		return fmt.Errorf("unknown reset strategy %q", p.cfg.Reset)
	}

	if err := p.drv.WaitVisible(ctx, p.cfg.InputSel, p.cfg.FormTimeout); err != nil {
		return NewWorkflowError(CodeFormNotFound, "form did not re-settle after reset", err)
	}
	return nil
}

func (p *Procedure) qualifies(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), p.cfg.LinkPrefix)
}

// generated reports whether the control value is a link the page produced,
// as opposed to the source URL still sitting in the field after submission.
func (p *Procedure) generated(value, sourceURL string) bool {
	return p.qualifies(value) && strings.TrimSpace(value) != sourceURL
}
