package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/link-makers/linkgen/internal/browser"
	"github.com/link-makers/linkgen/internal/downloader"
	"github.com/link-makers/linkgen/pkg/models"
)

// fakeDriver simulates the extraction surface. Tests script it by mutating
// the value/placeholder fields and pushing download events.
type fakeDriver struct {
	mu          sync.Mutex
	value       string
	placeholder string
	html        string

	inputVisible bool
	resetVisible bool

	navigated []string
	filled    []string
	pressed   int
	clicked   []string
	cancelled []string

	// onSubmit runs after PressEnter, letting a test mutate state the way
	// the page would react to a submission.
	onSubmit func(d *fakeDriver)

	downloads   chan browser.DownloadStart
	awaitPath   string
	awaitSize   int64
	awaitErr    error
	inputErr    error
	waitVisible func(sel string) error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		inputVisible: true,
		resetVisible: true,
		downloads:    make(chan browser.DownloadStart, 4),
	}
}

func (d *fakeDriver) setValue(v string) {
	d.mu.Lock()
	d.value = v
	d.mu.Unlock()
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.navigated = append(d.navigated, url)
	return nil
}

func (d *fakeDriver) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	if d.waitVisible != nil {
		return d.waitVisible(sel)
	}
	if sel == ".download-input" && !d.inputVisible {
		return errors.New("selector never became visible")
	}
	if sel == "#resetButton" && !d.resetVisible {
		return errors.New("selector never became visible")
	}
	return nil
}

func (d *fakeDriver) Fill(ctx context.Context, sel, value string) error {
	d.filled = append(d.filled, value)
	d.setValue(value)
	return nil
}

func (d *fakeDriver) PressEnter(ctx context.Context, sel string) error {
	d.pressed++
	if d.onSubmit != nil {
		d.onSubmit(d)
	}
	return nil
}

func (d *fakeDriver) Click(ctx context.Context, sel string) error {
	d.clicked = append(d.clicked, sel)
	if sel == "#resetButton" {
		d.setValue("")
	}
	return nil
}

func (d *fakeDriver) InputValue(ctx context.Context, sel string) (string, string, error) {
	if d.inputErr != nil {
		return "", "", d.inputErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.placeholder, nil
}

func (d *fakeDriver) PageHTML(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.html, nil
}

func (d *fakeDriver) Downloads() <-chan browser.DownloadStart {
	return d.downloads
}

func (d *fakeDriver) AwaitDownload(ctx context.Context, guid string, timeout time.Duration) (string, int64, error) {
	return d.awaitPath, d.awaitSize, d.awaitErr
}

func (d *fakeDriver) CancelDownload(ctx context.Context, guid string) error {
	d.cancelled = append(d.cancelled, guid)
	return nil
}

func (d *fakeDriver) Cookies(ctx context.Context) ([]models.Cookie, error) {
	return nil, nil
}

func (d *fakeDriver) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	return nil
}

func (d *fakeDriver) Close() error { return nil }

func fastConfig() Config {
	return Config{
		FormTimeout:  500 * time.Millisecond,
		SettleBudget: 100 * time.Millisecond,
		SettlePoll:   5 * time.Millisecond,
		ResetSettle:  time.Millisecond,
		DownloadWait: 100 * time.Millisecond,
	}
}

func TestRun_GeneratedLinkViaValueMutation(t *testing.T) {
	drv := newFakeDriver()
	drv.onSubmit = func(d *fakeDriver) {
		d.setValue("https://cdn.example.com/asset123.zip")
	}

	p := NewProcedure(drv, fastConfig(), nil)
	res := p.Run(context.Background(), "https://example.com/asset123")

	if !res.Success {
		t.Fatalf("extraction failed: %s", res.Error)
	}
	if res.GeneratedText != "https://cdn.example.com/asset123.zip" {
		t.Errorf("got generated text %q", res.GeneratedText)
	}
	if res.Duration <= 0 {
		t.Error("duration not recorded")
	}
	if len(drv.filled) != 1 || drv.filled[0] != "https://example.com/asset123" {
		t.Errorf("unexpected fills: %v", drv.filled)
	}
	if drv.pressed != 1 {
		t.Errorf("expected one submission, got %d", drv.pressed)
	}
}

func TestRun_FormNeverAppears(t *testing.T) {
	drv := newFakeDriver()
	drv.inputVisible = false

	p := NewProcedure(drv, fastConfig(), nil)
	res := p.Run(context.Background(), "https://example.com/x")

	if res.Success {
		t.Fatal("expected failure when input never appears")
	}
	if !strings.Contains(res.Error, "download input never appeared") {
		t.Errorf("unexpected error: %s", res.Error)
	}
	if res.Code != string(CodeFormNotFound) {
		t.Errorf("failure code %q", res.Code)
	}
	if drv.pressed != 0 {
		t.Error("submission must not happen without the form")
	}
}

func TestRun_TimeoutWhenNothingHappens(t *testing.T) {
	drv := newFakeDriver()
	drv.onSubmit = func(d *fakeDriver) {
		// Page stays inert: value remains the submitted source URL-less
		// empty string and no download event fires.
		d.setValue("")
	}

	p := NewProcedure(drv, fastConfig(), nil)
	res := p.Run(context.Background(), "https://example.com/x")

	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(res.Error, "no download event or generated link") {
		t.Errorf("unexpected error: %s", res.Error)
	}
}

func TestRun_PlaceholderFallback(t *testing.T) {
	drv := newFakeDriver()
	drv.onSubmit = func(d *fakeDriver) {
		// Accepted via download event, but the value never mutates; the
		// link lands in the placeholder.
		d.mu.Lock()
		d.value = ""
		d.placeholder = "https://cdn.example.com/from-placeholder.bin"
		d.mu.Unlock()
		d.downloads <- browser.DownloadStart{GUID: "g1", SuggestedFilename: "from-placeholder.bin"}
	}

	p := NewProcedure(drv, fastConfig(), nil)
	res := p.Run(context.Background(), "https://example.com/x")

	if !res.Success {
		t.Fatalf("extraction failed: %s", res.Error)
	}
	if res.GeneratedText != "https://cdn.example.com/from-placeholder.bin" {
		t.Errorf("got %q", res.GeneratedText)
	}
	// Link-only profile discards the artifact.
	if len(drv.cancelled) != 1 || drv.cancelled[0] != "g1" {
		t.Errorf("expected download g1 cancelled, got %v", drv.cancelled)
	}
}

func TestRun_AnchorScrapeFallback(t *testing.T) {
	drv := newFakeDriver()
	drv.onSubmit = func(d *fakeDriver) {
		d.mu.Lock()
		d.value = ""
		d.html = `<html><body><a class="download-link" href="https://cdn.example.com/a.zip">get</a></body></html>`
		d.mu.Unlock()
		d.downloads <- browser.DownloadStart{GUID: "g2"}
	}

	p := NewProcedure(drv, fastConfig(), nil)
	res := p.Run(context.Background(), "https://example.com/x")

	if !res.Success {
		t.Fatalf("extraction failed: %s", res.Error)
	}
	if res.GeneratedText != "https://cdn.example.com/a.zip" {
		t.Errorf("got %q", res.GeneratedText)
	}
}

func TestRun_NoTextGenerated(t *testing.T) {
	drv := newFakeDriver()
	drv.onSubmit = func(d *fakeDriver) {
		d.mu.Lock()
		d.value = ""
		d.html = "<html><body></body></html>"
		d.mu.Unlock()
		d.downloads <- browser.DownloadStart{GUID: "g3"}
	}

	p := NewProcedure(drv, fastConfig(), nil)
	res := p.Run(context.Background(), "https://example.com/x")

	if res.Success {
		t.Fatal("expected failure when nothing is generated")
	}
	if !strings.Contains(res.Error, "empty after settling") {
		t.Errorf("unexpected error: %s", res.Error)
	}
}

type fakePersister struct {
	persistPath string
	persistSize int64
	persistErr  error
	fetchCalled bool
	recorded    []string
}

func (f *fakePersister) PersistArtifact(ctx context.Context, tmpPath, fileName string, wantSize int64) (string, int64, error) {
	if f.persistErr != nil {
		return "", 0, f.persistErr
	}
	return f.persistPath, f.persistSize, nil
}

func (f *fakePersister) FetchLink(ctx context.Context, link string) (string, string, int64, error) {
	f.fetchCalled = true
	return f.persistPath, "fetched.bin", f.persistSize, nil
}

func (f *fakePersister) Record(sourceURL, link, path string, size int64) {
	f.recorded = append(f.recorded, sourceURL)
}

func TestRun_PersistsEngineArtifact(t *testing.T) {
	drv := newFakeDriver()
	drv.awaitPath = "/tmp/dl/guid-4"
	drv.awaitSize = 1024
	drv.onSubmit = func(d *fakeDriver) {
		d.setValue("https://cdn.example.com/a.zip")
		d.downloads <- browser.DownloadStart{GUID: "g4", SuggestedFilename: "a.zip"}
	}

	pers := &fakePersister{persistPath: "/out/a.zip", persistSize: 1024}
	cfg := fastConfig()
	cfg.PersistFile = true

	p := NewProcedure(drv, cfg, pers)
	res := p.Run(context.Background(), "https://example.com/x")

	if !res.Success {
		t.Fatalf("extraction failed: %s", res.Error)
	}
	if res.FilePath != "/out/a.zip" || res.FileName != "a.zip" || res.FileSize != 1024 {
		t.Errorf("artifact fields wrong: %+v", res)
	}
	if pers.fetchCalled {
		t.Error("engine artifact present; HTTP fetch must not run")
	}
	if len(pers.recorded) != 1 || pers.recorded[0] != "https://example.com/x" {
		t.Errorf("expected one journal record for the source URL, got %v", pers.recorded)
	}
}

func TestRun_FetchesLinkWithoutEngineArtifact(t *testing.T) {
	drv := newFakeDriver()
	drv.onSubmit = func(d *fakeDriver) {
		d.setValue("https://cdn.example.com/a.zip")
	}

	pers := &fakePersister{persistPath: "/out/fetched.bin", persistSize: 7}
	cfg := fastConfig()
	cfg.PersistFile = true

	p := NewProcedure(drv, cfg, pers)
	res := p.Run(context.Background(), "https://example.com/x")

	if !res.Success {
		t.Fatalf("extraction failed: %s", res.Error)
	}
	if !pers.fetchCalled {
		t.Error("expected HTTP fetch of the generated link")
	}
	if len(pers.recorded) != 1 {
		t.Errorf("expected one journal record, got %v", pers.recorded)
	}
}

func TestRun_SizeMismatchFails(t *testing.T) {
	drv := newFakeDriver()
	drv.awaitPath = "/tmp/dl/guid-5"
	drv.awaitSize = 2048
	drv.onSubmit = func(d *fakeDriver) {
		d.setValue("https://cdn.example.com/a.zip")
		d.downloads <- browser.DownloadStart{GUID: "g5", SuggestedFilename: "a.zip"}
	}

	pers := &fakePersister{persistErr: errors.New("size mismatch: expected 2048 bytes, got 17")}
	cfg := fastConfig()
	cfg.PersistFile = true

	p := NewProcedure(drv, cfg, pers)
	res := p.Run(context.Background(), "https://example.com/x")

	if res.Success {
		t.Fatal("expected size mismatch failure")
	}
	if !strings.Contains(res.Error, "failed to persist download") {
		t.Errorf("unexpected error: %s", res.Error)
	}
	if len(pers.recorded) != 0 {
		t.Errorf("failed persist must not be journaled, got %v", pers.recorded)
	}
}

// A successful persisted extraction through the real downloader must leave
// one entry in the journal file.
func TestRun_SuccessfulPersistJournaled(t *testing.T) {
	tmpDir := t.TempDir()
	artifact := filepath.Join(tmpDir, "engine-tmp")
	if err := os.WriteFile(artifact, []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}

	drv := newFakeDriver()
	drv.awaitPath = artifact
	drv.awaitSize = 10
	drv.onSubmit = func(d *fakeDriver) {
		d.setValue("https://cdn.example.com/a.zip")
		d.downloads <- browser.DownloadStart{GUID: "g6", SuggestedFilename: "a.zip"}
	}

	journal, err := downloader.NewJournal(filepath.Join(tmpDir, "downloads.log"))
	if err != nil {
		t.Fatal(err)
	}
	dl := downloader.NewDownloader(filepath.Join(tmpDir, "out"), time.Second, journal)

	cfg := fastConfig()
	cfg.PersistFile = true

	p := NewProcedure(drv, cfg, dl)
	res := p.Run(context.Background(), "https://example.com/x")

	if !res.Success {
		t.Fatalf("extraction failed: %s", res.Error)
	}

	entries, err := journal.Entries()
	if err != nil {
		t.Fatalf("reading journal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one journal entry, got %d", len(entries))
	}
	e := entries[0]
	if e.SourceURL != "https://example.com/x" {
		t.Errorf("journaled source URL %q", e.SourceURL)
	}
	if e.Link != "https://cdn.example.com/a.zip" {
		t.Errorf("journaled link %q", e.Link)
	}
	if e.FilePath != res.FilePath || e.FileSize != 10 {
		t.Errorf("journaled artifact %q (%d bytes), result %q", e.FilePath, e.FileSize, res.FilePath)
	}
}

func TestReset_ButtonStrategy(t *testing.T) {
	drv := newFakeDriver()
	drv.setValue("https://cdn.example.com/leftover.zip")

	p := NewProcedure(drv, fastConfig(), nil)
	if err := p.Reset(context.Background()); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if len(drv.clicked) != 1 || drv.clicked[0] != "#resetButton" {
		t.Errorf("expected reset button click, got %v", drv.clicked)
	}
	if v, _, _ := drv.InputValue(context.Background(), ".download-input"); v != "" {
		t.Errorf("value not cleared: %q", v)
	}
}

func TestReset_MissingButtonFails(t *testing.T) {
	drv := newFakeDriver()
	drv.resetVisible = false

	p := NewProcedure(drv, fastConfig(), nil)
	if err := p.Reset(context.Background()); err == nil {
		t.Fatal("expected failure when reset control is absent")
	}
}

func TestReset_ReloadStrategy(t *testing.T) {
	drv := newFakeDriver()

	cfg := fastConfig()
	cfg.Reset = models.ResetReload
	cfg.SurfaceURL = "https://stocip.com"

	p := NewProcedure(drv, cfg, nil)
	if err := p.Reset(context.Background()); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if len(drv.navigated) != 1 || drv.navigated[0] != "https://stocip.com" {
		t.Errorf("expected reload navigation, got %v", drv.navigated)
	}
}
