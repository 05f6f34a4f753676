// internal/downloader/downloader.go
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Downloader persists generated artifacts to disk. It implements the
// extractor's Persister contract: moving browser-produced files into the
// output directory and fetching generated links over plain HTTP when the
// browser never produced one.
type Downloader struct {
	client    *http.Client
	outputDir string
	userAgent string
	journal   *Journal
}

// NewDownloader creates a Downloader writing into outputDir. The journal
// may be nil when no record of completed downloads is wanted.
func NewDownloader(outputDir string, timeout time.Duration, journal *Journal) *Downloader {
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Downloader{
		client:    client,
		outputDir: outputDir,
		userAgent: "Linkgen/1.0 (https://github.com/link-makers/linkgen)",
		journal:   journal,
	}
}

// OutputDir returns the directory artifacts are persisted into.
func (d *Downloader) OutputDir() string {
	return d.outputDir
}

// PersistArtifact moves a browser-produced file from its temporary path
// into the output directory under fileName. wantSize is the size the
// download engine reported; a mismatch after the move means the artifact
// is truncated and must not be kept.
func (d *Downloader) PersistArtifact(ctx context.Context, tmpPath, fileName string, wantSize int64) (string, int64, error) {
	if err := os.MkdirAll(d.outputDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	destPath := filepath.Join(d.outputDir, sanitizeFilename(fileName))

	if err := moveFile(tmpPath, destPath); err != nil {
		return "", 0, fmt.Errorf("failed to persist artifact: %w", err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat artifact: %w", err)
	}

	if wantSize > 0 && info.Size() != wantSize {
		os.Remove(destPath)
		return "", 0, fmt.Errorf("size mismatch: expected %d bytes, got %d", wantSize, info.Size())
	}

	log.Debug().
		Str("file", destPath).
		Int64("bytes", info.Size()).
		Msg("Artifact persisted")

	return destPath, info.Size(), nil
}

// FetchLink downloads the generated link over HTTP and streams it to the
// output directory. Used when the extraction surface hands back a link
// but the browser itself never started a download.
func (d *Downloader) FetchLink(ctx context.Context, link string) (string, string, int64, error) {
	start := time.Now()

	if _, err := url.Parse(link); err != nil {
		return "", "", 0, fmt.Errorf("invalid URL: %w", err)
	}

	if err := os.MkdirAll(d.outputDir, 0755); err != nil {
		return "", "", 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	fileName := sanitizeFilename(link)
	filePath := filepath.Join(d.outputDir, fileName)

	req, err := http.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", "", 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", 0, fmt.Errorf("bad status: %d %s", resp.StatusCode, resp.Status)
	}

	outFile, err := os.Create(filePath)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer outFile.Close()

	bytesWritten, err := io.Copy(outFile, resp.Body)
	if err != nil {
		os.Remove(filePath)
		return "", "", 0, fmt.Errorf("failed to write file: %w", err)
	}

	// Servers that declare Content-Length must deliver all of it.
	if resp.ContentLength > 0 && bytesWritten != resp.ContentLength {
		os.Remove(filePath)
		return "", "", 0, fmt.Errorf("size mismatch: expected %d bytes, got %d", resp.ContentLength, bytesWritten)
	}

	log.Debug().
		Str("url", link).
		Str("file", filePath).
		Int64("bytes", bytesWritten).
		Dur("duration", time.Since(start)).
		Msg("Link fetched")

	return filePath, fileName, bytesWritten, nil
}

// Record appends a completed download to the journal, if one is attached.
func (d *Downloader) Record(sourceURL, link, path string, size int64) {
	if d.journal == nil {
		return
	}
	if err := d.journal.Append(Entry{
		When:      time.Now(),
		SourceURL: sourceURL,
		Link:      link,
		FilePath:  path,
		FileSize:  size,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record download in journal")
	}
}

// moveFile renames across the common case and falls back to copy+remove
// when source and destination sit on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	return os.Remove(src)
}

// sanitizeFilename prevents path traversal attacks
func sanitizeFilename(input string) string {
	// Extract filename from URL
	var queryHash string
	if u, err := url.Parse(input); err == nil && u.Host != "" {
		parts := strings.Split(u.Path, "/")
		if len(parts) > 0 {
			input = parts[len(parts)-1]
		}
		if u.RawQuery != "" {
			queryHash = "_" + hashString(u.RawQuery)
		}
	}

	// Remove dangerous characters
	input = strings.ReplaceAll(input, "/", "_")
	input = strings.ReplaceAll(input, "\\", "_")
	input = strings.ReplaceAll(input, "..", "_")
	input = strings.ReplaceAll(input, ":", "_")
	input = strings.ReplaceAll(input, "*", "_")
	input = strings.ReplaceAll(input, "?", "_")
	input = strings.ReplaceAll(input, "\"", "_")
	input = strings.ReplaceAll(input, "<", "_")
	input = strings.ReplaceAll(input, ">", "_")
	input = strings.ReplaceAll(input, "|", "_")

	input = strings.TrimSpace(input)
	input = strings.Trim(input, ".")

	// Extract extension before appending query hash
	ext := filepath.Ext(input)
	stem := strings.TrimSuffix(input, ext)

	// Append query hash before extension
	if queryHash != "" {
		input = stem + queryHash + ext
	}

	if input == "" {
		input = fmt.Sprintf("download_%d", time.Now().Unix())
	}
	if len(input) > 200 {
		input = input[:200]
	}

	return input
}

// hashString creates a simple hash for unique filenames
func hashString(s string) string {
	hash := 0
	for _, c := range s {
		hash = ((hash << 5) - hash) + int(c)
	}
	if hash < 0 {
		hash = -hash
	}
	return fmt.Sprintf("%x", hash)[:8]
}
