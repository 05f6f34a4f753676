// internal/downloader/journal.go
package downloader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one completed download in the journal.
type Entry struct {
	When      time.Time `json:"when"`
	SourceURL string    `json:"sourceUrl"`
	Link      string    `json:"link"`
	FilePath  string    `json:"filePath"`
	FileSize  int64     `json:"fileSize"`
}

// Journal is an append-only record of completed downloads, one JSON
// object per line. It survives restarts; readers can tail it or parse
// it line by line.
type Journal struct {
	mu   sync.Mutex
	path string
}

// NewJournal opens a journal at path, creating parent directories as
// needed.
func NewJournal(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	return &Journal{path: path}, nil
}

// Append writes one entry. The file is opened per call so an external
// rotation never strands an open handle.
func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	return nil
}

// Entries reads every entry currently in the journal. A missing file is
// an empty journal, not an error.
func (j *Journal) Entries() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	var entries []Entry
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return entries, fmt.Errorf("corrupt journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
