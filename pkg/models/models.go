package models

import "time"

// ExtractionResult represents the outcome of submitting one source URL to
// the extraction surface.
type ExtractionResult struct {
	URL           string        `json:"url"`
	Success       bool          `json:"success"`
	GeneratedText string        `json:"generatedText,omitempty"`
	Error         string        `json:"error,omitempty"`
	Code          string        `json:"code,omitempty"`
	FilePath      string        `json:"filePath,omitempty"`
	FileName      string        `json:"fileName,omitempty"`
	FileSize      int64         `json:"fileSize,omitempty"`
	StartedAt     time.Time     `json:"-"`
	Duration      time.Duration `json:"-"`
}

// URLStatus is the lifecycle state of one URL inside a batch.
type URLStatus string

const (
	StatusDownloading URLStatus = "downloading"
	StatusCompleted   URLStatus = "completed"
	StatusFailed      URLStatus = "failed"
)

// Terminal reports whether the status will no longer change.
func (s URLStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// URLState is the per-URL entry in a batch status map.
type URLState struct {
	Status        URLStatus `json:"status"`
	GeneratedText string    `json:"generatedText,omitempty"`
	Error         string    `json:"error,omitempty"`
	FilePath      string    `json:"filePath,omitempty"`
	FileName      string    `json:"fileName,omitempty"`
	FileSize      int64     `json:"fileSize,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// BatchJob is a named collection of URL states created by one batch
// submission. Entries are keyed by source URL; a later write for a URL
// overwrites the earlier one.
type BatchJob struct {
	ID          string              `json:"batchId"`
	Status      map[string]URLState `json:"status"`
	CreatedAt   time.Time           `json:"createdAt"`
	CompletedAt time.Time           `json:"completedAt,omitzero"`
}

// IsCompleted reports whether every entry has reached a terminal status.
func (j *BatchJob) IsCompleted() bool {
	if len(j.Status) == 0 {
		return false
	}
	for _, st := range j.Status {
		if !st.Status.Terminal() {
			return false
		}
	}
	return true
}

// Cookie is a browser cookie captured from or restored into an
// authenticated browsing context.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// ResetStrategy selects how the extraction surface is returned to a clean
// state between batch items.
type ResetStrategy string

const (
	// ResetReload navigates the page back to the extraction surface.
	ResetReload ResetStrategy = "reload"
	// ResetButton clicks the surface's reset control and waits for the
	// form to re-settle.
	ResetButton ResetStrategy = "button"
	// ResetNone performs no explicit reset between items.
	ResetNone ResetStrategy = "none"
)
