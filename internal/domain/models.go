package domain

import (
	"path/filepath"
	"strings"
	"time"
)

type CatalogEntry struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	DownloadURL    string `json:"downloadUrl,omitempty"`
	Icon           string `json:"icon,omitempty"`
	ExecutablePath string `json:"executablePath,omitempty"`
}

func (e CatalogEntry) Acquirable() bool {
	return strings.TrimSpace(e.DownloadURL) != ""
}

// ValidateTitle reports whether title can be used as a single visible
// directory name under the install and cheat roots. Hidden names are
// rejected because the installed set skips dot directories.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" || strings.HasPrefix(title, ".") {
		return ErrInvalidTitle
	}
	if strings.ContainsAny(title, `/\`) || filepath.Base(title) != title {
		return ErrInvalidTitle
	}
	return nil
}

type Status string

const (
	StatusDownloading Status = "downloading"
	StatusExtracting  Status = "extracting"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
)

func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

type JobState string

const (
	JobIdle        JobState = "idle"
	JobDownloading JobState = "downloading"
	JobExtracting  JobState = "extracting"
	JobNormalizing JobState = "normalizing"
	JobRetrying    JobState = "retrying"
	JobComplete    JobState = "complete"
	JobFailed      JobState = "failed"
)

// ProgressUnknown is reported as Progress when the server sent no length.
const ProgressUnknown = -1.0

type ProgressEvent struct {
	JobID           string  `json:"jobId"`
	GameID          string  `json:"gameId"`
	Title           string  `json:"title"`
	Status          Status  `json:"status"`
	Progress        float64 `json:"progress"`
	DownloadedBytes int64   `json:"downloadedBytes"`
	TotalBytes      int64   `json:"totalBytes"`
	Speed           float64 `json:"downloadSpeed"`
	Attempt         int     `json:"attempt"`
	Error           string  `json:"error,omitempty"`
}

func (e ProgressEvent) ProgressKnown() bool {
	return e.Progress >= 0
}

type FetchSample struct {
	Received int64
	Total    int64
	Speed    float64
}

type FetchResult struct {
	URL   string
	Path  string
	Bytes int64
	Total int64
	Error error
}

type ExtractResult struct {
	Tool     string
	ExitCode int
	Output   string
}

type AcquisitionResult struct {
	JobID       string
	GameID      string
	Title       string
	InstallPath string
	CheatsPath  string
	Attempts    int
	RetriesUsed int
	Duration    time.Duration
}

type InstalledGame struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Path        string    `json:"path"`
	CheatsPath  string    `json:"cheats_path"`
	Attempts    int       `json:"attempts"`
	InstalledAt time.Time `json:"installed_at"`
}

type Manifest struct {
	Games map[string]*InstalledGame `json:"games"`
}

func NewManifest() *Manifest {
	return &Manifest{Games: make(map[string]*InstalledGame)}
}
