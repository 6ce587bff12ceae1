// Package manager drives game acquisitions: download, extract, normalize and
// register, retrying the whole attempt on failure and rolling back when the
// attempt budget runs out.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teamcutter/gportal/internal/domain"
	"github.com/teamcutter/gportal/internal/layout"
	"github.com/teamcutter/gportal/internal/progress"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 2 * time.Second
	DefaultEventBuffer = 64
)

type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	EventBuffer int
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	if o.EventBuffer < 1 {
		o.EventBuffer = DefaultEventBuffer
	}
	return o
}

type Manager struct {
	fetcher    domain.Fetcher
	extractor  domain.Extractor
	normalizer *layout.Normalizer
	staging    domain.Staging
	state      domain.State
	notifier   domain.InstallNotifier
	installDir string
	cheatsDir  string
	opts       Options
	logger     *slog.Logger
	hub        *progress.Hub

	mu     sync.Mutex
	active map[string]string
}

func New(
	fetcher domain.Fetcher,
	extractor domain.Extractor,
	normalizer *layout.Normalizer,
	staging domain.Staging,
	state domain.State,
	notifier domain.InstallNotifier,
	installDir, cheatsDir string,
	opts Options,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if normalizer == nil {
		normalizer = layout.New(logger)
	}
	opts = opts.withDefaults()

	return &Manager{
		fetcher:    fetcher,
		extractor:  extractor,
		normalizer: normalizer,
		staging:    staging,
		state:      state,
		notifier:   notifier,
		installDir: installDir,
		cheatsDir:  cheatsDir,
		opts:       opts,
		logger:     logger,
		hub:        progress.NewHub(opts.EventBuffer),
		active:     make(map[string]string),
	}
}

// Subscribe returns a stream that receives the events of every job until
// Close is called.
func (m *Manager) Subscribe() *progress.Stream {
	return m.hub.Subscribe()
}

func (m *Manager) Unsubscribe(s *progress.Stream) {
	m.hub.Unsubscribe(s)
}

// NewStream returns a per-job observer stream sized like the hub's.
func (m *Manager) NewStream() *progress.Stream {
	return progress.NewStream(m.opts.EventBuffer)
}

func (m *Manager) Close() {
	m.hub.Close()
}

type job struct {
	id          string
	entry       domain.CatalogEntry
	archivePath string
	installPath string
	cheatsPath  string
	cheatsOwned bool

	attempt      int
	attemptsLeft int
	state        domain.JobState
	received     int64
	total        int64
	lastProgress float64

	observers []*progress.Stream
	logger    *slog.Logger
}

// Acquire runs the acquisition of entry to completion and returns once it
// has succeeded or failed for good. Observers receive this job's events and
// are closed when Acquire returns.
func (m *Manager) Acquire(ctx context.Context, entry domain.CatalogEntry, observers ...*progress.Stream) (*domain.AcquisitionResult, error) {
	defer func() {
		for _, s := range observers {
			s.Close()
		}
	}()

	if !entry.Acquirable() {
		return nil, fmt.Errorf("%s: %w", entry.Title, domain.ErrNotAcquirable)
	}
	if err := domain.ValidateTitle(entry.Title); err != nil {
		return nil, fmt.Errorf("%q: %w", entry.Title, err)
	}

	j := m.newJob(entry, observers)
	if !m.claim(j) {
		return nil, fmt.Errorf("%s: %w", entry.Title, domain.ErrJobInProgress)
	}
	defer m.release(j)

	start := time.Now()
	j.logger.Info("acquisition started", "url", entry.DownloadURL, "attempts", j.attemptsLeft)

	game := &domain.InstalledGame{
		ID:         entry.ID,
		Title:      entry.Title,
		URL:        entry.DownloadURL,
		Path:       j.installPath,
		CheatsPath: j.cheatsPath,
	}
	if err := m.state.BeginInstall(game); err != nil {
		j.logger.Warn("failed to record pending install", "error", err)
	}

	var lastErr error
	for j.attemptsLeft > 0 {
		j.attempt++
		err := m.runAttempt(ctx, j)
		if err == nil {
			return m.finish(j, game, start), nil
		}

		lastErr = err
		j.attemptsLeft--
		j.logger.Warn("attempt failed", "attempt", j.attempt, "remaining", j.attemptsLeft, "error", err)

		if ctx.Err() != nil || j.attemptsLeft == 0 {
			break
		}

		j.state = domain.JobRetrying
		if err := sleep(ctx, m.opts.Backoff); err != nil {
			lastErr = err
			break
		}
	}

	if err := ctx.Err(); err != nil && !errors.Is(lastErr, err) {
		lastErr = fmt.Errorf("%w (last error: %v)", err, lastErr)
	}
	m.fail(j, lastErr)
	return nil, lastErr
}

func (m *Manager) newJob(entry domain.CatalogEntry, observers []*progress.Stream) *job {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	j := &job{
		id:           id.String(),
		entry:        entry,
		archivePath:  m.staging.ArchivePath(entry),
		installPath:  filepath.Join(m.installDir, entry.Title),
		cheatsPath:   filepath.Join(m.cheatsDir, entry.Title),
		attemptsLeft: m.opts.MaxAttempts,
		state:        domain.JobIdle,
		total:        -1,
		observers:    observers,
	}
	if _, err := os.Stat(j.cheatsPath); os.IsNotExist(err) {
		j.cheatsOwned = true
	}
	j.logger = m.logger.With("job", j.id, "game", entry.ID, "title", entry.Title)
	return j
}

// claim registers j as the only job for its id and title.
func (m *Manager) claim(j *job) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := jobKeys(j.entry)
	for _, k := range keys {
		if _, busy := m.active[k]; busy {
			return false
		}
	}
	for _, k := range keys {
		m.active[k] = j.id
	}
	return true
}

func (m *Manager) release(j *job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range jobKeys(j.entry) {
		if m.active[k] == j.id {
			delete(m.active, k)
		}
	}
}

func jobKeys(entry domain.CatalogEntry) []string {
	keys := []string{"title:" + entry.Title}
	if entry.ID != "" {
		keys = append(keys, "id:"+entry.ID)
	}
	return keys
}

// runAttempt is one pass of Downloading, Extracting and Normalizing. The
// install dir starts empty on every pass.
func (m *Manager) runAttempt(ctx context.Context, j *job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.RemoveAll(j.installPath); err != nil {
		return fmt.Errorf("failed to clear install directory: %w", err)
	}
	if err := os.MkdirAll(j.installPath, 0755); err != nil {
		return fmt.Errorf("failed to create install directory: %w", err)
	}

	j.state = domain.JobDownloading
	j.received = 0
	j.total = -1
	j.lastProgress = 0
	m.emit(j, domain.ProgressEvent{
		Status:     domain.StatusDownloading,
		Progress:   domain.ProgressUnknown,
		TotalBytes: -1,
	})

	res := m.fetcher.Fetch(ctx, j.entry.DownloadURL, j.archivePath, func(s domain.FetchSample) {
		m.emit(j, j.sample(s))
	})
	if res.Error != nil {
		return res.Error
	}
	j.received = res.Bytes
	if res.Total >= 0 {
		j.total = res.Total
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	j.state = domain.JobExtracting
	j.lastProgress = 100
	m.emit(j, domain.ProgressEvent{
		Status:          domain.StatusExtracting,
		Progress:        100,
		DownloadedBytes: j.received,
		TotalBytes:      j.total,
	})

	out, err := m.extractor.Extract(ctx, j.archivePath, j.installPath)
	if err != nil {
		return err
	}
	j.logger.Debug("archive extracted", "tool", out.Tool, "exit_code", out.ExitCode)

	if err := ctx.Err(); err != nil {
		return err
	}

	j.state = domain.JobNormalizing
	for _, r := range m.normalizer.Normalize(j.installPath, j.cheatsPath) {
		if r.Applied {
			j.logger.Info("layout fixed", "step", r.Step, "detail", r.Detail)
		}
	}

	return nil
}

// sample turns a fetcher sample into a downloading event. Known progress
// never goes backwards within an attempt and never passes 100.
func (j *job) sample(s domain.FetchSample) domain.ProgressEvent {
	j.received = s.Received
	j.total = s.Total

	pct := domain.ProgressUnknown
	if s.Total > 0 {
		pct = min(float64(s.Received)/float64(s.Total)*100, 100)
		pct = max(pct, j.lastProgress)
		j.lastProgress = pct
	}

	return domain.ProgressEvent{
		Status:          domain.StatusDownloading,
		Progress:        pct,
		DownloadedBytes: s.Received,
		TotalBytes:      s.Total,
		Speed:           s.Speed,
	}
}

func (m *Manager) finish(j *job, game *domain.InstalledGame, start time.Time) *domain.AcquisitionResult {
	if err := m.staging.Remove(j.archivePath); err != nil {
		j.logger.Warn("failed to remove archive", "path", j.archivePath, "error", err)
	}

	if _, err := os.Stat(j.cheatsPath); err != nil {
		game.CheatsPath = ""
	}
	game.Attempts = j.attempt
	game.InstalledAt = time.Now()
	if err := m.state.Add(game); err != nil {
		j.logger.Warn("failed to record install", "error", err)
	}

	if m.notifier != nil {
		m.notifier.InstalledChanged(j.entry.Title)
	}

	j.state = domain.JobComplete
	m.emit(j, domain.ProgressEvent{
		Status:          domain.StatusComplete,
		Progress:        100,
		DownloadedBytes: j.received,
		TotalBytes:      j.total,
	})

	elapsed := time.Since(start)
	j.logger.Info("acquisition complete", "attempts", j.attempt, "duration", elapsed)

	return &domain.AcquisitionResult{
		JobID:       j.id,
		GameID:      j.entry.ID,
		Title:       j.entry.Title,
		InstallPath: j.installPath,
		CheatsPath:  game.CheatsPath,
		Attempts:    j.attempt,
		RetriesUsed: j.attempt - 1,
		Duration:    elapsed,
	}
}

// fail rolls back everything the job left on disk and reports err as the
// terminal event.
func (m *Manager) fail(j *job, err error) {
	j.state = domain.JobFailed

	if rmErr := m.staging.Remove(j.archivePath); rmErr != nil {
		j.logger.Warn("failed to remove archive", "path", j.archivePath, "error", rmErr)
	}
	if rmErr := os.RemoveAll(j.installPath); rmErr != nil {
		j.logger.Warn("failed to remove install directory", "path", j.installPath, "error", rmErr)
	}
	if j.cheatsOwned {
		if rmErr := os.RemoveAll(j.cheatsPath); rmErr != nil {
			j.logger.Warn("failed to remove cheats directory", "path", j.cheatsPath, "error", rmErr)
		}
	}
	if rmErr := m.state.Remove(j.entry.Title); rmErr != nil {
		j.logger.Warn("failed to drop pending install", "error", rmErr)
	}

	if m.notifier != nil {
		m.notifier.InstalledChanged(j.entry.Title)
	}

	j.logger.Error("acquisition failed", "attempts", j.attempt, "error", err)
	m.emit(j, domain.ProgressEvent{
		Status:          domain.StatusError,
		Progress:        j.lastProgress,
		DownloadedBytes: j.received,
		TotalBytes:      j.total,
		Error:           err.Error(),
	})
}

func (m *Manager) emit(j *job, ev domain.ProgressEvent) {
	ev.JobID = j.id
	ev.GameID = j.entry.ID
	ev.Title = j.entry.Title
	ev.Attempt = j.attempt

	for _, s := range j.observers {
		s.Publish(ev)
	}
	m.hub.Publish(ev)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
