// Package library answers what is installed and acts on installed games.
// The install root on disk is the source of truth; the ledger only adds
// metadata.
package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/teamcutter/gportal/internal/domain"
)

const CheatsheetFile = "guide.md"

type Library struct {
	installRoot string
	cheatRoot   string
	state       domain.State
	opener      Opener
	suffix      string
	logger      *slog.Logger

	mu     sync.Mutex
	cached map[string]struct{}
}

func New(installRoot, cheatRoot string, state domain.State, opener Opener, suffix string, logger *slog.Logger) *Library {
	if suffix == "" {
		suffix = domain.ExecutableSuffix()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{
		installRoot: installRoot,
		cheatRoot:   cheatRoot,
		state:       state,
		opener:      opener,
		suffix:      suffix,
		logger:      logger,
	}
}

func (l *Library) InstallRoot() string { return l.installRoot }

// InstalledChanged drops the cached listing.
func (l *Library) InstalledChanged(title string) {
	l.mu.Lock()
	l.cached = nil
	l.mu.Unlock()
	l.logger.Debug("installed set changed", "title", title)
}

// ListInstalled returns the titles that have a directory under the install
// root. The root is created on first use.
func (l *Library) ListInstalled() (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil {
		return cloneSet(l.cached), nil
	}

	if err := os.MkdirAll(l.installRoot, 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRegistryIO, err)
	}

	entries, err := os.ReadDir(l.installRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRegistryIO, err)
	}

	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			set[e.Name()] = struct{}{}
		}
	}

	l.cached = set
	return cloneSet(set), nil
}

// Titles is ListInstalled in sorted order.
func (l *Library) Titles() ([]string, error) {
	set, err := l.ListInstalled()
	if err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(set))
	for t := range set {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles, nil
}

// Record returns the ledger entry for an installed title, if any.
func (l *Library) Record(title string) (*domain.InstalledGame, bool) {
	if l.state == nil {
		return nil, false
	}
	game, ok, err := l.state.Get(title)
	if err != nil {
		l.logger.Warn("ledger lookup failed", "title", title, "error", err)
		return nil, false
	}
	return game, ok
}

// Delete removes the install and cheat directories of title. Deleting a
// title that is not installed succeeds.
func (l *Library) Delete(title string) error {
	if err := domain.ValidateTitle(title); err != nil {
		return fmt.Errorf("%q: %w", title, err)
	}
	defer l.InstalledChanged(title)

	if err := os.RemoveAll(filepath.Join(l.installRoot, title)); err != nil {
		return fmt.Errorf("%w: removing %s: %w", domain.ErrRegistryIO, title, err)
	}
	if err := os.RemoveAll(filepath.Join(l.cheatRoot, title)); err != nil {
		return fmt.Errorf("%w: removing cheats for %s: %w", domain.ErrRegistryIO, title, err)
	}

	if l.state != nil {
		if err := l.state.Remove(title); err != nil {
			l.logger.Warn("failed to drop ledger entry", "title", title, "error", err)
		}
	}

	l.logger.Info("game deleted", "title", title)
	return nil
}

// Launch opens the executable of title and returns its path. When
// executablePath is empty or missing, the first entry with the platform
// executable suffix is used instead.
func (l *Library) Launch(ctx context.Context, title, executablePath string) (string, error) {
	path, err := l.Executable(title, executablePath)
	if err != nil {
		return "", err
	}

	if l.opener == nil {
		return "", fmt.Errorf("no launcher configured")
	}
	if err := l.opener.Open(ctx, path); err != nil {
		return "", fmt.Errorf("launching %s: %w", title, err)
	}

	l.logger.Info("game launched", "title", title, "path", path)
	return path, nil
}

// Executable resolves the file Launch would open.
func (l *Library) Executable(title, executablePath string) (string, error) {
	if err := domain.ValidateTitle(title); err != nil {
		return "", fmt.Errorf("%q: %w", title, err)
	}
	dir := filepath.Join(l.installRoot, title)

	if executablePath != "" {
		p := filepath.Join(dir, filepath.FromSlash(executablePath))
		if strings.HasPrefix(p, dir+string(os.PathSeparator)) {
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
		l.logger.Debug("recorded executable missing, scanning", "title", title, "path", executablePath)
	}

	found, err := l.scan(dir)
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("%s: %w", title, domain.ErrExecutableNotFound)
	}
	return found, nil
}

func (l *Library) scan(dir string) (string, error) {
	suffix := strings.ToLower(l.suffix)

	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if path == dir {
			return nil
		}

		if strings.HasSuffix(strings.ToLower(d.Name()), suffix) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrRegistryIO, err)
	}
	return found, nil
}

// Cheatsheet returns the cheat guide bundled with title.
func (l *Library) Cheatsheet(title string) (string, error) {
	if err := domain.ValidateTitle(title); err != nil {
		return "", fmt.Errorf("%q: %w", title, err)
	}

	data, err := os.ReadFile(filepath.Join(l.cheatRoot, title, CheatsheetFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", title, domain.ErrCheatsheetNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrRegistryIO, err)
	}
	return string(data), nil
}

type Usage struct {
	Path        string
	Fstype      string
	Total       uint64
	Free        uint64
	Used        uint64
	UsedPercent float64
	Games       map[string]int64
}

// Usage reports free space on the volume holding the install root and the
// bytes taken by each installed title.
func (l *Library) Usage(ctx context.Context) (*Usage, error) {
	titles, err := l.ListInstalled()
	if err != nil {
		return nil, err
	}

	stat, err := disk.UsageWithContext(ctx, l.installRoot)
	if err != nil {
		return nil, fmt.Errorf("disk usage of %s: %w", l.installRoot, err)
	}

	u := &Usage{
		Path:        stat.Path,
		Fstype:      stat.Fstype,
		Total:       stat.Total,
		Free:        stat.Free,
		Used:        stat.Used,
		UsedPercent: stat.UsedPercent,
		Games:       make(map[string]int64, len(titles)),
	}

	for title := range titles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		size, err := dirSize(filepath.Join(l.installRoot, title))
		if err != nil {
			l.logger.Warn("failed to size game", "title", title, "error", err)
			continue
		}
		u.Games[title] = size
	}

	return u, nil
}

func dirSize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			size += info.Size()
		}
		return nil
	})
	return size, err
}

func cloneSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}
