// Package catalog loads the list of games gportal knows about.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/teamcutter/gportal/internal/domain"
)

const (
	cacheFileName = "games.json"
	defaultTTL    = 10 * time.Minute
)

// Where the loaded entries came from.
const (
	SourceNone       = "none"
	SourceFile       = "file"
	SourceCache      = "cache"
	SourceRemote     = "remote"
	SourceStaleCache = "stale-cache"
)

type Options struct {
	URL       string
	File      string
	CacheDir  string
	TTL       time.Duration
	UserAgent string
	Client    *http.Client
}

type Store struct {
	sync.RWMutex
	opts    Options
	logger  *slog.Logger
	entries []domain.CatalogEntry
	byID    map[string]int
	source  string
}

func New(opts Options, logger *slog.Logger) *Store {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "gportal"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		opts:   opts,
		logger: logger,
		byID:   make(map[string]int),
		source: SourceNone,
	}
}

// Load fills the store. A local catalog file wins; otherwise the remote
// catalog is used through a TTL disk cache, falling back to a stale cache
// and finally to an empty catalog. Load only fails on a cancelled ctx.
func (s *Store) Load(ctx context.Context) error {
	if entries, err := s.readFile(s.opts.File); err == nil {
		s.set(entries, SourceFile)
		return nil
	} else if s.opts.File != "" && !os.IsNotExist(err) {
		s.logger.Warn("local catalog unreadable, trying remote", "file", s.opts.File, "error", err)
	}

	if data, ok := s.getFromCache(s.opts.TTL); ok {
		if entries, err := decodeCatalog(bytes.NewReader(data)); err == nil {
			s.set(entries, SourceCache)
			return nil
		}
	}

	entries, err := s.fetchRemote(ctx)
	if err == nil {
		s.set(entries, SourceRemote)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.logger.Error("failed to fetch remote catalog", "url", s.opts.URL, "error", err)

	if data, ok := s.getFromCache(0); ok {
		if entries, err := decodeCatalog(bytes.NewReader(data)); err == nil {
			s.logger.Warn("using stale catalog cache")
			s.set(entries, SourceStaleCache)
			return nil
		}
	}

	s.set(nil, SourceNone)
	return nil
}

func (s *Store) set(entries []domain.CatalogEntry, source string) {
	s.Lock()
	defer s.Unlock()

	s.entries = entries
	s.source = source
	s.byID = make(map[string]int, len(entries))
	for i, e := range entries {
		if _, dup := s.byID[e.ID]; !dup {
			s.byID[e.ID] = i
		}
	}
	s.logger.Info("catalog loaded", "source", source, "games", len(entries))
}

func (s *Store) Source() string {
	s.RLock()
	defer s.RUnlock()
	return s.source
}

func (s *Store) Entries() []domain.CatalogEntry {
	s.RLock()
	defer s.RUnlock()

	out := make([]domain.CatalogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store) Get(id string) (domain.CatalogEntry, bool) {
	s.RLock()
	defer s.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return domain.CatalogEntry{}, false
	}
	return s.entries[i], true
}

// Find looks a game up by id, then by case-insensitive title.
func (s *Store) Find(query string) (domain.CatalogEntry, error) {
	if e, ok := s.Get(query); ok {
		return e, nil
	}

	s.RLock()
	defer s.RUnlock()
	for _, e := range s.entries {
		if strings.EqualFold(e.Title, query) {
			return e, nil
		}
	}
	return domain.CatalogEntry{}, fmt.Errorf("%q: %w", query, domain.ErrNotFound)
}

// Search ranks titles by fuzzy distance to query. An empty query returns the
// whole catalog.
func (s *Store) Search(query string) []domain.CatalogEntry {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.Entries()
	}

	s.RLock()
	defer s.RUnlock()

	titles := make([]string, len(s.entries))
	for i, e := range s.entries {
		titles[i] = e.Title
	}

	ranks := fuzzy.RankFindFold(query, titles)
	sort.Stable(ranks)

	out := make([]domain.CatalogEntry, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, s.entries[r.OriginalIndex])
	}
	return out
}

func (s *Store) readFile(path string) ([]domain.CatalogEntry, error) {
	if path == "" {
		return nil, os.ErrNotExist
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeCatalog(f)
}

func (s *Store) fetchRemote(ctx context.Context) ([]domain.CatalogEntry, error) {
	if s.opts.URL == "" {
		return nil, fmt.Errorf("no catalog url configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)

	resp, err := s.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	reader := io.TeeReader(resp.Body, &buf)

	entries, err := decodeCatalog(reader)
	if err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if err := s.storeToCache(buf.Bytes()); err != nil {
		s.logger.Warn("failed to cache catalog", "error", err)
	}
	return entries, nil
}

// decodeCatalog streams a JSON array of entries.
func decodeCatalog(r io.Reader) ([]domain.CatalogEntry, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("catalog must be a JSON array")
	}

	var entries []domain.CatalogEntry
	for dec.More() {
		var e domain.CatalogEntry
		if err := dec.Decode(&e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}

// getFromCache returns the cached catalog if it is younger than ttl. A zero
// ttl accepts any age.
func (s *Store) getFromCache(ttl time.Duration) ([]byte, bool) {
	if s.opts.CacheDir == "" {
		return nil, false
	}

	path := filepath.Join(s.opts.CacheDir, cacheFileName)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}

	if ttl > 0 && time.Since(info.ModTime()) > ttl {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	return data, true
}

func (s *Store) storeToCache(data []byte) error {
	if s.opts.CacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.opts.CacheDir, 0755); err != nil {
		return err
	}

	path := filepath.Join(s.opts.CacheDir, cacheFileName)
	return os.WriteFile(path, data, 0644)
}

// Invalidate drops the cached remote catalog so the next Load refetches it.
func (s *Store) Invalidate() error {
	if s.opts.CacheDir == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.opts.CacheDir, cacheFileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
