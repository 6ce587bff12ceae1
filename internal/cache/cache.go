// Package cache owns the staging directory where archives sit between
// download and extraction.
package cache

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/teamcutter/gportal/internal/domain"
)

const defaultExt = ".zip"

type DiskCache struct {
	sync.RWMutex
	dir string
}

func New(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) Dir() string {
	return c.dir
}

// ArchivePath is where the archive for entry is downloaded to. The extension
// comes from the download URL so the builtin extractor can pick a format.
func (c *DiskCache) ArchivePath(entry domain.CatalogEntry) string {
	return filepath.Join(c.dir, stagingName(entry)+archiveExt(entry.DownloadURL))
}

func (c *DiskCache) Has(entry domain.CatalogEntry) bool {
	c.RLock()
	defer c.RUnlock()
	_, err := os.Stat(c.ArchivePath(entry))
	return err == nil
}

// Remove deletes a staged archive. A missing file is not an error.
func (c *DiskCache) Remove(path string) error {
	c.Lock()
	defer c.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Leftovers lists archives still sitting in the staging dir, usually from
// interrupted runs.
func (c *DiskCache) Leftovers() ([]string, error) {
	c.RLock()
	defer c.RUnlock()

	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, filepath.Join(c.dir, e.Name()))
		}
	}
	return out, nil
}

func (c *DiskCache) Size() (int64, error) {
	c.RLock()
	defer c.RUnlock()

	var size int64

	err := filepath.Walk(c.dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}

	return size, err
}

func (c *DiskCache) Clear() error {
	c.Lock()
	defer c.Unlock()

	if err := os.RemoveAll(c.dir); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0755)
}

func stagingName(entry domain.CatalogEntry) string {
	name := entry.ID
	if name == "" {
		name = entry.Title
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, name)
}

func archiveExt(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}

	if ext := domain.ArchiveExt(p); ext != "" {
		return ext
	}
	return defaultExt
}
