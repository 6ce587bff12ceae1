package domain

import (
	"context"
)

type Fetcher interface {
	Fetch(ctx context.Context, url, dst string, onSample func(FetchSample)) FetchResult
}

type Extractor interface {
	Extract(ctx context.Context, archive, dest string) (ExtractResult, error)
}

type Staging interface {
	ArchivePath(entry CatalogEntry) string
	Remove(path string) error
	Size() (int64, error)
	Clear() error
}

type State interface {
	Load() (*Manifest, error)
	Save(m *Manifest) error
	BeginInstall(game *InstalledGame) error
	Add(game *InstalledGame) error
	Get(title string) (*InstalledGame, bool, error)
	Remove(title string) error
	ListInstalled() (map[string]*InstalledGame, error)
}

// InstallNotifier is told when the set of installed games changed on disk.
type InstallNotifier interface {
	InstalledChanged(title string)
}

type Catalog interface {
	Entries() []CatalogEntry
	Get(id string) (CatalogEntry, bool)
	Find(query string) (CatalogEntry, error)
	Search(query string) []CatalogEntry
}
