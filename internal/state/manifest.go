package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/teamcutter/gportal/internal/domain"
)

// ManifestState keeps the ledger in a single JSON file. Pending installs live
// in memory only, so this backend cannot roll back after a crash.
type ManifestState struct {
	mu       sync.Mutex
	path     string
	manifest *domain.Manifest
	pending  map[string]*domain.InstalledGame
}

func New(path string) *ManifestState {
	return &ManifestState{
		path:    path,
		pending: make(map[string]*domain.InstalledGame),
	}
}

func (m *ManifestState) init() error {
	if m.manifest != nil {
		return nil
	}
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		m.manifest = domain.NewManifest()
		return nil
	}
	if err != nil {
		return err
	}

	var manifest domain.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return err
	}
	if manifest.Games == nil {
		manifest.Games = make(map[string]*domain.InstalledGame)
	}
	m.manifest = &manifest
	return nil
}

func (m *ManifestState) Load() (*domain.Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.init(); err != nil {
		return nil, err
	}
	return m.manifest, nil
}

func (m *ManifestState) Save(manifest *domain.Manifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifest = manifest
	return m.flush()
}

func (m *ManifestState) flush() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func (m *ManifestState) Get(title string) (*domain.InstalledGame, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.init(); err != nil {
		return nil, false, err
	}
	game, exists := m.manifest.Games[title]
	return game, exists, nil
}

func (m *ManifestState) BeginInstall(game *domain.InstalledGame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[game.Title] = game
	return nil
}

func (m *ManifestState) Add(game *domain.InstalledGame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.init(); err != nil {
		return err
	}
	delete(m.pending, game.Title)
	m.manifest.Games[game.Title] = game
	return m.flush()
}

func (m *ManifestState) ListInstalled() (map[string]*domain.InstalledGame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.init(); err != nil {
		return nil, err
	}
	out := make(map[string]*domain.InstalledGame, len(m.manifest.Games))
	for k, v := range m.manifest.Games {
		out[k] = v
	}
	return out, nil
}

func (m *ManifestState) Remove(title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.init(); err != nil {
		return err
	}
	delete(m.pending, title)
	delete(m.manifest.Games, title)
	return m.flush()
}
