package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/teamcutter/gportal/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
    title        TEXT PRIMARY KEY,
    id           TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL,
    path         TEXT NOT NULL,
    cheats_path  TEXT NOT NULL DEFAULT '',
    attempts     INTEGER NOT NULL DEFAULT 0,
    installed_at TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'installed',
    owner_pid    INTEGER NOT NULL DEFAULT 0,
    owner_start  INTEGER NOT NULL DEFAULT 0
);
`

// ownerColumns are added to ledgers created before pending rows carried
// their owning process.
var ownerColumns = []string{"owner_pid", "owner_start"}

const (
	statusPending   = "pending"
	statusInstalled = "installed"
)

const selectColumns = `title, id, url, path, cheats_path, attempts, installed_at`

type SQLiteState struct {
	mu           sync.RWMutex
	db           *sql.DB
	dbPath       string
	manifestPath string
	logger       *slog.Logger
}

// NewSQLite opens the ledger at dbPath. On first use it imports an existing
// JSON manifest, and on every open it rolls back pending installs whose
// owning process has died.
func NewSQLite(dbPath, manifestPath string, logger *slog.Logger) (*SQLiteState, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &SQLiteState{
		db:           db,
		dbPath:       dbPath,
		manifestPath: manifestPath,
		logger:       logger,
	}

	if err := s.addOwnerColumns(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to upgrade schema: %w", err)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	if err := s.recover(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to recover: %w", err)
	}

	return s, nil
}

func (s *SQLiteState) addOwnerColumns() error {
	for _, col := range ownerColumns {
		var n int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('games') WHERE name = ?", col).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if _, err := s.db.Exec("ALTER TABLE games ADD COLUMN " + col + " INTEGER NOT NULL DEFAULT 0"); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteState) migrate() error {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM games").Scan(&count); err != nil {
		return err
	}
	if count > 0 || s.manifestPath == "" {
		return nil
	}

	data, err := os.ReadFile(s.manifestPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest domain.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(manifest.Games) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, game := range manifest.Games {
		if err := insertGame(tx, game, statusInstalled); err != nil {
			return fmt.Errorf("failed to insert %s: %w", game.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Info("imported json manifest", "path", s.manifestPath, "games", len(manifest.Games))
	return nil
}

// owner identifies a running process. The start time guards against a
// recycled pid.
type owner struct {
	pid   int32
	start int64
}

var self = sync.OnceValue(func() owner {
	o := owner{pid: int32(os.Getpid())}
	if p, err := process.NewProcess(o.pid); err == nil {
		o.start, _ = p.CreateTime()
	}
	return o
})

// ownerAlive reports whether the process that recorded a pending row is still
// running. Lookup errors count as alive so a live install is never removed.
var ownerAlive = func(o owner) bool {
	if o.pid <= 0 {
		return false
	}
	exists, err := process.PidExists(o.pid)
	if err != nil {
		return true
	}
	if !exists {
		return false
	}
	if o.start == 0 {
		return true
	}
	p, err := process.NewProcess(o.pid)
	if err != nil {
		return false
	}
	started, err := p.CreateTime()
	if err != nil {
		return true
	}
	return started == o.start
}

// recover rolls back pending rows whose owning process is gone. Rows owned by
// a live process belong to an install still in flight and are left alone.
func (s *SQLiteState) recover() error {
	rows, err := s.db.Query("SELECT title, path, cheats_path, owner_pid, owner_start FROM games WHERE status = ?", statusPending)
	if err != nil {
		return err
	}

	type pendingGame struct {
		title      string
		path       string
		cheatsPath string
		owner      owner
	}

	var pending []pendingGame
	for rows.Next() {
		var p pendingGame
		if err := rows.Scan(&p.title, &p.path, &p.cheatsPath, &p.owner.pid, &p.owner.start); err != nil {
			rows.Close()
			return err
		}
		pending = append(pending, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range pending {
		if ownerAlive(p.owner) {
			s.logger.Debug("install still in progress", "title", p.title, "pid", p.owner.pid)
			continue
		}

		s.logger.Warn("recovering from interrupted install", "title", p.title, "path", p.path)

		if p.path != "" {
			if err := os.RemoveAll(p.path); err != nil {
				s.logger.Warn("failed to remove install dir", "path", p.path, "error", err)
			}
		}
		if p.cheatsPath != "" {
			if err := os.RemoveAll(p.cheatsPath); err != nil {
				s.logger.Warn("failed to remove cheats dir", "path", p.cheatsPath, "error", err)
			}
		}

		if _, err := s.db.Exec("DELETE FROM games WHERE title = ? AND status = ?", p.title, statusPending); err != nil {
			return fmt.Errorf("failed to delete pending game %s: %w", p.title, err)
		}
	}

	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertGame(db execer, game *domain.InstalledGame, status string) error {
	installedAt := game.InstalledAt
	if installedAt.IsZero() {
		installedAt = time.Now()
	}

	var o owner
	if status == statusPending {
		o = self()
	}

	_, err := db.Exec(`
		INSERT OR REPLACE INTO games
		(title, id, url, path, cheats_path, attempts, installed_at, status, owner_pid, owner_start)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		game.Title, game.ID, game.URL, game.Path, game.CheatsPath, game.Attempts,
		installedAt.UTC().Format(time.RFC3339), status, o.pid, o.start)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(row scanner) (*domain.InstalledGame, error) {
	var game domain.InstalledGame
	var installedAt string

	if err := row.Scan(&game.Title, &game.ID, &game.URL, &game.Path,
		&game.CheatsPath, &game.Attempts, &installedAt); err != nil {
		return nil, err
	}
	game.InstalledAt, _ = time.Parse(time.RFC3339, installedAt)
	return &game, nil
}

func (s *SQLiteState) Load() (*domain.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	games, err := s.listInstalled()
	if err != nil {
		return nil, err
	}

	return &domain.Manifest{Games: games}, nil
}

func (s *SQLiteState) Save(m *domain.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM games WHERE status = ?", statusInstalled); err != nil {
		return err
	}

	for _, game := range m.Games {
		if err := insertGame(tx, game, statusInstalled); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return s.exportJSON()
}

// Get returns the installed record for title. Pending installs are invisible.
func (s *SQLiteState) Get(title string) (*domain.InstalledGame, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM games WHERE title = ? AND status = ?`,
		title, statusInstalled)
	game, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return game, true, nil
}

// BeginInstall records game as pending. The row turns into a real install
// only once Add is called for the same title.
func (s *SQLiteState) BeginInstall(game *domain.InstalledGame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return insertGame(s.db, game, statusPending)
}

func (s *SQLiteState) Add(game *domain.InstalledGame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := insertGame(s.db, game, statusInstalled); err != nil {
		return err
	}
	return s.exportJSON()
}

func (s *SQLiteState) Remove(title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM games WHERE title = ?", title); err != nil {
		return err
	}
	return s.exportJSON()
}

func (s *SQLiteState) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exportJSON()
}

func (s *SQLiteState) ListInstalled() (map[string]*domain.InstalledGame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listInstalled()
}

func (s *SQLiteState) listInstalled() (map[string]*domain.InstalledGame, error) {
	rows, err := s.db.Query(`SELECT `+selectColumns+` FROM games WHERE status = ?`, statusInstalled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	games := make(map[string]*domain.InstalledGame)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games[game.Title] = game
	}

	return games, rows.Err()
}

// exportJSON mirrors the installed rows into the manifest file so the ledger
// stays readable without sqlite tooling.
func (s *SQLiteState) exportJSON() error {
	if s.manifestPath == "" {
		return nil
	}

	games, err := s.listInstalled()
	if err != nil {
		return err
	}

	manifest := domain.Manifest{Games: games}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.manifestPath), 0755); err != nil {
		return err
	}

	return os.WriteFile(s.manifestPath, data, 0644)
}

func (s *SQLiteState) Close() error {
	return s.db.Close()
}
