package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teamcutter/gportal/internal/domain"
	"github.com/teamcutter/gportal/internal/logging"
)

func game(title, path string) *domain.InstalledGame {
	return &domain.InstalledGame{
		ID:          title + "-id",
		Title:       title,
		URL:         "https://cdn.example.com/" + title + ".zip",
		Path:        path,
		CheatsPath:  path + "-cheats",
		Attempts:    1,
		InstalledAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func backends(t *testing.T) map[string]domain.State {
	t.Helper()
	dir := t.TempDir()

	sq, err := NewSQLite(filepath.Join(dir, "state.db"), filepath.Join(dir, "sqlite-manifest.json"), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sq.Close() })

	return map[string]domain.State{
		"sqlite": sq,
		"json":   New(filepath.Join(dir, "manifest.json")),
	}
}

func TestLedgerLifecycle(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			g := game("Foo", "/games/Foo")

			if err := st.BeginInstall(g); err != nil {
				t.Fatal(err)
			}
			if _, ok, err := st.Get("Foo"); err != nil || ok {
				t.Errorf("pending install should be invisible, ok=%v err=%v", ok, err)
			}

			if err := st.Add(g); err != nil {
				t.Fatal(err)
			}
			got, ok, err := st.Get("Foo")
			if err != nil || !ok {
				t.Fatalf("Get() ok=%v err=%v", ok, err)
			}
			if got.ID != g.ID || got.Path != g.Path || got.CheatsPath != g.CheatsPath || !got.InstalledAt.Equal(g.InstalledAt) {
				t.Errorf("Get() = %+v, want %+v", got, g)
			}

			st.Add(game("Bar", "/games/Bar"))
			all, err := st.ListInstalled()
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 2 || all["Foo"] == nil || all["Bar"] == nil {
				t.Errorf("ListInstalled() = %v", all)
			}

			if err := st.Remove("Foo"); err != nil {
				t.Fatal(err)
			}
			if err := st.Remove("Foo"); err != nil {
				t.Errorf("second Remove should succeed, got %v", err)
			}
			if _, ok, _ := st.Get("Foo"); ok {
				t.Error("Foo still present after Remove")
			}

			m, err := st.Load()
			if err != nil {
				t.Fatal(err)
			}
			if len(m.Games) != 1 {
				t.Errorf("Load() has %d games, want 1", len(m.Games))
			}
		})
	}
}

func TestSQLiteRecoversPendingInstalls(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	installDir := filepath.Join(dir, "games", "Foo")
	if err := os.MkdirAll(installDir, 0755); err != nil {
		t.Fatal(err)
	}

	st, err := NewSQLite(dbPath, "", logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.BeginInstall(game("Foo", installDir)); err != nil {
		t.Fatal(err)
	}
	if err := st.Add(game("Bar", filepath.Join(dir, "games", "Bar"))); err != nil {
		t.Fatal(err)
	}
	// the process that began the install is gone
	if _, err := st.db.Exec("UPDATE games SET owner_pid = 0, owner_start = 0 WHERE title = 'Foo'"); err != nil {
		t.Fatal(err)
	}
	st.Close()

	reopened, err := NewSQLite(dbPath, "", logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if _, err := os.Stat(installDir); !os.IsNotExist(err) {
		t.Error("pending install dir should be removed on recovery")
	}
	all, _ := reopened.ListInstalled()
	if len(all) != 1 || all["Bar"] == nil {
		t.Errorf("ListInstalled() after recovery = %v", all)
	}

	var count int
	reopened.db.QueryRow("SELECT COUNT(*) FROM games WHERE status = 'pending'").Scan(&count)
	if count != 0 {
		t.Errorf("%d pending rows left", count)
	}
}

func TestSQLiteKeepsInstallsOfLiveProcess(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	installDir := filepath.Join(dir, "games", "Foo")
	if err := os.MkdirAll(installDir, 0755); err != nil {
		t.Fatal(err)
	}

	installing, err := NewSQLite(dbPath, "", logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer installing.Close()
	if err := installing.BeginInstall(game("Foo", installDir)); err != nil {
		t.Fatal(err)
	}

	// a second command opening the ledger while the install runs
	other, err := NewSQLite(dbPath, "", logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	other.Close()

	if _, err := os.Stat(installDir); err != nil {
		t.Fatalf("install dir of running install was removed: %v", err)
	}

	if err := installing.Add(game("Foo", installDir)); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := installing.Get("Foo"); !ok {
		t.Error("Foo should be installed after Add")
	}
}

func TestOwnerAlive(t *testing.T) {
	me := self()

	tests := []struct {
		name  string
		owner owner
		want  bool
	}{
		{name: "current_process", owner: me, want: true},
		{name: "no_owner", owner: owner{}, want: false},
		{name: "negative_pid", owner: owner{pid: -1}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ownerAlive(tt.owner); got != tt.want {
				t.Errorf("ownerAlive(%+v) = %v, want %v", tt.owner, got, tt.want)
			}
		})
	}

	if me.start != 0 {
		recycled := owner{pid: me.pid, start: me.start + 1}
		if ownerAlive(recycled) {
			t.Errorf("ownerAlive(%+v) = true for a recycled pid", recycled)
		}
	}
}

func TestSQLiteAddsOwnerColumns(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")

	st, err := NewSQLite(dbPath, "", logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	for _, col := range ownerColumns {
		if _, err := st.db.Exec("ALTER TABLE games DROP COLUMN " + col); err != nil {
			t.Fatal(err)
		}
	}
	st.Close()

	reopened, err := NewSQLite(dbPath, "", logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if err := reopened.BeginInstall(game("Foo", filepath.Join(dir, "games", "Foo"))); err != nil {
		t.Fatalf("BeginInstall on upgraded ledger: %v", err)
	}
}

func TestSQLiteMigratesManifest(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")

	m := domain.NewManifest()
	m.Games["Foo"] = game("Foo", "/games/Foo")
	data, _ := json.Marshal(m)
	if err := os.WriteFile(manifestPath, data, 0644); err != nil {
		t.Fatal(err)
	}

	st, err := NewSQLite(filepath.Join(dir, "state.db"), manifestPath, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	if _, ok, _ := st.Get("Foo"); !ok {
		t.Error("manifest entry was not imported")
	}
}

func TestSQLiteExportsManifest(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")

	st, err := NewSQLite(filepath.Join(dir, "state.db"), manifestPath, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	st.BeginInstall(game("Pending", "/games/Pending"))
	if err := st.Add(game("Foo", "/games/Foo")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		t.Fatal(err)
	}
	var m domain.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if len(m.Games) != 1 || m.Games["Foo"] == nil {
		t.Errorf("exported manifest = %v, want only Foo", m.Games)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		backend string
		wantErr bool
	}{
		{backend: BackendSQLite},
		{backend: BackendJSON},
		{backend: ""},
		{backend: "postgres", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			sub := filepath.Join(dir, tt.backend+"x")
			st, closeFn, err := Open(tt.backend, filepath.Join(sub, "state.db"), filepath.Join(sub, "manifest.json"), logging.Discard())
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer closeFn()
			if _, err := st.ListInstalled(); err != nil {
				t.Error(err)
			}
		})
	}
}
