package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	envHome        = "GPORTAL_HOME"
	configFileName = "config.toml"
)

type Config struct {
	BaseDir      string `toml:"base_dir"`
	InstallDir   string `toml:"install_dir"`
	CheatsDir    string `toml:"cheats_dir"`
	DownloadDir  string `toml:"download_dir"`
	CacheDir     string `toml:"cache_dir"`
	StateFile    string `toml:"state_file"`
	ManifestFile string `toml:"manifest_file"`
	StateBackend string `toml:"state_backend"`

	CatalogURL  string   `toml:"catalog_url"`
	CatalogFile string   `toml:"catalog_file"`
	CatalogTTL  Duration `toml:"catalog_ttl"`

	EventsBuffer int `toml:"events_buffer"`
	MaxParallel  int `toml:"max_parallel"`

	Download Download `toml:"download"`
	Archiver Archiver `toml:"archiver"`
	Launcher Launcher `toml:"launcher"`
	Log      Log      `toml:"log"`
}

type Download struct {
	MaxAttempts      int      `toml:"max_attempts"`
	Backoff          Duration `toml:"backoff"`
	ProgressInterval Duration `toml:"progress_interval"`
	Timeout          Duration `toml:"timeout"`
	UserAgent        string   `toml:"user_agent"`
}

type Archiver struct {
	Tool    string   `toml:"tool"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Timeout Duration `toml:"timeout"`
}

type Launcher struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Suffix  string   `toml:"suffix"`
}

type Log struct {
	File  string `toml:"file"`
	Level string `toml:"level"`
}

// Duration is a time.Duration stored as a string ("2s", "10m") in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func BaseDir() string {
	if dir := os.Getenv(envHome); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gportal")
}

func DefaultConfig() *Config {
	base := BaseDir()

	return &Config{
		BaseDir:      base,
		InstallDir:   filepath.Join(base, "games"),
		CheatsDir:    filepath.Join(base, "cheatsheets"),
		DownloadDir:  filepath.Join(base, "downloads"),
		CacheDir:     filepath.Join(base, "cache"),
		StateFile:    filepath.Join(base, "state.db"),
		ManifestFile: filepath.Join(base, "installed.json"),
		StateBackend: "sqlite",
		CatalogURL:   "https://raw.githubusercontent.com/LottieVixen/GamePortal/main/games.json",
		CatalogFile:  filepath.Join(base, "games.json"),
		CatalogTTL:   Duration{10 * time.Minute},
		EventsBuffer: 64,
		MaxParallel:  2,
		Download: Download{
			MaxAttempts:      3,
			Backoff:          Duration{2 * time.Second},
			ProgressInterval: Duration{time.Second},
			Timeout:          Duration{2 * time.Hour},
			UserAgent:        "gportal",
		},
		Archiver: Archiver{
			Tool:    "7z",
			Timeout: Duration{30 * time.Minute},
		},
		Launcher: defaultLauncher(),
		Log: Log{
			Level: "INFO",
		},
	}
}

func defaultLauncher() Launcher {
	switch runtime.GOOS {
	case "windows":
		return Launcher{Command: "cmd", Args: []string{"/c", "start", ""}, Suffix: ".exe"}
	case "darwin":
		return Launcher{Command: "open", Suffix: ".app"}
	default:
		return Launcher{Command: "xdg-open", Suffix: ".x86_64"}
	}
}

func Path() string {
	return filepath.Join(BaseDir(), configFileName)
}

// Load reads config.toml from the base dir. A missing file yields the
// defaults, which are written back so the user has something to edit.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	configPath := Path()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := Save(cfg); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	configPath := Path()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}
	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func (c *Config) Validate() error {
	switch {
	case c.InstallDir == "":
		return fmt.Errorf("config: install_dir is required")
	case c.CheatsDir == "":
		return fmt.Errorf("config: cheats_dir is required")
	case c.Download.MaxAttempts < 1:
		return fmt.Errorf("config: download.max_attempts must be at least 1")
	case c.Download.Backoff.Duration <= 0:
		return fmt.Errorf("config: download.backoff must be positive")
	case c.Download.ProgressInterval.Duration <= 0:
		return fmt.Errorf("config: download.progress_interval must be positive")
	case c.Archiver.Tool == "" && c.Archiver.Command == "":
		return fmt.Errorf("config: archiver.tool or archiver.command is required")
	case c.StateBackend != "sqlite" && c.StateBackend != "json":
		return fmt.Errorf("config: unknown state_backend %q", c.StateBackend)
	}

	if c.MaxParallel < 1 {
		c.MaxParallel = 1
	}
	if c.EventsBuffer < 1 {
		c.EventsBuffer = 1
	}
	return nil
}
