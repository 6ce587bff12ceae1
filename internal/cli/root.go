package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teamcutter/gportal/internal/cache"
	"github.com/teamcutter/gportal/internal/catalog"
	"github.com/teamcutter/gportal/internal/config"
	"github.com/teamcutter/gportal/internal/domain"
	"github.com/teamcutter/gportal/internal/extractor"
	"github.com/teamcutter/gportal/internal/fetcher"
	"github.com/teamcutter/gportal/internal/layout"
	"github.com/teamcutter/gportal/internal/library"
	"github.com/teamcutter/gportal/internal/logging"
	"github.com/teamcutter/gportal/internal/manager"
	"github.com/teamcutter/gportal/internal/state"
)

func Execute() error {
	rootCmd := &cobra.Command{
		Use:           "gportal",
		Short:         "Download, install and launch games from the GamePortal catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		newInstallCmd(),
		newUpdateCmd(),
		newListCmd(),
		newDeleteCmd(),
		newLaunchCmd(),
		newCheatsCmd(),
		newSearchCmd(),
		newCatalogCmd(),
		newClearCmd(),
		newDiskCmd(),
		newVersionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errReported) {
		printErr(err)
	}
	return err
}

// app holds everything a command needs, built from config.toml.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	state   domain.State
	staging *cache.DiskCache
	catalog *catalog.Store
	library *library.Library
	closers []func() error
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		closers: []func() error{closeLog},
	}

	st, closeState, err := state.Open(cfg.StateBackend, cfg.StateFile, cfg.ManifestFile, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.state = st
	a.closers = append(a.closers, closeState)

	a.staging, err = cache.New(cfg.DownloadDir)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.catalog = catalog.New(catalog.Options{
		URL:       cfg.CatalogURL,
		File:      cfg.CatalogFile,
		CacheDir:  cfg.CacheDir,
		TTL:       cfg.CatalogTTL.Duration,
		UserAgent: cfg.Download.UserAgent,
	}, logger.With("component", "catalog"))

	a.library = library.New(
		cfg.InstallDir,
		cfg.CheatsDir,
		st,
		library.NewCommandOpener(cfg.Launcher),
		cfg.Launcher.Suffix,
		logger.With("component", "library"),
	)

	return a, nil
}

// loadCatalog loads the catalog behind a spinner.
func (a *app) loadCatalog(ctx context.Context) error {
	stop := withSpinner(ctx, "Loading catalog...")
	err := a.catalog.Load(ctx)
	stop()
	return err
}

func (a *app) newManager() (*manager.Manager, error) {
	ex, err := extractor.New(a.cfg.Archiver)
	if err != nil {
		return nil, err
	}

	dl := a.cfg.Download
	logger := a.logger.With("component", "manager")

	return manager.New(
		fetcher.New(dl.Timeout.Duration, dl.ProgressInterval.Duration, dl.UserAgent),
		ex,
		layout.New(logger),
		a.staging,
		a.state,
		a.library,
		a.cfg.InstallDir,
		a.cfg.CheatsDir,
		manager.Options{
			MaxAttempts: dl.MaxAttempts,
			Backoff:     dl.Backoff.Duration,
			EventBuffer: a.cfg.EventsBuffer,
		},
		logger,
	), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
