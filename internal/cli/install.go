package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teamcutter/gportal/internal/manager"
	"github.com/teamcutter/gportal/internal/resolver"
)

func newInstallCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "install <title>...",
		Short: "Download and install games",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.loadCatalog(ctx); err != nil {
				return err
			}

			plan, err := resolver.New(a.catalog, a.state).Resolve(args)
			if err != nil {
				return err
			}

			mgr, err := a.newManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			return runAcquisitions(ctx, a, mgr, plan, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Reinstall games that are already installed")
	return cmd
}

// runAcquisitions installs every game in plan, at most max_parallel at a
// time, and prints a summary in plan order.
func runAcquisitions(ctx context.Context, a *app, mgr *manager.Manager, plan []resolver.ResolvedGame, force bool) error {
	var todo []resolver.ResolvedGame
	for _, rg := range plan {
		if rg.AlreadyInstalled && !force {
			fmt.Printf("%s %s already installed %s\n", yellow("!"), bold(rg.Entry.Title), dim("(use --force to reinstall)"))
			continue
		}
		todo = append(todo, rg)
	}
	if len(todo) == 0 {
		return nil
	}

	useBars := len(todo) == 1 || a.cfg.MaxParallel == 1

	output := make(map[string]string)
	var errs []error
	mu := &sync.Mutex{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.MaxParallel)

	for _, rg := range todo {
		g.Go(func() error {
			entry := rg.Entry
			stream := mgr.NewStream()

			rendered := make(chan struct{})
			go func() {
				defer close(rendered)
				if useBars {
					renderBar(gctx, stream, entry.Title)
				} else {
					renderLines(stream, entry.Title)
				}
			}()

			res, err := mgr.Acquire(gctx, entry, stream)
			<-rendered

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", entry.Title, err))
				return nil
			}

			lines := fmt.Sprintf("%s %s\n  %s %s", green("✓"), bold(res.Title), cyan("path:"), res.InstallPath)
			if res.CheatsPath != "" {
				lines += fmt.Sprintf("\n  %s %s", cyan("cheats:"), res.CheatsPath)
			}
			took := res.Duration.Round(100 * time.Millisecond)
			if res.RetriesUsed > 0 {
				lines += fmt.Sprintf("\n  %s", dim(fmt.Sprintf("took %s, %d retries", took, res.RetriesUsed)))
			} else {
				lines += fmt.Sprintf("\n  %s", dim(fmt.Sprintf("took %s", took)))
			}
			output[entry.ID] = lines
			return nil
		})
	}
	_ = g.Wait()

	fmt.Println()
	for _, rg := range todo {
		if msg, ok := output[rg.Entry.ID]; ok {
			fmt.Println(msg)
		}
	}

	if len(errs) > 0 {
		for _, e := range errs {
			printErr(e)
		}
		return fmt.Errorf("failed to install %d game(s): %w", len(errs), errReported)
	}

	return nil
}
