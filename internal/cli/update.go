package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teamcutter/gportal/internal/resolver"
)

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update [title...]",
		Short: "Reinstall games whose download changed in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			titles, err := a.library.Titles()
			if err != nil {
				return err
			}

			if len(titles) == 0 {
				fmt.Printf("\n%s No games installed\n", dim("○"))
				return nil
			}

			if len(args) > 0 {
				installed := make(map[string]bool, len(titles))
				for _, t := range titles {
					installed[t] = true
				}
				for _, arg := range args {
					if !installed[arg] {
						return fmt.Errorf("%s is not installed", arg)
					}
				}
				titles = args
			}

			if err := a.loadCatalog(ctx); err != nil {
				return err
			}

			var stale []string
			for _, title := range titles {
				entry, err := a.catalog.Find(title)
				if err != nil || !entry.Acquirable() {
					fmt.Printf("%s %s %s\n", dim("○"), title, dim("(no longer in catalog)"))
					continue
				}

				record, ok := a.library.Record(title)
				if ok && record.URL == entry.DownloadURL {
					continue
				}

				fmt.Printf("%s %s\n", yellow("↑"), bold(title))
				stale = append(stale, entry.ID)
			}

			if len(stale) == 0 {
				fmt.Printf("%s All games are up to date\n", green("✓"))
				return nil
			}

			plan, err := resolver.New(a.catalog, a.state).Resolve(stale)
			if err != nil {
				return err
			}

			mgr, err := a.newManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			return runAcquisitions(ctx, a, mgr, plan, true)
		},
	}

	return cmd
}
