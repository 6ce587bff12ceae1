package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List every game in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if refresh {
				if err := a.catalog.Invalidate(); err != nil {
					return fmt.Errorf("failed to drop catalog cache: %w", err)
				}
			}

			if err := a.loadCatalog(cmd.Context()); err != nil {
				return err
			}

			entries := a.catalog.Entries()
			if len(entries) == 0 {
				fmt.Printf("%s Catalog is empty %s\n", dim("○"), dim("(source: "+a.catalog.Source()+")"))
				return nil
			}

			installed, _ := a.library.ListInstalled()

			fmt.Printf("%d games %s\n\n", len(entries), dim("(source: "+a.catalog.Source()+")"))
			for _, e := range entries {
				mark := dim("○")
				switch _, ok := installed[e.Title]; {
				case ok:
					mark = green("✓")
				case !e.Acquirable():
					mark = dim("-")
				}
				fmt.Printf(" %s %s %s\n", mark, bold(e.Title), dim(e.ID))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Ignore the cached catalog and fetch it again")
	return cmd
}
