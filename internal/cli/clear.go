package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	var withCatalog bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove leftover downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			size, _ := a.staging.Size()
			leftovers, _ := a.staging.Leftovers()

			if err := a.staging.Clear(); err != nil {
				return fmt.Errorf("failed to clear downloads: %w", err)
			}

			fmt.Printf("%s Downloads cleared (%d file(s), %s freed)\n", green("✓"), len(leftovers), humanBytes(size))

			if withCatalog {
				if err := a.catalog.Invalidate(); err != nil {
					return fmt.Errorf("failed to clear catalog cache: %w", err)
				}
				fmt.Printf("%s Catalog cache cleared\n", green("✓"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withCatalog, "catalog", false, "Also drop the cached catalog")
	return cmd
}
