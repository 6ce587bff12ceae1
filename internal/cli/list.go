package cli

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed games",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			titles, err := a.library.Titles()
			if err != nil {
				return err
			}

			// Ledger rows whose directory is gone were removed by hand.
			if records, err := a.state.ListInstalled(); err == nil {
				present := make(map[string]bool, len(titles))
				for _, t := range titles {
					present[t] = true
				}
				var removed int
				for title := range records {
					if !present[title] {
						fmt.Printf("%s %s removed externally\n", dim("○"), title)
						a.state.Remove(title)
						removed++
					}
				}
				if removed > 0 {
					fmt.Println()
				}
			}

			if len(titles) == 0 {
				fmt.Printf("\n%s No games installed\n", dim("○"))
				return nil
			}

			fmt.Printf("Installed games:\n\n")

			for _, title := range titles {
				line := fmt.Sprintf(" %s", bold(title))
				if rec, ok := a.library.Record(title); ok {
					line += fmt.Sprintf("  %s", dim("installed "+humanize.Time(rec.InstalledAt)))
					if rec.CheatsPath != "" {
						if _, err := os.Stat(rec.CheatsPath); err == nil {
							line += fmt.Sprintf("  %s", cyan("cheats"))
						}
					}
				}
				fmt.Println(line)
			}

			return nil
		},
	}
}
