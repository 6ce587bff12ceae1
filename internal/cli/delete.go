package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <title>...",
		Aliases: []string{"remove", "uninstall", "rm"},
		Short:   "Delete installed games and their cheat guides",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			installed, err := a.library.ListInstalled()
			if err != nil {
				return err
			}

			fmt.Printf("Deleting %d game(s)...\n", len(args))

			var failed int
			for _, title := range args {
				if _, ok := installed[title]; !ok {
					fmt.Printf("\n%s %s %s\n", dim("○"), title, dim("(not installed)"))
					continue
				}

				if err := a.library.Delete(title); err != nil {
					fmt.Printf("\n%s %s: %v\n", red("✗"), title, err)
					failed++
					continue
				}
				fmt.Printf("\n%s %s\n", green("✓"), bold(title))
			}

			if failed > 0 {
				return fmt.Errorf("failed to delete %d game(s): %w", failed, errReported)
			}
			return nil
		},
	}
}
