package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var show int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog by title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			if err := a.loadCatalog(cmd.Context()); err != nil {
				return err
			}

			results := a.catalog.Search(query)
			if len(results) == 0 {
				fmt.Printf("%s No results found for %q\n", dim("○"), query)
				return nil
			}

			installed, _ := a.library.ListInstalled()
			size := min(len(results), show)

			fmt.Printf("\nShowing %s of %s results for %q\n\n", green(size), green(len(results)), query)

			for _, e := range results[:size] {
				line := fmt.Sprintf("%s %s", green("●"), bold(e.Title))
				if _, ok := installed[e.Title]; ok {
					line += " " + cyan("(installed)")
				} else if !e.Acquirable() {
					line += " " + dim("(no download)")
				}
				fmt.Println(line)
				fmt.Printf("  %s %s\n", cyan("id:"), e.ID)
				fmt.Println()
			}

			if len(results) > size {
				fmt.Printf("%s %d more available, use %s to see all\n", dim("..."), len(results)-size, cyan(fmt.Sprintf("--show %d", len(results))))
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&show, "show", "s", 20, "Shows first n games")
	return cmd
}
