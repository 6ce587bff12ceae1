package cli

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newDiskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disk",
		Short: "Show free space and the size of installed games",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.library.Usage(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("%s %s\n", cyan("volume:"), u.Path)
			fmt.Printf("%s %s free of %s %s\n", cyan("space:"),
				bold(humanize.IBytes(u.Free)), humanize.IBytes(u.Total),
				dim(fmt.Sprintf("(%.1f%% used)", u.UsedPercent)))

			if len(u.Games) == 0 {
				return nil
			}

			titles := make([]string, 0, len(u.Games))
			var total int64
			for t, n := range u.Games {
				titles = append(titles, t)
				total += n
			}
			sort.Slice(titles, func(i, j int) bool { return u.Games[titles[i]] > u.Games[titles[j]] })

			fmt.Printf("\n%s %s\n\n", bold("Installed games:"), dim(humanBytes(total)))
			for _, t := range titles {
				fmt.Printf(" %10s  %s\n", humanBytes(u.Games[t]), t)
			}

			if size, err := a.staging.Size(); err == nil && size > 0 {
				fmt.Printf("\n%s %s in leftover downloads, run %s\n", yellow("!"), humanBytes(size), cyan("gportal clear"))
			}
			return nil
		},
	}
}
