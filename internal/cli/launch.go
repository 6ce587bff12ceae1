package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLaunchCmd() *cobra.Command {
	var exe string

	cmd := &cobra.Command{
		Use:     "launch <title>",
		Aliases: []string{"play", "run"},
		Short:   "Launch an installed game",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			title := args[0]
			ctx := cmd.Context()

			if exe == "" {
				if err := a.loadCatalog(ctx); err != nil {
					return err
				}
				if entry, err := a.catalog.Find(title); err == nil {
					exe = entry.ExecutablePath
				}
			}

			path, err := a.library.Launch(ctx, title, exe)
			if err != nil {
				return err
			}

			fmt.Printf("%s Launched %s\n  %s %s\n", green("✓"), bold(title), cyan("exe:"), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&exe, "exe", "", "Executable path relative to the game directory")
	return cmd
}
