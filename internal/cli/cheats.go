package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "cheats <title>",
		Aliases: []string{"guide"},
		Short:   "Print the cheat guide bundled with a game",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			guide, err := a.library.Cheatsheet(args[0])
			if err != nil {
				return err
			}

			fmt.Println(guide)
			return nil
		},
	}
}
