package cli

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/spf13/cobra"

	"github.com/teamcutter/gportal/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of gportal",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s%s%s%s%s%s%s\n", bold("gportal"), bold("-"), bold(version.Version),
				bold("-"), bold(runtime.GOOS), bold("/"), bold(runtime.GOARCH))

			if platform, _, ver, err := host.PlatformInformationWithContext(cmd.Context()); err == nil && platform != "" {
				fmt.Printf("%s %s %s\n", dim("host:"), platform, ver)
			}
		},
	}
}
