package main

import (
	"os"

	"github.com/teamcutter/gportal/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
