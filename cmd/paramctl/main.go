package main

import (
	"os"

	"influencegen/internal/buildinfo"
	"influencegen/internal/cli"
)

func main() {
	if err := cli.Execute(buildinfo.Version); err != nil {
		os.Exit(1)
	}
}
