// Package main provides the entry point for spanscopectl.
package main

import (
	"os"

	"spanscope/internal/cli"
)

func main() {
	if err := cli.NewCommand(nil).Execute(); err != nil {
		os.Exit(1)
	}
}
