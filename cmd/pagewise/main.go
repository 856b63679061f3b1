// Package main provides the entry point for the pagewise CLI.
package main

import (
	"os"

	"github.com/pagewise-ai/pagewise/cmd/pagewise/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
