// Package main provides the sinenet CLI.
//
// Usage:
//
//	sinenet [flags] <command> [args]
//
// Commands:
//
//	train    - Train a speaker model from an experiment file
//	layers   - Print the layer stack and its shape chain
//	version  - Show version
package main

import (
	"fmt"
	"os"

	"github.com/born-ml/sinenet/cmd/sinenet/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
