// Package main provides the entry point for the aki CLI.
package main

import (
	"os"

	"github.com/evanwmart/augmented-knowledge-interfaces/cmd/aki/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
