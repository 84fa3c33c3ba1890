// Package main is the entry point for the pinguess CLI.
package main

import (
	"os"

	"github.com/KafClaw/pinguess/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
