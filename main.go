// Package main is the entry point for the orgmirror CLI.
package main

import (
	"fmt"
	"os"

	"github.com/sfriedel/orgmirror/cmd"
	"github.com/sfriedel/orgmirror/internal/logging"
)

func main() {
	logging.FromEnv()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
