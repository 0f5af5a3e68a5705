// Package main is the entry point for the buttonbot CLI.
package main

import (
	"os"

	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
