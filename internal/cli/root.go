// Package cli wires the buttonbot commands.
package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/cli.version=1.2.3"
	version = "1.0.0"
	logo    = "\n" +
		"  _           _   _              _           _\n" +
		" | |__  _   _| |_| |_ ___  _ __ | |__   ___ | |_\n" +
		" | '_ \\| | | | __| __/ _ \\| '_ \\| '_ \\ / _ \\| __|\n" +
		" | |_) | |_| | |_| || (_) | | | | |_) | (_) | |_\n" +
		" |_.__/ \\__,_|\\__|\\__\\___/|_| |_|_.__/ \\___/ \\__|\n"
)

var rootCmd = &cobra.Command{
	Use:   "buttonbot",
	Short: "buttonbot - multi-team Slack bot gateway",
	Long:  color.CyanString(logo) + "\nA multi-team Slack bot with interactive buttons, written in Go.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(teamsCmd)
}
