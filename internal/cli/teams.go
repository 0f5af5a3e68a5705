package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/config"
	"github.com/trailofdad/Interactive-Button-Botkit-Boilerplate/internal/store"
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List authorized teams",
	Run:   runTeams,
}

func runTeams(cmd *cobra.Command, args []string) {
	printHeader("👥 buttonbot Teams")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		fmt.Printf("Storage error: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	teams, err := st.AllTeams()
	if err != nil {
		fmt.Printf("Storage error: %v\n", err)
		os.Exit(1)
	}
	if len(teams) == 0 {
		fmt.Println("No teams authorized yet. Visit /login to add one.")
		return
	}
	for _, t := range teams {
		status := color.GreenString("✓ bot")
		if !t.HasBot() {
			status = color.YellowString("✗ no bot")
		}
		fmt.Printf("%-12s %-24s %s token=%s\n", t.ID, t.Name, status, maskSecret(t.BotToken))
	}
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
