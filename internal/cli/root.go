// Package cli implements the chorequest command-line interface: the
// long-running daemon plus one-shot administrative commands that operate
// on the same database.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chorequest/chorequest/internal/daemon"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "chorequest",
	Short: "Gamified household chore economy",
	Long: `ChoreQuest turns household chores into a point economy: children earn
XP for verified tasks, build a credibility score through consistent
quality, and redeem XP for screen time and privileges.

Run 'chorequest serve' to start the API daemon, or use the admin
commands (grant, balance, credibility, authority, sweep) for one-shot
operations against the same database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to TOML config file")
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDaemon builds a fully wired daemon from the configured paths. The
// caller owns Close (or Run).
func loadDaemon() (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return daemon.New(cfg)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return fmt.Sprintf("%s/.chorequest/config.toml", home)
}
