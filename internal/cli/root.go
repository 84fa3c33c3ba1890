// Package cli wires the pinguess commands.
package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/pinguess/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"        _                                \n" +
		"  _ __ (_)_ __   __ _ _   _  ___  ___ ___\n" +
		" | '_ \\| | '_ \\ / _` | | | |/ _ \\/ __/ __|\n" +
		" | |_) | | | | | (_| | |_| |  __/\\__ \\__ \\\n" +
		" | .__/|_|_| |_|\\__, |\\__,_|\\___||___/___/\n" +
		" |_|            |___/\n"
)

var rootCmd = &cobra.Command{
	Use:   "pinguess",
	Short: "pinguess - cooperative PIN guessing agent",
	Long: color.CyanString(logo) + "\nGuesses a 4-digit PIN against a web endpoint. Several agents sharing a seed\n" +
		"split the code space between them without talking to each other.",
	SilenceUsage: true,
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
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(partitionCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}
