package cli

import (
	"fmt"
	"os"

	"github.com/KafClaw/pinguess/internal/config"
	"github.com/KafClaw/pinguess/internal/lock"
	"github.com/KafClaw/pinguess/internal/partition"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		printHeader(out, "🏷️ pinguess Version")
		fmt.Fprintf(out, "Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and agent status",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		printHeader(out, "📊 pinguess Status")
		fmt.Fprintf(out, "Version:  %s\n", version)

		path, _ := config.ConfigPath()
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(out, "Config:   %s Found (%s)\n", okMark(true), path)
		} else {
			fmt.Fprintf(out, "Config:   %s Not found (run 'pinguess config init')\n", okMark(false))
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(out, "Load:     %s %v\n", okMark(false), err)
			return
		}
		valid := cfg.Validate()
		if valid != nil {
			fmt.Fprintf(out, "Valid:    %s %v\n", okMark(false), valid)
		} else {
			fmt.Fprintf(out, "Valid:    %s\n", okMark(true))
		}

		fmt.Fprintf(out, "Agent:    %d of %d (seed %d)\n", cfg.Agent.ID, cfg.Agent.Count, cfg.Agent.SharedSeed)
		if valid == nil {
			fmt.Fprintf(out, "Block:    %d candidates\n", len(partition.Block(cfg.Agent.ID, cfg.Agent.Count, cfg.Agent.SpaceSize, cfg.Agent.SharedSeed)))
		}
		fmt.Fprintf(out, "Target:   %s\n", cfg.Target.URL)
		fmt.Fprintf(out, "Journal:  %s\n", cfg.Paths.LogFile)

		if _, err := os.Stat(cfg.Paths.TimelineDB); err == nil {
			fmt.Fprintf(out, "Timeline: %s %s\n", okMark(true), cfg.Paths.TimelineDB)
		} else {
			fmt.Fprintf(out, "Timeline: %s not created yet\n", okMark(false))
		}

		if cfg.Paths.LockDir != "" {
			fmt.Fprintln(out, "Running:  "+runningText(cfg.Paths.LockDir, cfg.Agent.ID))
		}
		fmt.Fprintf(out, "Kafka:    %s\n", enabledText(cfg.Kafka.Enabled))
		fmt.Fprintf(out, "Slack:    %s\n", enabledText(cfg.Slack.Enabled))
	},
}

func enabledText(on bool) string {
	if on {
		return okMark(true) + " Enabled"
	}
	return okMark(false) + " Disabled"
}

func runningText(lockDir string, agentID int) string {
	st, err := lock.Probe(lockDir, agentID)
	switch {
	case err != nil:
		return "unknown (" + err.Error() + ")"
	case st.Held && st.Holder != nil:
		return fmt.Sprintf("yes (run %s, pid %d, since %s)", st.Holder.RunID, st.Holder.PID, st.Holder.StartedAt.Local().Format("2006-01-02 15:04:05"))
	case st.Held:
		return "yes"
	case st.Stale:
		return "no (stale lock file from a run that did not exit cleanly)"
	default:
		return "no"
	}
}
