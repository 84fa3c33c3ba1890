package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/KafClaw/pinguess/internal/config"
	"github.com/KafClaw/pinguess/internal/timeline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past runs, per-run stats and right guesses",
	RunE:  runHistory,
}

var (
	historyRunID     string
	historyLimit     int
	historySuccesses bool
)

func init() {
	historyCmd.Flags().StringVar(&historyRunID, "run", "", "Show stats and recent attempts for one run")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum rows to print")
	historyCmd.Flags().BoolVar(&historySuccesses, "successes", false, "List right guesses across all runs")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Paths.TimelineDB == "" {
		return fmt.Errorf("%w: paths.timelineDb is empty; history is disabled", config.ErrConfiguration)
	}
	tl, err := timeline.NewTimelineService(cfg.Paths.TimelineDB)
	if err != nil {
		return err
	}
	defer tl.Close()

	out := cmd.OutOrStdout()
	switch {
	case historySuccesses:
		return printSuccesses(out, tl, historyLimit)
	case historyRunID != "":
		return printRun(out, tl, historyRunID, historyLimit)
	default:
		return printRuns(out, tl, historyLimit)
	}
}

func printRuns(w io.Writer, tl *timeline.TimelineService, limit int) error {
	runs, err := tl.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  agent %d/%d  seed %d\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.RunID, r.AgentID, r.AgentCount, r.SharedSeed)
	}
	return nil
}

func printRun(w io.Writer, tl *timeline.TimelineService, runID string, limit int) error {
	stats, err := tl.Stats(runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Run:      %s\n", runID)
	fmt.Fprintf(w, "Attempts: %d (fallback %d)\n", stats.Total, stats.FallbackHits)
	outcomes := make([]string, 0, len(stats.ByOutcome))
	for k := range stats.ByOutcome {
		outcomes = append(outcomes, k)
	}
	sort.Strings(outcomes)
	for _, k := range outcomes {
		fmt.Fprintf(w, "  %-18s %d\n", k, stats.ByOutcome[k])
	}
	if stats.LastCounter != nil {
		fmt.Fprintf(w, "Counter:  %d\n", *stats.LastCounter)
	}

	events, err := tl.ListEvents(runID, limit)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		fmt.Fprintln(w, "\nEvents:")
		for _, e := range events {
			fmt.Fprintf(w, "  %s  %-8s %s\n", e.CreatedAt.Local().Format("15:04:05"), e.EventType, e.Detail)
		}
	}

	attempts, err := tl.ListAttempts(timeline.AttemptFilter{RunID: runID, Limit: limit})
	if err != nil {
		return err
	}
	if len(attempts) > 0 {
		fmt.Fprintln(w, "\nRecent attempts:")
		for _, a := range attempts {
			fmt.Fprintf(w, "  %04d  %s\n", a.Candidate, colorOutcome(a.Outcome))
		}
	}
	return nil
}

func printSuccesses(w io.Writer, tl *timeline.TimelineService, limit int) error {
	hits, err := tl.Successes(limit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Fprintln(w, "No right guesses yet.")
		return nil
	}
	for _, a := range hits {
		fmt.Fprintf(w, "%s  %04d  run %s\n", a.CreatedAt.Local().Format("2006-01-02 15:04:05"), a.Candidate, a.RunID)
	}
	return nil
}

func colorOutcome(outcome string) string {
	switch outcome {
	case timeline.OutcomeCorrect:
		return color.GreenString(outcome)
	case timeline.OutcomeAmbiguous:
		return color.YellowString(outcome)
	case timeline.OutcomeTransportFailure:
		return color.RedString(outcome)
	default:
		return outcome
	}
}
