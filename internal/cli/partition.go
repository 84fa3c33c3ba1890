package cli

import (
	"fmt"
	"strings"

	"github.com/KafClaw/pinguess/internal/config"
	"github.com/KafClaw/pinguess/internal/partition"
	"github.com/KafClaw/pinguess/internal/transport"
	"github.com/spf13/cobra"
)

var partitionCmd = &cobra.Command{
	Use:   "partition",
	Short: "Inspect how the code space is split between agents",
}

var partitionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print one agent's block of candidates",
	RunE:  runPartitionShow,
}

var partitionVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that blocks are disjoint and cover the space for 1..agent-count agents",
	RunE:  runPartitionVerify,
}

var (
	partAgentID    int
	partAgentCount int
	partSeed       int64
	partSpace      int
	partLimit      int
)

func init() {
	for _, c := range []*cobra.Command{partitionShowCmd, partitionVerifyCmd} {
		f := c.Flags()
		f.IntVar(&partAgentCount, "agent-count", 0, "Number of cooperating agents (default from config)")
		f.Int64Var(&partSeed, "seed", 0, "Shared seed (default from config)")
		f.IntVar(&partSpace, "space", 0, "Candidate space size (default from config)")
	}
	partitionShowCmd.Flags().IntVar(&partAgentID, "agent-id", 0, "Agent index (default from config)")
	partitionShowCmd.Flags().IntVar(&partLimit, "limit", 50, "Print at most this many candidates (0 for all)")

	partitionCmd.AddCommand(partitionShowCmd)
	partitionCmd.AddCommand(partitionVerifyCmd)
}

func partitionSettings(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	f := cmd.Flags()
	if f.Changed("agent-id") {
		cfg.Agent.ID = partAgentID
	}
	if f.Changed("agent-count") {
		cfg.Agent.Count = partAgentCount
	}
	if f.Changed("seed") {
		cfg.Agent.SharedSeed = partSeed
	}
	if f.Changed("space") {
		cfg.Agent.SpaceSize = partSpace
	}
	return cfg, nil
}

func runPartitionShow(cmd *cobra.Command, args []string) error {
	cfg, err := partitionSettings(cmd)
	if err != nil {
		return err
	}
	p, err := partition.New(partition.Options{
		AgentID:    cfg.Agent.ID,
		AgentCount: cfg.Agent.Count,
		SpaceSize:  cfg.Agent.SpaceSize,
		SharedSeed: cfg.Agent.SharedSeed,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	values := p.Snapshot()
	fmt.Fprintf(out, "Agent:      %d of %d\n", cfg.Agent.ID, cfg.Agent.Count)
	fmt.Fprintf(out, "Seed:       %d\n", cfg.Agent.SharedSeed)
	fmt.Fprintf(out, "Block size: %d (nominal %d)\n", len(values), partition.BlockSize(cfg.Agent.SpaceSize, cfg.Agent.Count))
	if len(values) == 0 {
		fmt.Fprintln(out, "Block is empty; this agent starts in fallback mode.")
		return nil
	}

	shown := values
	if partLimit > 0 && len(shown) > partLimit {
		shown = shown[:partLimit]
	}
	labels := make([]string, len(shown))
	for i, v := range shown {
		labels[i] = transport.FormatCandidate(v, cfg.Agent.Width)
	}
	fmt.Fprintln(out, strings.Join(labels, " "))
	if len(shown) < len(values) {
		fmt.Fprintf(out, "... %d more\n", len(values)-len(shown))
	}
	return nil
}

// verifyPartition checks agent counts 1..maxAgents and returns one line per
// count that fails.
func verifyPartition(spaceSize, maxAgents int, seed int64) []string {
	var failures []string
	for count := 1; count <= maxAgents; count++ {
		owner := make(map[int]int, spaceSize)
		var problems []string
		for id := 0; id < count; id++ {
			for _, v := range partition.Block(id, count, spaceSize, seed) {
				if prev, dup := owner[v]; dup {
					problems = append(problems, fmt.Sprintf("%d held by agents %d and %d", v, prev, id))
					continue
				}
				owner[v] = id
			}
		}
		if len(owner) != spaceSize {
			problems = append(problems, fmt.Sprintf("covers %d of %d values", len(owner), spaceSize))
		}
		if len(problems) > 0 {
			failures = append(failures, fmt.Sprintf("%d agents: %s", count, strings.Join(problems, "; ")))
		}
	}
	return failures
}

func runPartitionVerify(cmd *cobra.Command, args []string) error {
	cfg, err := partitionSettings(cmd)
	if err != nil {
		return err
	}
	if cfg.Agent.Count <= 0 || cfg.Agent.SpaceSize <= 0 {
		return fmt.Errorf("%w: agent count and space size must be positive", config.ErrConfiguration)
	}

	out := cmd.OutOrStdout()
	failures := verifyPartition(cfg.Agent.SpaceSize, cfg.Agent.Count, cfg.Agent.SharedSeed)
	if len(failures) == 0 {
		fmt.Fprintf(out, "%s blocks disjoint and complete for 1..%d agents over %d values\n",
			okMark(true), cfg.Agent.Count, cfg.Agent.SpaceSize)
		return nil
	}
	for _, f := range failures {
		fmt.Fprintln(out, okMark(false), f)
	}
	return fmt.Errorf("partition verification failed for %d agent counts", len(failures))
}
