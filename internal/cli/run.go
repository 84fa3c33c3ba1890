package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/KafClaw/pinguess/internal/bus"
	"github.com/KafClaw/pinguess/internal/classify"
	"github.com/KafClaw/pinguess/internal/config"
	"github.com/KafClaw/pinguess/internal/journal"
	"github.com/KafClaw/pinguess/internal/lock"
	"github.com/KafClaw/pinguess/internal/notify"
	"github.com/KafClaw/pinguess/internal/orchestrator"
	"github.com/KafClaw/pinguess/internal/partition"
	"github.com/KafClaw/pinguess/internal/timeline"
	"github.com/KafClaw/pinguess/internal/transport"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start guessing until interrupted",
	Long: `Start the guessing loop for one agent.

Every cooperating agent must use the same --seed and --agent-count and a
distinct --agent-id in [0, agent-count). Agents never talk to each other;
when one of them hits the PIN the others notice the site's counter drop
and start over on the new PIN.`,
	RunE: runGuess,
}

var (
	runAgentID    int
	runAgentCount int
	runSeed       int64
	runLogFile    string
	runQuiet      bool
)

func init() {
	f := runCmd.Flags()
	f.IntVar(&runAgentID, "agent-id", 0, "This agent's index in [0, agent-count)")
	f.IntVar(&runAgentCount, "agent-count", 1, "Number of cooperating agents")
	f.Int64Var(&runSeed, "seed", 0, "Shared seed, identical on every agent")
	f.StringVar(&runLogFile, "log-file", "", "Append-only journal path")
	f.BoolVarP(&runQuiet, "quiet", "q", false, "Suppress the per-attempt progress line")
}

// applyRunFlags copies explicitly set flags over the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("agent-id") {
		cfg.Agent.ID = runAgentID
	}
	if f.Changed("agent-count") {
		cfg.Agent.Count = runAgentCount
	}
	if f.Changed("seed") {
		cfg.Agent.SharedSeed = runSeed
	}
	if f.Changed("log-file") {
		cfg.Paths.LogFile = runLogFile
	}
}

func runGuess(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printHeader(out, fmt.Sprintf("🔢 Agent %d of %d", cfg.Agent.ID, cfg.Agent.Count))

	runID := timeline.NewRunID()
	if cfg.Paths.LockDir != "" {
		fl, err := lock.AcquireAgent(cfg.Paths.LockDir, cfg.Agent.ID, runID)
		if err != nil {
			return err
		}
		defer fl.Unlock()
	}

	jrnl, err := journal.Open(cfg.Paths.LogFile, out)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	var recorder orchestrator.Recorder
	if cfg.Paths.TimelineDB != "" {
		tl, err := timeline.NewTimelineService(cfg.Paths.TimelineDB)
		if err != nil {
			return err
		}
		defer tl.Close()
		if err := tl.StartRun(&timeline.Run{
			RunID:      runID,
			AgentID:    cfg.Agent.ID,
			AgentCount: cfg.Agent.Count,
			SharedSeed: cfg.Agent.SharedSeed,
			SpaceSize:  cfg.Agent.SpaceSize,
			Endpoint:   cfg.Target.URL,
		}); err != nil {
			return err
		}
		recorder = tl
	}

	src, err := partition.New(partition.Options{
		AgentID:    cfg.Agent.ID,
		AgentCount: cfg.Agent.Count,
		SpaceSize:  cfg.Agent.SpaceSize,
		SharedSeed: cfg.Agent.SharedSeed,
		OnFallback: func(pops int) {
			slog.Info("Partition exhausted, switching to full-space fallback", "agent", cfg.Agent.ID, "pops", pops)
		},
	})
	if err != nil {
		return err
	}
	slog.Info("Partition ready", "agent", cfg.Agent.ID, "agents", cfg.Agent.Count, "size", src.Remaining())

	eventBus := bus.NewEventBus(256)
	if cfg.Kafka.Enabled {
		kp := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		eventBus.Subscribe(bus.TopicAll, kp.Handle)
	}
	if cfg.Slack.Enabled {
		sn := notify.NewSlackNotifier(cfg.Slack.WebhookURL, cfg.Slack.Channel)
		eventBus.Subscribe(bus.EventSuccess, sn.Handle)
		eventBus.Subscribe(bus.EventReset, sn.Handle)
	}

	progress := out
	if runQuiet {
		progress = io.Discard
	}
	opts := orchestrator.Options{
		RunID:            runID,
		AgentID:          cfg.Agent.ID,
		AgentCount:       cfg.Agent.Count,
		Width:            cfg.Agent.Width,
		Source:           src,
		Submitter:        transport.NewClient(cfg.Target.URL, cfg.Target.Field, cfg.Agent.Width, cfg.Target.Timeout),
		Classifier:       classify.New(cfg.Target.Markers),
		Journal:          jrnl,
		Recorder:         recorder,
		Publisher:        eventBus,
		Progress:         progress,
		AmbiguousBackoff: cfg.Backoff.Ambiguous,
		TransportBackoff: cfg.Backoff.Transport,
	}
	if lim := orchestrator.NewLimiter(cfg.Backoff.RatePerSecond, cfg.Backoff.Burst); lim != nil {
		opts.Limiter = lim
	}
	loop, err := orchestrator.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatched := make(chan struct{})
	go func() {
		_ = eventBus.Dispatch(dispatchCtx)
		close(dispatched)
	}()

	err = loop.Run(ctx)
	stopDispatch()
	<-dispatched

	s := loop.Stats()
	fmt.Fprintf(out, "\n%s attempts=%d successes=%d resets=%d ambiguous=%d kicked=%d\n",
		color.CyanString("Stopped."), s.Attempts, s.Successes, s.Resets, s.Ambiguous, s.Transport)
	if n := eventBus.Dropped(); n > 0 {
		slog.Warn("Events dropped during run", "count", n)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
