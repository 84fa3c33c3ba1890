package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KafClaw/pinguess/internal/lock"
	"github.com/KafClaw/pinguess/internal/timeline"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func runRootCommand(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	_, err := rootCmd.ExecuteContextC(ctx)
	rootCmd.SetArgs(nil)
	return strings.TrimSpace(buf.String()), err
}

// isolateHome gives each test its own HOME with no config file.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PINGUESS_HOME", "")
	t.Setenv("PINGUESS_CONFIG", "")
	t.Setenv("PINGUESS_ENV_FILE", "")
	return home
}

func TestVersionCommand(t *testing.T) {
	out, err := runRootCommand(t, context.Background(), "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "Version: "+version) {
		t.Fatalf("expected version in output, got %q", out)
	}
}

func TestVerifyPartition(t *testing.T) {
	if failures := verifyPartition(500, 8, 99); len(failures) != 0 {
		t.Fatalf("expected clean verification, got %v", failures)
	}
}

func TestPartitionVerifyCommand(t *testing.T) {
	isolateHome(t)
	out, err := runRootCommand(t, context.Background(), "partition", "verify", "--agent-count", "6", "--space", "1000")
	if err != nil {
		t.Fatalf("partition verify: %v\n%s", err, out)
	}
	if !strings.Contains(out, "disjoint and complete for 1..6 agents") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestPartitionShowEmptyBlock(t *testing.T) {
	isolateHome(t)
	out, err := runRootCommand(t, context.Background(), "partition", "show", "--agent-id", "7", "--agent-count", "8", "--space", "10")
	if err != nil {
		t.Fatalf("partition show: %v", err)
	}
	if !strings.Contains(out, "Block is empty") {
		t.Fatalf("expected empty block notice, got %q", out)
	}
}

func TestPartitionShowRejectsBadAgent(t *testing.T) {
	isolateHome(t)
	if _, err := runRootCommand(t, context.Background(), "partition", "show", "--agent-id", "4", "--agent-count", "4"); err == nil {
		t.Fatal("expected configuration error for agent id == count")
	}
}

func TestConfigInitAndShow(t *testing.T) {
	home := isolateHome(t)

	out, err := runRootCommand(t, context.Background(), "config", "init")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	path := filepath.Join(home, ".pinguess", "config.json")
	if !strings.Contains(out, path) {
		t.Fatalf("expected path in output, got %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	if _, err := runRootCommand(t, context.Background(), "config", "init"); err == nil {
		t.Fatal("expected second init without --force to fail")
	}
	if _, err := runRootCommand(t, context.Background(), "config", "init", "--force"); err != nil {
		t.Fatalf("config init --force: %v", err)
	}

	t.Setenv("PINGUESS_AGENT_COUNT", "3")
	out, err = runRootCommand(t, context.Background(), "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, `"count": 3`) {
		t.Fatalf("expected env override in effective config, got %q", out)
	}
}

func TestRunAgainstLocalServer(t *testing.T) {
	home := isolateHome(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		fmt.Fprintf(w, "<p>%s is not the PIN. It has been guessed <strong>5&nbsp;times</strong>.</p>", r.PostFormValue("guess"))
	}))
	defer srv.Close()

	dbPath := filepath.Join(home, "timeline.db")
	logPath := filepath.Join(home, "guess.log")
	lockDir := filepath.Join(home, "locks")
	t.Setenv("PINGUESS_TARGET_URL", srv.URL)
	t.Setenv("PINGUESS_PATHS_TIMELINE_DB", dbPath)
	t.Setenv("PINGUESS_PATHS_LOG_FILE", logPath)
	t.Setenv("PINGUESS_PATHS_LOCK_DIR", lockDir)
	t.Setenv("PINGUESS_BACKOFF_RATE_PER_SECOND", "100")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	out, err := runRootCommand(t, ctx, "run", "--agent-id", "1", "--agent-count", "2", "--seed", "7")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Nope") || !strings.Contains(out, "Stopped.") {
		t.Fatalf("expected progress and summary, got %q", out)
	}

	journalText, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if !strings.Contains(string(journalText), "Start...") {
		t.Fatalf("expected start line in journal, got %q", journalText)
	}

	if _, err := os.Stat(lock.AgentLockPath(lockDir, 1)); !os.IsNotExist(err) {
		t.Fatal("expected agent lock released after run")
	}

	tl, err := timeline.NewTimelineService(dbPath)
	if err != nil {
		t.Fatalf("open timeline: %v", err)
	}
	defer tl.Close()
	runs, err := tl.ListRuns(10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one run, got %d (err %v)", len(runs), err)
	}
	if runs[0].AgentID != 1 || runs[0].AgentCount != 2 || runs[0].SharedSeed != 7 {
		t.Fatalf("unexpected run row %+v", runs[0])
	}
	stats, err := tl.Stats(runs[0].RunID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total == 0 || stats.ByOutcome[timeline.OutcomeIncorrect] != stats.Total {
		t.Fatalf("expected only incorrect attempts, got %+v", stats)
	}
	if stats.LastCounter == nil || *stats.LastCounter != 5 {
		t.Fatalf("expected last counter 5, got %v", stats.LastCounter)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	isolateHome(t)
	_, err := runRootCommand(t, context.Background(), "run", "--agent-id", "2", "--agent-count", "2")
	if err == nil || !strings.Contains(err.Error(), "agent.id") {
		t.Fatalf("expected agent.id configuration error, got %v", err)
	}
}

func TestStatusProbesAgentLock(t *testing.T) {
	home := isolateHome(t)
	lockDir := filepath.Join(home, "locks")
	t.Setenv("PINGUESS_PATHS_LOCK_DIR", lockDir)

	out, err := runRootCommand(t, context.Background(), "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Running:  no") {
		t.Fatalf("expected idle agent, got %q", out)
	}

	held, err := lock.AcquireAgent(lockDir, 0, "run-live")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	out, _ = runRootCommand(t, context.Background(), "status")
	if !strings.Contains(out, "Running:  yes (run run-live") {
		t.Fatalf("expected live holder, got %q", out)
	}
	if err := held.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	// A file nobody holds is what a killed agent leaves behind.
	if err := os.WriteFile(lock.AgentLockPath(lockDir, 0), []byte(`{"agent_id":0,"run_id":"gone","pid":1}`), 0o600); err != nil {
		t.Fatal(err)
	}
	out, _ = runRootCommand(t, context.Background(), "status")
	if !strings.Contains(out, "Running:  no (stale") {
		t.Fatalf("expected stale lock reported as not running, got %q", out)
	}
}
