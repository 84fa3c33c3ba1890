//go:build !windows

package lock

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProbeReportsStaleFile(t *testing.T) {
	dir := t.TempDir()
	// A SIGKILLed agent leaves its file behind with nobody holding the flock.
	path := AgentLockPath(dir, 2)
	if err := os.WriteFile(path, encodeHolder(Holder{AgentID: 2, RunID: "dead", PID: 1 << 22}), 0o600); err != nil {
		t.Fatal(err)
	}

	st, err := Probe(dir, 2)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if st.Held || !st.Stale || st.Holder == nil || st.Holder.RunID != "dead" {
		t.Fatalf("expected stale lock from run dead, got %+v", st)
	}

	l, err := AcquireAgent(dir, 2, "alive")
	if err != nil {
		t.Fatalf("stale file must not block a new run: %v", err)
	}
	_ = l.Unlock()
}

func TestSameFileDetectsReplacedPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if !sameFile(f, path) {
		t.Fatal("freshly opened file should match its path")
	}

	// Holder unlinked the old inode and someone created a new file.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if sameFile(f, path) {
		t.Fatal("handle on an unlinked inode must not count as holding the path")
	}
}

func TestUnlockRemovesBeforeRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.lock")
	a := NewFileLock(path, Holder{RunID: "a"})
	if ok, err := a.TryLock(); !ok || err != nil {
		t.Fatalf("lock: ok=%v err=%v", ok, err)
	}
	// Open the inode the way a racing process would before a releases it.
	racer, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer racer.Close()

	if err := a.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if sameFile(racer, path) {
		t.Fatal("path still names the released inode")
	}

	b := NewFileLock(path, Holder{RunID: "b"})
	if ok, err := b.TryLock(); !ok || err != nil {
		t.Fatalf("fresh lock after release: ok=%v err=%v", ok, err)
	}
	defer b.Unlock()
	if h, _ := ReadHolder(path); h == nil || h.RunID != "b" {
		t.Fatalf("expected b recorded, got %+v", h)
	}
}
