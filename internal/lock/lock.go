// Package lock keeps two local processes from running the same agent id.
//
// The lock file records who holds it, so status and error messages can name
// the run that owns an agent slot.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Holder is written into a held lock file.
type Holder struct {
	AgentID   int       `json:"agent_id"`
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// Status is an agent lock as seen from another process.
type Status struct {
	Held bool
	// Stale is a lock file left behind by a process that no longer holds it.
	Stale  bool
	Holder *Holder
}

// AgentLockPath is the lock file for one agent id.
func AgentLockPath(dir string, agentID int) string {
	return filepath.Join(dir, fmt.Sprintf("agent-%d.lock", agentID))
}

// AcquireAgent takes the lock for agentID under dir on behalf of runID,
// creating dir if needed. It fails when another local process already runs
// that agent.
func AcquireAgent(dir string, agentID int, runID string) (*FileLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := AgentLockPath(dir, agentID)
	l := NewFileLock(path, Holder{AgentID: agentID, RunID: runID, PID: os.Getpid(), StartedAt: time.Now().UTC()})
	ok, err := l.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		if h, err := ReadHolder(path); err == nil {
			return nil, fmt.Errorf("agent %d is already running (run %s, pid %d)", agentID, h.RunID, h.PID)
		}
		return nil, fmt.Errorf("agent %d is already running (lock %s)", agentID, path)
	}
	return l, nil
}

// Probe reports whether agentID's lock is currently held without taking it.
func Probe(dir string, agentID int) (Status, error) {
	path := AgentLockPath(dir, agentID)
	held, err := probeHeld(path)
	if err != nil {
		return Status{}, err
	}
	st := Status{Held: held}
	h, err := ReadHolder(path)
	switch {
	case err == nil:
		st.Holder = h
		st.Stale = !held
	case errors.Is(err, os.ErrNotExist):
	default:
		// Present but unreadable: a holder mid-write, or junk.
		st.Stale = !held
	}
	return st, nil
}

// ReadHolder decodes the holder recorded in a lock file.
func ReadHolder(path string) (*Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode lock holder %s: %w", path, err)
	}
	return &h, nil
}

func encodeHolder(h Holder) []byte {
	data, _ := json.Marshal(h)
	return append(data, '\n')
}
