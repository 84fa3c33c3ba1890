package timeline

import (
	"time"
)

// Run is one agent process lifetime.
type Run struct {
	RunID      string    `json:"run_id"`
	AgentID    int       `json:"agent_id"`
	AgentCount int       `json:"agent_count"`
	SharedSeed int64     `json:"shared_seed"`
	SpaceSize  int       `json:"space_size"`
	Endpoint   string    `json:"endpoint"`
	StartedAt  time.Time `json:"started_at"`
}

// AttemptRecord is a single submitted guess and its classification.
type AttemptRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Candidate  int       `json:"candidate"`
	Outcome    string    `json:"outcome"` // correct, incorrect, ambiguous, transport_failure
	Counter    *int      `json:"counter,omitempty"`
	Fallback   bool      `json:"fallback"`
	Body       string    `json:"body,omitempty"` // kept for ambiguous outcomes only
	ErrorText  string    `json:"error_text,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventRecord is a loop-level event such as a reset or fallback activation.
type EventRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	EventType string    `json:"event_type"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// AttemptFilter narrows ListAttempts.
type AttemptFilter struct {
	RunID   string
	Outcome string
	Limit   int
	Offset  int
}

// RunStats summarises the attempts of a run.
type RunStats struct {
	RunID        string         `json:"run_id"`
	Total        int            `json:"total"`
	ByOutcome    map[string]int `json:"by_outcome"`
	LastCounter  *int           `json:"last_counter,omitempty"`
	FallbackHits int            `json:"fallback_hits"`
}

const (
	OutcomeCorrect          = "correct"
	OutcomeIncorrect        = "incorrect"
	OutcomeAmbiguous        = "ambiguous"
	OutcomeTransportFailure = "transport_failure"
)

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	agent_id INTEGER NOT NULL,
	agent_count INTEGER NOT NULL,
	shared_seed INTEGER NOT NULL,
	space_size INTEGER NOT NULL,
	endpoint TEXT NOT NULL DEFAULT '',
	started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	candidate INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	counter INTEGER,
	fallback BOOLEAN NOT NULL DEFAULT 0,
	body TEXT NOT NULL DEFAULT '',
	error_text TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id, id);
CREATE INDEX IF NOT EXISTS idx_attempts_outcome ON attempts(outcome);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	event_type TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, id);
`
