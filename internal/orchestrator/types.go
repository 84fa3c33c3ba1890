// Package orchestrator drives the guess loop: pull a candidate, submit it,
// classify the reply and react.
package orchestrator

import (
	"context"
	"time"

	"github.com/KafClaw/pinguess/internal/bus"
	"github.com/KafClaw/pinguess/internal/classify"
	"github.com/KafClaw/pinguess/internal/timeline"
)

// State is where the loop currently is.
type State int

const (
	Running State = iota
	BackoffShort
	BackoffLong
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case BackoffShort:
		return "backoff_short"
	case BackoffLong:
		return "backoff_long"
	default:
		return "unknown"
	}
}

// Default backoffs.
const (
	DefaultAmbiguousBackoff = 10 * time.Second
	DefaultTransportBackoff = 20 * time.Second
)

// Source serves candidates. *partition.Partitioner implements it.
type Source interface {
	Next() int
	Reset()
	InFallback() bool
	Pops() int
}

// Submitter sends one candidate to the endpoint. *transport.Client implements it.
type Submitter interface {
	Submit(ctx context.Context, candidate int) (string, error)
}

// Journal is the human-readable log sink. *journal.Journal implements it.
type Journal interface {
	Log(args ...any)
}

// Recorder persists attempts and events. *timeline.TimelineService implements it.
type Recorder interface {
	RecordAttempt(rec *timeline.AttemptRecord) error
	RecordEvent(runID, eventType, detail string) error
}

// Publisher receives loop events. *bus.EventBus implements it.
type Publisher interface {
	Publish(evt *bus.Event)
}

// Limiter paces submissions. *rate.Limiter implements it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Decision is the result of one loop iteration.
type Decision struct {
	Candidate     int
	Outcome       classify.Outcome
	ExternalReset bool // counter regressed; someone else found the code
	Reset         bool // partition was recomputed for any reason
	Backoff       time.Duration
}

// Stats is a snapshot of loop counters.
type Stats struct {
	Attempts    int
	Successes   int
	Resets      int
	Ambiguous   int
	Transport   int
	LastCounter int
	HasCounter  bool
	Fallback    bool
	State       State
}
