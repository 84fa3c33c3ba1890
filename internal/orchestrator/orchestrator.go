package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/KafClaw/pinguess/internal/bus"
	"github.com/KafClaw/pinguess/internal/classify"
	"github.com/KafClaw/pinguess/internal/timeline"
	"github.com/KafClaw/pinguess/internal/transport"
	"golang.org/x/time/rate"
)

// Options wires a Loop. Source, Submitter and Journal are required.
type Options struct {
	RunID      string
	AgentID    int
	AgentCount int
	Width      int

	Source     Source
	Submitter  Submitter
	Classifier *classify.Classifier
	Journal    Journal

	Recorder  Recorder
	Publisher Publisher
	Limiter   Limiter
	Progress  io.Writer

	AmbiguousBackoff time.Duration
	TransportBackoff time.Duration

	// Sleep defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Loop is the per-agent guessing state machine. Step and Run must be called
// from a single goroutine; Stats may be read concurrently.
type Loop struct {
	opts Options

	mu          sync.Mutex
	state       State
	attempts    int
	successes   int
	resets      int
	ambiguous   int
	transport   int
	lastCounter int
	seenCounter bool
	fallback    bool
}

// New validates opts and fills defaults.
func New(opts Options) (*Loop, error) {
	if opts.Source == nil || opts.Submitter == nil || opts.Journal == nil {
		return nil, errors.New("orchestrator: source, submitter and journal are required")
	}
	if opts.Classifier == nil {
		opts.Classifier = classify.New(classify.Markers{})
	}
	if opts.Width <= 0 {
		opts.Width = 4
	}
	if opts.AgentCount <= 0 {
		opts.AgentCount = 1
	}
	if opts.AmbiguousBackoff <= 0 {
		opts.AmbiguousBackoff = DefaultAmbiguousBackoff
	}
	if opts.TransportBackoff <= 0 {
		opts.TransportBackoff = DefaultTransportBackoff
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	return &Loop{opts: opts}, nil
}

// NewLimiter returns a limiter for perSecond submissions, or nil when
// perSecond is not positive (the endpoint is then the only rate limiter).
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Run loops until ctx is cancelled and returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.opts.Journal.Log("Start...")
	l.event(bus.EventStart, 0, nil, fmt.Sprintf("agent %d/%d", l.opts.AgentID, l.opts.AgentCount))
	slog.Info("Guess loop started", "run", l.opts.RunID, "agent", l.opts.AgentID, "agents", l.opts.AgentCount)

	for {
		if _, err := l.Step(ctx); err != nil {
			s := l.Stats()
			slog.Info("Guess loop stopped", "run", l.opts.RunID, "attempts", s.Attempts, "successes", s.Successes, "reason", err)
			return err
		}
	}
}

// Step performs one iteration. The only errors it returns come from ctx.
func (l *Loop) Step(ctx context.Context) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if l.opts.Limiter != nil {
		if err := l.opts.Limiter.Wait(ctx); err != nil {
			// rate.Limiter refuses early when the next token lands past the
			// deadline; the loop still ends only when ctx does.
			slog.Debug("Limiter wait refused", "error", err)
			<-ctx.Done()
			return Decision{}, ctx.Err()
		}
	}

	src := l.opts.Source
	wasFallback := src.InFallback()
	candidate := src.Next()
	if !wasFallback && src.InFallback() {
		l.opts.Journal.Log("Agent trials done. Try random numbers now.")
		l.event(bus.EventFallback, candidate, nil, fmt.Sprintf("partition exhausted after %d pops", src.Pops()-1))
	}
	fallback := src.InFallback()

	started := time.Now()
	body, subErr := l.opts.Submitter.Submit(ctx, candidate)
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	out := l.opts.Classifier.Classify(classify.Attempt{Body: body, Err: subErr})
	d := Decision{Candidate: candidate, Outcome: out}
	label := transport.FormatCandidate(candidate, l.opts.Width)
	progress := fmt.Sprintf("%04d - %s : ", src.Pops(), label)

	l.mu.Lock()
	l.attempts++
	l.fallback = fallback
	external := out.HasCounter && l.seenCounter && out.Counter < l.lastCounter
	prev := l.lastCounter
	if out.HasCounter {
		l.lastCounter = out.Counter
		l.seenCounter = true
	}
	l.mu.Unlock()

	l.record(candidate, out, fallback, time.Since(started))

	if external {
		l.opts.Journal.Log("Some one else guessed correctly. Reset.")
		l.reset(candidate, out, fmt.Sprintf("counter dropped from %d to %d", prev, out.Counter))
		d.ExternalReset = true
		d.Reset = true
	}

	switch out.Kind {
	case classify.Correct:
		fmt.Fprintln(l.opts.Progress, progress+"RIGHT")
		l.opts.Journal.Log("Hell yeah! Right guess:", label)
		l.mu.Lock()
		l.successes++
		l.mu.Unlock()
		l.event(bus.EventSuccess, candidate, &out, "right guess "+label)
		l.reset(candidate, out, "right guess "+label)
		d.Reset = true

	case classify.Incorrect:
		fmt.Fprintln(l.opts.Progress, progress+"Nope")
		l.event(bus.EventAttempt, candidate, &out, "")

	case classify.Ambiguous:
		fmt.Fprintln(l.opts.Progress, progress+"?")
		l.opts.Journal.Log("Unexpected result: " + errText(out.Err) + "\n" + strings.Repeat("=", 30) + "\n" + out.Body)
		l.mu.Lock()
		l.ambiguous++
		l.mu.Unlock()
		d.Backoff = l.opts.AmbiguousBackoff
		if err := l.backoff(ctx, BackoffShort, candidate, &out, d.Backoff); err != nil {
			return d, err
		}

	case classify.TransportFailure:
		fmt.Fprintln(l.opts.Progress, progress+"kicked")
		l.opts.Journal.Log("Oooops, we got kicked :) " + errText(out.Err))
		l.mu.Lock()
		l.transport++
		l.mu.Unlock()
		d.Backoff = l.opts.TransportBackoff
		if err := l.backoff(ctx, BackoffLong, candidate, &out, d.Backoff); err != nil {
			return d, err
		}

	default:
		panic(fmt.Sprintf("orchestrator: unhandled outcome kind %s", out.Kind))
	}

	return d, nil
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Attempts:    l.attempts,
		Successes:   l.successes,
		Resets:      l.resets,
		Ambiguous:   l.ambiguous,
		Transport:   l.transport,
		LastCounter: l.lastCounter,
		HasCounter:  l.seenCounter,
		Fallback:    l.fallback,
		State:       l.state,
	}
}

func (l *Loop) reset(candidate int, out classify.Outcome, reason string) {
	l.opts.Source.Reset()
	l.mu.Lock()
	l.resets++
	l.fallback = false
	l.mu.Unlock()
	l.event(bus.EventReset, candidate, &out, reason)
}

func (l *Loop) backoff(ctx context.Context, state State, candidate int, out *classify.Outcome, d time.Duration) error {
	l.setState(state)
	defer l.setState(Running)
	l.event(bus.EventBackoff, candidate, out, fmt.Sprintf("%s for %s", state, d))
	slog.Debug("Guess loop backing off", "state", state.String(), "duration", d)
	return l.opts.Sleep(ctx, d)
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Loop) record(candidate int, out classify.Outcome, fallback bool, took time.Duration) {
	if l.opts.Recorder == nil {
		return
	}
	rec := &timeline.AttemptRecord{
		RunID:      l.opts.RunID,
		Candidate:  candidate,
		Outcome:    out.Kind.String(),
		Fallback:   fallback,
		ErrorText:  errText(out.Err),
		DurationMs: took.Milliseconds(),
	}
	if out.HasCounter {
		v := out.Counter
		rec.Counter = &v
	}
	if out.Kind == classify.Ambiguous {
		rec.Body = out.Body
	}
	if err := l.opts.Recorder.RecordAttempt(rec); err != nil {
		slog.Warn("Failed to record attempt", "candidate", candidate, "error", err)
	}
}

func (l *Loop) event(eventType string, candidate int, out *classify.Outcome, message string) {
	if l.opts.Recorder != nil && eventType != bus.EventAttempt {
		if err := l.opts.Recorder.RecordEvent(l.opts.RunID, eventType, message); err != nil {
			slog.Warn("Failed to record event", "type", eventType, "error", err)
		}
	}
	if l.opts.Publisher == nil {
		return
	}
	evt := &bus.Event{
		RunID:      l.opts.RunID,
		AgentID:    l.opts.AgentID,
		AgentCount: l.opts.AgentCount,
		Type:       eventType,
		Candidate:  candidate,
		Message:    message,
	}
	if out != nil {
		evt.Outcome = out.Kind.String()
		if out.HasCounter {
			v := out.Counter
			evt.Counter = &v
		}
	}
	l.opts.Publisher.Publish(evt)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
