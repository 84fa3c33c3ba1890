// Package classify turns the raw result of one guess submission into an Outcome.
package classify

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrTransport marks a connection-level failure; the request never produced content.
	ErrTransport = errors.New("transport failure")
	// ErrAmbiguousResponse marks content that matched neither known marker.
	ErrAmbiguousResponse = errors.New("ambiguous response")
	// ErrCounterParse marks an unreadable attempt counter. It is treated as ambiguous.
	ErrCounterParse = errors.New("attempt counter parse failure")
)

// Kind is the outcome of a single guess.
type Kind int

const (
	Correct Kind = iota + 1
	Incorrect
	Ambiguous
	TransportFailure
)

func (k Kind) String() string {
	switch k {
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	case Ambiguous:
		return "ambiguous"
	case TransportFailure:
		return "transport_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Attempt is what came back from one submission.
type Attempt struct {
	Body string
	Err  error
}

// Outcome is the classified attempt. Counter is only meaningful when HasCounter is set.
type Outcome struct {
	Kind       Kind
	Counter    int
	HasCounter bool
	Body       string
	Err        error
}

// Markers are the literal text fragments the endpoint is known to emit.
type Markers struct {
	Success       string `json:"success"`
	Failure       string `json:"failure"`
	CounterPrefix string `json:"counterPrefix"`
	CounterSuffix string `json:"counterSuffix"`
}

// DefaultMarkers match guessthepin.com as of writing.
func DefaultMarkers() Markers {
	return Markers{
		Success:       "You guessed the PIN",
		Failure:       "is not the PIN",
		CounterPrefix: "guessed <strong>",
		CounterSuffix: "times</strong>",
	}
}

// Classifier maps attempts to outcomes. The zero value uses DefaultMarkers.
type Classifier struct {
	Markers Markers
}

// New returns a Classifier, filling empty markers with defaults.
func New(m Markers) *Classifier {
	d := DefaultMarkers()
	if m.Success == "" {
		m.Success = d.Success
	}
	if m.Failure == "" {
		m.Failure = d.Failure
	}
	if m.CounterPrefix == "" {
		m.CounterPrefix = d.CounterPrefix
	}
	if m.CounterSuffix == "" {
		m.CounterSuffix = d.CounterSuffix
	}
	return &Classifier{Markers: m}
}

// Classify is pure: it performs no I/O.
func (c *Classifier) Classify(a Attempt) Outcome {
	m := c.Markers
	if m == (Markers{}) {
		m = DefaultMarkers()
	}

	if a.Err != nil {
		err := a.Err
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, a.Err)
		}
		return Outcome{Kind: TransportFailure, Err: err}
	}

	if strings.Contains(a.Body, m.Success) {
		return Outcome{Kind: Correct, Body: a.Body}
	}

	counter, found, err := extractCounter(a.Body, m.CounterPrefix, m.CounterSuffix)

	if strings.Contains(a.Body, m.Failure) {
		if err != nil {
			return Outcome{Kind: Ambiguous, Body: a.Body, Err: err}
		}
		if !found {
			return Outcome{Kind: Ambiguous, Body: a.Body,
				Err: fmt.Errorf("%w: counter delimiters not found", ErrCounterParse)}
		}
		return Outcome{Kind: Incorrect, Counter: counter, HasCounter: true, Body: a.Body}
	}

	out := Outcome{Kind: Ambiguous, Body: a.Body, Err: ErrAmbiguousResponse}
	if err == nil && found {
		out.Counter = counter
		out.HasCounter = true
	}
	return out
}

var thousandsInt = regexp.MustCompile(`^(\d{1,3}(,\d{3})+|\d+)$`)

// extractCounter reads the integer between prefix and suffix. The prefix may
// appear zero times (found=false) or once; anything more fails closed.
func extractCounter(body, prefix, suffix string) (int, bool, error) {
	text := normalize(body)
	prefix = normalize(prefix)
	suffix = normalize(suffix)

	switch n := strings.Count(text, prefix); {
	case n == 0:
		return 0, false, nil
	case n > 1:
		return 0, false, fmt.Errorf("%w: counter prefix appears %d times", ErrCounterParse, n)
	}

	_, rest, _ := strings.Cut(text, prefix)
	raw, _, ok := strings.Cut(rest, suffix)
	if !ok {
		return 0, false, fmt.Errorf("%w: counter suffix not found", ErrCounterParse)
	}
	raw = strings.TrimSpace(raw)
	if !thousandsInt.MatchString(raw) {
		return 0, false, fmt.Errorf("%w: %q is not a number", ErrCounterParse, raw)
	}
	n, err := strconv.Atoi(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrCounterParse, err)
	}
	return n, true, nil
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	return strings.ReplaceAll(s, "\u00a0", " ")
}
