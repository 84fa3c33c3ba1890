package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KafClaw/pinguess/internal/bus"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestEncodeEvent(t *testing.T) {
	counter := 12795
	evt := &bus.Event{
		RunID: "run-1", AgentID: 2, AgentCount: 4, Type: bus.EventAttempt,
		Candidate: 42, Outcome: "incorrect", Counter: &counter,
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	msg, err := EncodeEvent(evt)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(msg.Key) != "agent-2" {
		t.Errorf("unexpected key %q", msg.Key)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != bus.EventAttempt {
		t.Errorf("unexpected headers %+v", msg.Headers)
	}
	var decoded map[string]any
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["candidate"].(float64) != 42 || decoded["counter"].(float64) != 12795 {
		t.Errorf("unexpected payload %v", decoded)
	}
}

func TestKafkaPublisherHandle(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{w: w, timeout: time.Second}

	p.Handle(&bus.Event{Type: bus.EventSuccess, Candidate: 7})
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}

	w.err = errors.New("broker down")
	p.Handle(&bus.Event{Type: bus.EventReset})
	if len(w.msgs) != 1 {
		t.Fatal("failed write should not be retried or buffered")
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatal("expected writer closed")
	}
}

func TestSlackNotifierPostsSuccessOnly(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, "#pins")
	n.Handle(&bus.Event{Type: bus.EventAttempt, Candidate: 1})
	n.Handle(&bus.Event{Type: bus.EventSuccess, AgentID: 1, AgentCount: 3, Candidate: 42})

	if len(bodies) != 1 {
		t.Fatalf("expected 1 webhook call, got %d", len(bodies))
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(bodies[0]), &payload); err != nil {
		t.Fatalf("decode webhook: %v", err)
	}
	if payload["channel"] != "#pins" {
		t.Errorf("unexpected channel %v", payload["channel"])
	}
	if text, _ := payload["text"].(string); !strings.Contains(text, "*0042*") || !strings.Contains(text, "agent 1/3") {
		t.Errorf("unexpected text %q", text)
	}
}

func TestSlackText(t *testing.T) {
	got := SlackText(&bus.Event{Type: bus.EventReset, AgentID: 0, AgentCount: 1, Message: "counter dropped from 105 to 60"})
	if !strings.Contains(got, "reset its partition (counter dropped from 105 to 60)") {
		t.Fatalf("unexpected text %q", got)
	}
}
