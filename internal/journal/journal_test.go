package journal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
}

func TestLogRepeatsPrefixOnContinuationLines(t *testing.T) {
	var buf bytes.Buffer
	j := New(fixedClock, &buf)

	j.Log("Unknown result:\n=====\nbody")

	want := "2024-03-09T14:05:07 Unknown result:\n" +
		"2024-03-09T14:05:07 =====\n" +
		"2024-03-09T14:05:07 body\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestLogJoinsArgs(t *testing.T) {
	var buf bytes.Buffer
	j := New(fixedClock, &buf)
	j.Log("Right guess:", 42)
	j.Logf("reset after %d pops", 7)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "2024-03-09T14:05:07 Right guess: 42" {
		t.Errorf("unexpected line %q", lines[0])
	}
	if lines[1] != "2024-03-09T14:05:07 reset after 7 pops" {
		t.Errorf("unexpected line %q", lines[1])
	}
}

func TestOpenAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "guess.log")

	for i := 0; i < 2; i++ {
		var console bytes.Buffer
		j, err := Open(path, &console)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		j.Log("Start...")
		if err := j.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		if !strings.Contains(console.String(), "Start...") {
			t.Fatalf("console did not receive the record")
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n := strings.Count(string(data), "Start..."); n != 2 {
		t.Fatalf("expected 2 appended records, got %d", n)
	}
}

func TestOpenWithoutPathIsConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	j, err := Open("", &console)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	j.Log("hello")
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !strings.HasSuffix(console.String(), " hello\n") {
		t.Fatalf("unexpected console output %q", console.String())
	}
}
