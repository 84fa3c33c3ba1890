// Package journal is the append-only, human-readable run log.
package journal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TimeLayout prefixes every line.
const TimeLayout = "2006-01-02T15:04:05"

// Journal writes timestamp-prefixed records to a file and a console.
// Continuation lines of a multi-line record repeat the prefix.
type Journal struct {
	mu      sync.Mutex
	file    *os.File
	out     []io.Writer
	nowFunc func() time.Time
}

// Open appends to path (created with parents if missing) and mirrors to console.
// An empty path keeps the journal console-only. A nil console is ignored.
func Open(path string, console io.Writer) (*Journal, error) {
	j := &Journal{nowFunc: time.Now}
	if console != nil {
		j.out = append(j.out, console)
	}
	if path == "" {
		return j, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j.file = f
	j.out = append(j.out, f)
	return j, nil
}

// New builds a journal over arbitrary writers; used by tests and embedding callers.
func New(now func() time.Time, w ...io.Writer) *Journal {
	if now == nil {
		now = time.Now
	}
	return &Journal{out: w, nowFunc: now}
}

// Log joins args with spaces, like fmt.Sprintln without the newline.
func (j *Journal) Log(args ...any) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	j.write(strings.Join(parts, " "))
}

// Logf formats a single record.
func (j *Journal) Logf(format string, args ...any) {
	j.write(fmt.Sprintf(format, args...))
}

func (j *Journal) write(msg string) {
	prefix := j.nowFunc().Format(TimeLayout) + " "
	record := prefix + strings.ReplaceAll(msg, "\n", "\n"+prefix) + "\n"

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, w := range j.out {
		_, _ = io.WriteString(w, record)
	}
}

// Close closes the log file, if any.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}
