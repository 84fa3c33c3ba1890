package timeline

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// TimelineService persists runs, attempts and loop events. It is diagnostic
// history only; nothing reads it back to resume a partition.
type TimelineService struct {
	db *sql.DB
}

func NewTimelineService(dbPath string) (*TimelineService, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create timeline dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &TimelineService{db: db}, nil
}

func (s *TimelineService) Close() error {
	return s.db.Close()
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// StartRun inserts the run row. RunID and StartedAt are filled in if empty.
func (s *TimelineService) StartRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
	INSERT INTO runs (run_id, agent_id, agent_count, shared_seed, space_size, endpoint, started_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.AgentID, run.AgentCount, run.SharedSeed, run.SpaceSize, run.Endpoint, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *TimelineService) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
	SELECT run_id, agent_id, agent_count, shared_seed, space_size, endpoint, started_at
	FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.AgentID, &r.AgentCount, &r.SharedSeed, &r.SpaceSize, &r.Endpoint, &r.StartedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordAttempt stores one classified guess.
func (s *TimelineService) RecordAttempt(rec *AttemptRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var counter interface{}
	if rec.Counter != nil {
		counter = *rec.Counter
	}
	result, err := s.db.Exec(`
	INSERT INTO attempts (run_id, candidate, outcome, counter, fallback, body, error_text, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Candidate, rec.Outcome, counter, rec.Fallback, rec.Body, rec.ErrorText, rec.DurationMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	rec.ID, _ = result.LastInsertId()
	return nil
}

// ListAttempts returns attempts newest first.
func (s *TimelineService) ListAttempts(filter AttemptFilter) ([]AttemptRecord, error) {
	query := `SELECT id, run_id, candidate, outcome, counter, fallback, body, error_text, duration_ms, created_at FROM attempts WHERE 1=1`
	args := []interface{}{}

	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.Outcome != "" {
		query += " AND outcome = ?"
		args = append(args, filter.Outcome)
	}

	query += " ORDER BY id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var a AttemptRecord
		var counter sql.NullInt64
		if err := rows.Scan(&a.ID, &a.RunID, &a.Candidate, &a.Outcome, &counter, &a.Fallback, &a.Body, &a.ErrorText, &a.DurationMs, &a.CreatedAt); err != nil {
			return nil, err
		}
		if counter.Valid {
			v := int(counter.Int64)
			a.Counter = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Successes returns correct guesses across all runs, newest first.
func (s *TimelineService) Successes(limit int) ([]AttemptRecord, error) {
	return s.ListAttempts(AttemptFilter{Outcome: OutcomeCorrect, Limit: limit})
}

// RecordEvent stores a loop-level event.
func (s *TimelineService) RecordEvent(runID, eventType, detail string) error {
	_, err := s.db.Exec(`INSERT INTO events (run_id, event_type, detail, created_at) VALUES (?, ?, ?, ?)`,
		runID, eventType, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// ListEvents returns a run's events newest first.
func (s *TimelineService) ListEvents(runID string, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
	SELECT id, run_id, event_type, detail, created_at FROM events
	WHERE run_id = ? ORDER BY id DESC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.RunID, &e.EventType, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats aggregates a run's attempts.
func (s *TimelineService) Stats(runID string) (*RunStats, error) {
	stats := &RunStats{RunID: runID, ByOutcome: map[string]int{}}

	rows, err := s.db.Query(`SELECT outcome, COUNT(*) FROM attempts WHERE run_id = ? GROUP BY outcome`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		stats.ByOutcome[outcome] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM attempts WHERE run_id = ? AND fallback = 1`, runID).Scan(&stats.FallbackHits); err != nil {
		return nil, err
	}

	var last sql.NullInt64
	err = s.db.QueryRow(`SELECT counter FROM attempts WHERE run_id = ? AND counter IS NOT NULL ORDER BY id DESC LIMIT 1`, runID).Scan(&last)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, err
	case last.Valid:
		v := int(last.Int64)
		stats.LastCounter = &v
	}
	return stats, nil
}
