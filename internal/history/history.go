// Package history keeps a local journal of upload attempts in sqlite so the
// control API can answer "what happened to my upload" after the fact.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Attempt states. An attempt is terminal once it reaches done or error.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusError   = "error"
)

// ErrNotFound is returned when no attempt exists for an id.
var ErrNotFound = errors.New("upload attempt not found")

// Attempt is one journal row. Timestamps are RFC3339 strings; FinishedAt is
// empty while the attempt is still running.
type Attempt struct {
	ID         string `json:"uploadId"`
	SourcePath string `json:"sourcePath"`
	RecordID   int64  `json:"recordId,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"startedAt"`
	FinishedAt string `json:"finishedAt,omitempty"`
}

// Log is the journal handle. Safe for concurrent use.
type Log struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	for _, stmt := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`
CREATE TABLE IF NOT EXISTS attempts (
	id TEXT PRIMARY KEY,
	source_path TEXT NOT NULL,
	record_id INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT ''
);
`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init history schema: %w", err)
		}
	}
	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error { return l.db.Close() }

// Begin records the start of an attempt.
func (l *Log) Begin(ctx context.Context, id, sourcePath string) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO attempts (id, source_path, status, started_at)
VALUES (?, ?, ?, ?)`,
		id, sourcePath, StatusRunning, now())
	if err != nil {
		return fmt.Errorf("journal begin %s: %w", id, err)
	}
	return nil
}

// Finish records the terminal outcome of an attempt.
func (l *Log) Finish(ctx context.Context, id string, recordID int64, status, errMsg string) error {
	_, err := l.db.ExecContext(ctx, `
UPDATE attempts
SET record_id = ?, status = ?, error = ?, finished_at = ?
WHERE id = ?`,
		recordID, status, errMsg, now(), id)
	if err != nil {
		return fmt.Errorf("journal finish %s: %w", id, err)
	}
	return nil
}

// Get returns one attempt by id.
func (l *Log) Get(ctx context.Context, id string) (Attempt, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT id, source_path, record_id, status, error, started_at, finished_at
FROM attempts WHERE id = ?`, id)

	var a Attempt
	err := row.Scan(&a.ID, &a.SourcePath, &a.RecordID, &a.Status, &a.Error, &a.StartedAt, &a.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNotFound
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("journal get %s: %w", id, err)
	}
	return a, nil
}

// Recent returns the most recently started attempts, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id, source_path, record_id, status, error, started_at, finished_at
FROM attempts ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal list: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.SourcePath, &a.RecordID, &a.Status, &a.Error, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
