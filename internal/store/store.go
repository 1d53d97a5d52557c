// Package store persists run history.
//
// Recording is optional and purely informational: the harness verdict is
// decided before anything is written here. The history exists so that
// per-case wall-clock timings can be compared across runs (for example
// after swapping the executable under test) without re-deriving them from
// scrollback.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store provides durable storage for harness run history.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// Run is one harness invocation over a whole corpus.
type Run struct {
	ID         string
	StartedAt  time.Time
	Executable string
	Passed     int
	Failed     int
}

// CaseResult is the recorded outcome of a single case within a run.
type CaseResult struct {
	RunID      string
	Path       string
	StdinBytes int
	Expected   string
	Actual     string
	Pass       bool
	ElapsedMS  float64
}

// NewRun creates a run record with a fresh unique identifier.
// Passed/Failed are filled in by the caller once the run completes.
func NewRun(executable string, startedAt time.Time) Run {
	return Run{
		ID:         uuid.NewString(),
		StartedAt:  startedAt,
		Executable: executable,
	}
}

// Open creates or opens the history database at the given path.
// Applies required pragmas and the schema automatically; safe to call on
// an existing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent recording.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// RecordRun writes a run and all its case results in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run, results []CaseResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, executable, passed, failed)
		VALUES (?, ?, ?, ?, ?)
	`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Executable,
		run.Passed,
		run.Failed,
	)
	if err != nil {
		return fmt.Errorf("record run: insert run: %w", err)
	}

	for _, r := range results {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO case_results
			(run_id, path, stdin_bytes, expected, actual, pass, elapsed_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID,
			r.Path,
			r.StdinBytes,
			r.Expected,
			r.Actual,
			r.Pass,
			r.ElapsedMS,
		)
		if err != nil {
			return fmt.Errorf("record run: insert case %s: %w", r.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run: commit: %w", err)
	}

	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, executable, passed, failed
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedAt string
		if err := rows.Scan(&run.ID, &startedAt, &run.Executable, &run.Passed, &run.Failed); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("list runs: parse started_at %q: %w", startedAt, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CaseHistory returns the recorded results for one source path across runs,
// newest first. Useful for eyeballing timing drift between executables.
func (s *Store) CaseHistory(ctx context.Context, path string, limit int) ([]CaseResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.run_id, c.path, c.stdin_bytes, c.expected, c.actual, c.pass, c.elapsed_ms
		FROM case_results c
		JOIN runs r ON r.id = c.run_id
		WHERE c.path = ?
		ORDER BY r.started_at DESC, c.id ASC
		LIMIT ?
	`, path, limit)
	if err != nil {
		return nil, fmt.Errorf("case history: %w", err)
	}
	defer rows.Close()

	var results []CaseResult
	for rows.Next() {
		var r CaseResult
		if err := rows.Scan(&r.RunID, &r.Path, &r.StdinBytes, &r.Expected, &r.Actual, &r.Pass, &r.ElapsedMS); err != nil {
			return nil, fmt.Errorf("case history: scan: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
