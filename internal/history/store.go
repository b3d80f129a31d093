// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history persists finished batch runs and their outcome rows in a
// SQLite database so earlier runs can be listed after the process restarts.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

// DefaultLimit is the number of runs ListRuns returns when limit is not positive.
const DefaultLimit = 20

// ErrRunNotFound is returned by Run when no run has the given ID.
var ErrRunNotFound = errors.New("run not found")

// Store manages the run history database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the history database at path, creating parent
// directories and the schema as needed.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			spreadsheet_path TEXT NOT NULL,
			source TEXT NOT NULL,
			state TEXT NOT NULL,
			total INTEGER NOT NULL,
			processed INTEGER NOT NULL,
			downloaded INTEGER NOT NULL,
			report_path TEXT,
			error TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			identifier TEXT NOT NULL,
			status_kind TEXT NOT NULL,
			status_detail TEXT,
			source TEXT NOT NULL,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// RecordRun stores summary and its outcomes, replacing any earlier record
// of the same run.
func (s *Store) RecordRun(ctx context.Context, summary types.RunSummary, outcomes []types.Outcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, spreadsheet_path, source, state, total, processed, downloaded,
			report_path, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			spreadsheet_path=excluded.spreadsheet_path, source=excluded.source,
			state=excluded.state, total=excluded.total, processed=excluded.processed,
			downloaded=excluded.downloaded, report_path=excluded.report_path,
			error=excluded.error, started_at=excluded.started_at,
			finished_at=excluded.finished_at`,
		summary.ID, summary.SpreadsheetPath, string(summary.Source), string(summary.State),
		summary.Total, summary.Processed, summary.Downloaded,
		summary.ReportPath, summary.Error,
		formatTime(summary.StartedAt), formatTime(summary.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting run %s: %w", summary.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE run_id = ?`, summary.ID); err != nil {
		return fmt.Errorf("deleting old outcomes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes (run_id, position, identifier, status_kind, status_detail, source)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range outcomes {
		_, err := stmt.ExecContext(ctx,
			summary.ID, i, o.Identifier, string(o.Status.Kind), o.Status.Detail, string(o.Source),
		)
		if err != nil {
			return fmt.Errorf("inserting outcome %s: %w", o.Identifier, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns up to limit runs, most recently started first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]types.RunSummary, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, spreadsheet_path, source, state, total, processed, downloaded,
			report_path, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []types.RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns the summary of one run.
func (s *Store) Run(ctx context.Context, runID string) (types.RunSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, spreadsheet_path, source, state, total, processed, downloaded,
			report_path, error, started_at, finished_at
		 FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

// Outcomes returns a run's outcomes in row order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]types.Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identifier, status_kind, status_detail, source
		 FROM outcomes WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []types.Outcome
	for rows.Next() {
		var (
			o            types.Outcome
			kind, source string
			detail       sql.NullString
		)
		if err := rows.Scan(&o.Identifier, &kind, &detail, &source); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		o.Status = types.Status{Kind: types.StatusKind(kind), Detail: detail.String}
		o.Source = types.Source(source)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (types.RunSummary, error) {
	var (
		r                     types.RunSummary
		source, state         string
		reportPath, errMsg    sql.NullString
		startedAt, finishedAt sql.NullString
	)
	err := row.Scan(&r.ID, &r.SpreadsheetPath, &source, &state,
		&r.Total, &r.Processed, &r.Downloaded,
		&reportPath, &errMsg, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scanning run: %w", err)
	}
	r.Source = types.Source(source)
	r.State = types.RunState(state)
	r.ReportPath = reportPath.String
	r.Error = errMsg.String
	r.StartedAt = parseTime(startedAt.String)
	r.FinishedAt = parseTime(finishedAt.String)
	return r, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
