// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records pipeline runs in SQLite: one row per run, per
// stage summary, and per record outcome, plus the generated questions
// with a full-text index over question and answer.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/sciqa/internal/pipeline"
	"github.com/pdiddy/sciqa/pkg/types"
)

// Run states.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusAborted  = "aborted"
)

const defaultMaxResults = 20

// Fixed width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages the ledger database.
type Store struct {
	db         *sql.DB
	path       string
	maxResults int
}

// Open opens or creates the ledger at cfg.Path and creates the schema if
// it does not exist.
func Open(cfg types.LedgerConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("ledger path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// The driver goroutine is the only writer.
	db.SetMaxOpenConns(1)

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	s := &Store{db: db, path: cfg.Path, maxResults: maxResults}
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

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			input TEXT NOT NULL,
			stages TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS stage_summaries (
			run_id TEXT NOT NULL REFERENCES runs(id),
			stage TEXT NOT NULL,
			checkpoint TEXT,
			input INTEGER NOT NULL,
			kept INTEGER NOT NULL,
			filtered INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			PRIMARY KEY (run_id, stage)
		)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			run_id TEXT NOT NULL REFERENCES runs(id),
			stage TEXT NOT NULL,
			record_index TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			recorded_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id, status)`,
		`CREATE TABLE IF NOT EXISTS dataset (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			record_index TEXT NOT NULL,
			stage TEXT NOT NULL,
			category TEXT,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			explanation TEXT,
			record TEXT NOT NULL,
			UNIQUE (run_id, record_index)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='dataset_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		return nil
	}

	ftsStatements := []string{
		`CREATE VIRTUAL TABLE dataset_fts USING fts5(question, answer, content=dataset, content_rowid=rowid)`,
		`CREATE TRIGGER dataset_ai AFTER INSERT ON dataset BEGIN
			INSERT INTO dataset_fts(rowid, question, answer) VALUES (new.rowid, new.question, new.answer);
		END`,
		`CREATE TRIGGER dataset_ad AFTER DELETE ON dataset BEGIN
			INSERT INTO dataset_fts(dataset_fts, rowid, question, answer) VALUES('delete', old.rowid, old.question, old.answer);
		END`,
		`CREATE TRIGGER dataset_au AFTER UPDATE ON dataset BEGIN
			INSERT INTO dataset_fts(dataset_fts, rowid, question, answer) VALUES('delete', old.rowid, old.question, old.answer);
			INSERT INTO dataset_fts(rowid, question, answer) VALUES (new.rowid, new.question, new.answer);
		END`,
	}
	for _, stmt := range ftsStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	return nil
}

// BeginRun registers a new run and returns a Recorder bound to it.
func (s *Store) BeginRun(ctx context.Context, input string, stages []string, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	names, err := json.Marshal(stages)
	if err != nil {
		return nil, fmt.Errorf("encoding stage list: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input, stages, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, input, string(names), StatusRunning, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}
	return &Recorder{store: s, runID: id, logger: logger}, nil
}

// Recorder writes one run's outcomes. It implements pipeline.Observer;
// write errors are logged and never interrupt the run.
type Recorder struct {
	store  *Store
	runID  string
	logger *slog.Logger
}

var _ pipeline.Observer = (*Recorder)(nil)

// RunID returns the run identifier.
func (r *Recorder) RunID() string { return r.runID }

// ObserveOutcome records the outcome and keeps the dataset table in step:
// a surviving record that carries a question is upserted, a dropped one
// is removed.
func (r *Recorder) ObserveOutcome(ctx context.Context, stage string, index types.RecordIndex, o pipeline.Outcome) {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, stage, record_index, status, reason, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.runID, stage, string(index), o.Status.String(), o.Reason, now(),
	)
	if err != nil {
		r.logger.Warn("ledger: recording outcome", "stage", stage, "record", index, "error", err)
		return
	}
	if o.Status != pipeline.StatusTransformed {
		if err := r.store.dropEntry(ctx, r.runID, index); err != nil {
			r.logger.Warn("ledger: dropping dataset entry", "stage", stage, "record", index, "error", err)
		}
		return
	}
	if o.Record.QA == nil {
		return
	}
	if err := r.store.putEntry(ctx, r.runID, stage, o.Record); err != nil {
		r.logger.Warn("ledger: recording dataset entry", "stage", stage, "record", index, "error", err)
	}
}

// ObserveStage records the per-stage counts.
func (r *Recorder) ObserveStage(ctx context.Context, sum pipeline.Summary) {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO stage_summaries (run_id, stage, checkpoint, input, kept, filtered, failed, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, stage) DO UPDATE SET
			checkpoint=excluded.checkpoint, input=excluded.input, kept=excluded.kept,
			filtered=excluded.filtered, failed=excluded.failed, elapsed_ms=excluded.elapsed_ms`,
		r.runID, sum.Stage, sum.Checkpoint, sum.Input, sum.Transformed, sum.Filtered, sum.Failed,
		sum.Elapsed.Milliseconds(),
	)
	if err != nil {
		r.logger.Warn("ledger: recording stage summary", "stage", sum.Stage, "error", err)
	}
}

// Finish marks the run complete, or aborted when runErr is non-nil.
func (r *Recorder) Finish(ctx context.Context, runErr error) error {
	status := StatusComplete
	if runErr != nil {
		status = StatusAborted
	}
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`, status, now(), r.runID)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", r.runID, err)
	}
	return nil
}

func (s *Store) putEntry(ctx context.Context, runID, stage string, rec types.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dataset (run_id, record_index, stage, category, question, answer, explanation, record)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, record_index) DO UPDATE SET
			stage=excluded.stage, category=excluded.category, question=excluded.question,
			answer=excluded.answer, explanation=excluded.explanation, record=excluded.record`,
		runID, string(rec.Index), stage, rec.Category,
		rec.QA.Question, rec.QA.Answer, rec.QA.Explanation, string(data),
	)
	return err
}

func (s *Store) dropEntry(ctx context.Context, runID string, index types.RecordIndex) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM dataset WHERE run_id = ? AND record_index = ?`, runID, string(index))
	return err
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}
