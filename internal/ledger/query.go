// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/sciqa/pkg/types"
)

// LatestRun selects the most recent run wherever a run ID is accepted.
const LatestRun = "latest"

// QueryOptions holds parameters for ledger queries.
type QueryOptions struct {
	// Query is the FTS5 search string over questions and answers.
	Query string

	// RunID restricts results to one run. LatestRun selects the newest.
	RunID string

	// Stage restricts failures to one stage.
	Stage string

	// Category filters dataset entries by record category.
	Category string

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// Run is one row of the runs table with its stage summaries.
type Run struct {
	ID         string         `json:"id" yaml:"id"`
	Input      string         `json:"input" yaml:"input"`
	Stages     []string       `json:"stages" yaml:"stages"`
	Status     string         `json:"status" yaml:"status"`
	StartedAt  string         `json:"started_at" yaml:"started_at"`
	FinishedAt string         `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Summaries  []StageSummary `json:"summaries,omitempty" yaml:"summaries,omitempty"`
}

// StageSummary is the recorded count line of one stage.
type StageSummary struct {
	Stage      string `json:"stage" yaml:"stage"`
	Checkpoint string `json:"checkpoint" yaml:"checkpoint"`
	Input      int    `json:"input" yaml:"input"`
	Kept       int    `json:"kept" yaml:"kept"`
	Filtered   int    `json:"filtered" yaml:"filtered"`
	Failed     int    `json:"failed" yaml:"failed"`
	ElapsedMS  int64  `json:"elapsed_ms" yaml:"elapsed_ms"`
}

// Failure is a record a stage did not keep.
type Failure struct {
	RunID       string `json:"run_id" yaml:"run_id"`
	Stage       string `json:"stage" yaml:"stage"`
	RecordIndex string `json:"record_index" yaml:"record_index"`
	Status      string `json:"status" yaml:"status"`
	Reason      string `json:"reason" yaml:"reason"`
}

// Entry is one recorded question with the record that produced it.
type Entry struct {
	RunID       string       `json:"run_id" yaml:"run_id"`
	RecordIndex string       `json:"record_index" yaml:"record_index"`
	Stage       string       `json:"stage" yaml:"stage"`
	Category    string       `json:"category" yaml:"category"`
	QA          types.QAItem `json:"qa" yaml:"qa"`
	Record      types.Record `json:"-" yaml:"-"`
}

// ResolveRun maps LatestRun to the newest run ID and returns other
// values unchanged.
func (s *Store) ResolveRun(ctx context.Context, id string) (string, error) {
	if id != LatestRun {
		return id, nil
	}
	var latest string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("ledger has no runs")
	}
	if err != nil {
		return "", fmt.Errorf("looking up latest run: %w", err)
	}
	return latest, nil
}

// Runs lists runs, newest first, each with its stage summaries in
// execution order.
func (s *Store) Runs(ctx context.Context, maxResults int) ([]Run, error) {
	if maxResults <= 0 {
		maxResults = s.maxResults
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input, stages, status, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, maxResults)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			stagesJSON string
			finished   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Input, &stagesJSON, &r.Status, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		json.Unmarshal([]byte(stagesJSON), &r.Stages)
		r.FinishedAt = finished.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		sums, err := s.summaries(ctx, runs[i].ID, runs[i].Stages)
		if err != nil {
			return nil, err
		}
		runs[i].Summaries = sums
	}
	return runs, nil
}

func (s *Store) summaries(ctx context.Context, runID string, order []string) ([]StageSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, checkpoint, input, kept, filtered, failed, elapsed_ms
		 FROM stage_summaries WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying stage summaries: %w", err)
	}
	defer rows.Close()

	byStage := make(map[string]StageSummary)
	for rows.Next() {
		var (
			ss         StageSummary
			checkpoint sql.NullString
		)
		if err := rows.Scan(&ss.Stage, &checkpoint, &ss.Input, &ss.Kept, &ss.Filtered, &ss.Failed, &ss.ElapsedMS); err != nil {
			return nil, fmt.Errorf("scanning stage summary: %w", err)
		}
		ss.Checkpoint = checkpoint.String
		byStage[ss.Stage] = ss
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]StageSummary, 0, len(byStage))
	for _, name := range order {
		if ss, ok := byStage[name]; ok {
			out = append(out, ss)
		}
	}
	return out, nil
}

// Failures lists filtered and failed outcomes.
func (s *Store) Failures(ctx context.Context, opts QueryOptions) ([]Failure, error) {
	runID, err := s.ResolveRun(ctx, opts.RunID)
	if err != nil {
		return nil, err
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(`SELECT run_id, stage, record_index, status, reason
		FROM outcomes WHERE status != 'transformed'`)
	if runID != "" {
		qb.WriteString(` AND run_id = ?`)
		args = append(args, runID)
	}
	if opts.Stage != "" {
		qb.WriteString(` AND stage = ?`)
		args = append(args, opts.Stage)
	}
	qb.WriteString(` ORDER BY recorded_at, rowid LIMIT ?`)
	args = append(args, s.limit(opts))

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying failures: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var (
			f      Failure
			reason sql.NullString
		)
		if err := rows.Scan(&f.RunID, &f.Stage, &f.RecordIndex, &f.Status, &reason); err != nil {
			return nil, fmt.Errorf("scanning failure: %w", err)
		}
		f.Reason = reason.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// Search queries recorded questions with optional full-text search and
// filters. Full-text results are ranked by relevance; others are sorted
// by run and record index.
func (s *Store) Search(ctx context.Context, opts QueryOptions) ([]Entry, error) {
	runID, err := s.ResolveRun(ctx, opts.RunID)
	if err != nil {
		return nil, err
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = opts.Query != ""
	)
	if useFTS {
		qb.WriteString(
			`SELECT d.run_id, d.record_index, d.stage, d.category, d.question, d.answer,
				d.explanation, d.record
			FROM dataset_fts
			JOIN dataset d ON d.rowid = dataset_fts.rowid
			WHERE dataset_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(
			`SELECT d.run_id, d.record_index, d.stage, d.category, d.question, d.answer,
				d.explanation, d.record
			FROM dataset d
			WHERE 1=1`)
	}
	if runID != "" {
		qb.WriteString(` AND d.run_id = ?`)
		args = append(args, runID)
	}
	if opts.Category != "" {
		qb.WriteString(` AND d.category = ?`)
		args = append(args, opts.Category)
	}
	if useFTS {
		qb.WriteString(` ORDER BY dataset_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY d.run_id, d.rowid`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, s.limit(opts))

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("searching dataset: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                     Entry
			category, explanation sql.NullString
			recordJSON            string
		)
		if err := rows.Scan(&e.RunID, &e.RecordIndex, &e.Stage, &category,
			&e.QA.Question, &e.QA.Answer, &explanation, &recordJSON); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Category = category.String
		e.QA.Explanation = explanation.String
		if err := json.Unmarshal([]byte(recordJSON), &e.Record); err != nil {
			return nil, fmt.Errorf("decoding record %s: %w", e.RecordIndex, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) limit(opts QueryOptions) int {
	if opts.MaxResults > 0 {
		return opts.MaxResults
	}
	return s.maxResults
}
