// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs stages over generations of records and persists a
// checkpoint after every stage. Checkpoints are the only resume mechanism;
// the driver keeps no state between stages.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/sciqa/pkg/types"
)

// Summary holds counts from one stage run.
type Summary struct {
	Stage       string
	Checkpoint  string
	Export      string
	Input       int
	Transformed int
	Filtered    int
	Failed      int
	Elapsed     time.Duration
}

// HasFailures reports whether any record failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Driver runs stages across generations.
type Driver struct {
	outDir      string
	format      types.CheckpointFormat
	progress    io.Writer
	logger      *slog.Logger
	observer    Observer
	maxInFlight int
}

// Option configures a Driver.
type Option func(*Driver)

// WithProgress sets the writer that receives per-record and per-stage
// progress lines.
func WithProgress(w io.Writer) Option {
	return func(d *Driver) { d.progress = w }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithObserver registers an outcome observer (e.g. the run ledger).
func WithObserver(o Observer) Option {
	return func(d *Driver) { d.observer = o }
}

// WithFormat selects the checkpoint serialization.
func WithFormat(f types.CheckpointFormat) Option {
	return func(d *Driver) { d.format = f }
}

// WithMaxInFlight bounds concurrent stage invocations. n <= 0 means one
// goroutine per record.
func WithMaxInFlight(n int) Option {
	return func(d *Driver) { d.maxInFlight = n }
}

// NewDriver returns a driver writing checkpoints under outDir.
func NewDriver(outDir string, opts ...Option) *Driver {
	d := &Driver{
		outDir:   outDir,
		format:   types.FormatJSON,
		progress: io.Discard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CheckpointPath returns where stage's checkpoint is written.
func (d *Driver) CheckpointPath(stage Stage) string {
	return filepath.Join(d.outDir, stage.Checkpoint()+"."+extension(d.format))
}

// ExportPath returns where an exporting stage's shaped output is written.
func (d *Driver) ExportPath(exp Exporter) string {
	return filepath.Join(d.outDir, exp.ExportName()+"."+extension(d.format))
}

// Run applies stage to every record of gen concurrently, waits for all of
// them, and returns the Transformed records in input order. The next
// generation is checkpointed, and exported when the stage is an Exporter,
// before Run returns; a write failure is the only error.
func (d *Driver) Run(ctx context.Context, gen []types.Record, stage Stage) ([]types.Record, Summary, error) {
	start := time.Now()
	summary := Summary{Stage: stage.Name(), Input: len(gen)}

	fmt.Fprintf(d.progress, "--- %s (%d records) ---\n", stage.Name(), len(gen))

	outcomes := make([]Outcome, len(gen))
	var g errgroup.Group
	if d.maxInFlight > 0 {
		g.SetLimit(d.maxInFlight)
	}
	for i := range gen {
		g.Go(func() error {
			outcomes[i] = d.apply(ctx, stage, gen[i])
			return nil
		})
	}
	_ = g.Wait()

	next := make([]types.Record, 0, len(gen))
	for i, o := range outcomes {
		idx := gen[i].Index
		switch o.Status {
		case StatusTransformed:
			next = append(next, o.Record)
			summary.Transformed++
		case StatusFiltered:
			fmt.Fprintf(d.progress, "filtered %s: %s\n", idx, o.Reason)
			summary.Filtered++
		default:
			fmt.Fprintf(d.progress, "failed  %s: %v\n", idx, o.Err)
			d.logger.Debug("stage failure", "stage", stage.Name(), "record", idx, "error", o.Err)
			summary.Failed++
		}
		if d.observer != nil {
			d.observer.ObserveOutcome(ctx, stage.Name(), idx, o)
		}
	}

	path := d.CheckpointPath(stage)
	if err := WriteCheckpoint(path, d.format, next); err != nil {
		return nil, summary, fmt.Errorf("writing %s checkpoint: %w", stage.Name(), err)
	}
	summary.Checkpoint = path
	if exp, ok := stage.(Exporter); ok {
		exportPath := d.ExportPath(exp)
		if err := WriteCheckpoint(exportPath, d.format, exp.Export(next)); err != nil {
			return nil, summary, fmt.Errorf("writing %s export: %w", stage.Name(), err)
		}
		summary.Export = exportPath
	}
	summary.Elapsed = time.Since(start)

	fmt.Fprintf(d.progress, "%s: kept %d, filtered %d, failed %d -> %s\n",
		stage.Name(), summary.Transformed, summary.Filtered, summary.Failed, path)
	d.logger.Info("stage complete", "stage", stage.Name(), "input", summary.Input,
		"kept", summary.Transformed, "filtered", summary.Filtered, "failed", summary.Failed,
		"elapsed", summary.Elapsed)

	if d.observer != nil {
		d.observer.ObserveStage(ctx, summary)
	}
	return next, summary, nil
}

// RunAll chains stages, feeding each surviving generation to the next.
func (d *Driver) RunAll(ctx context.Context, gen []types.Record, stages []Stage) ([]types.Record, []Summary, error) {
	summaries := make([]Summary, 0, len(stages))
	for _, stage := range stages {
		next, summary, err := d.Run(ctx, gen, stage)
		summaries = append(summaries, summary)
		if err != nil {
			return nil, summaries, err
		}
		gen = next
	}
	return gen, summaries, nil
}

// apply invokes the stage, converting a panic into a Failed outcome for
// this record only.
func (d *Driver) apply(ctx context.Context, stage Stage, rec types.Record) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Failed(fmt.Errorf("stage %s panicked: %v", stage.Name(), r))
		}
	}()
	return stage.Apply(ctx, rec)
}
