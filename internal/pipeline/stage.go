// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"

	"github.com/pdiddy/sciqa/pkg/types"
)

// Status classifies the outcome of applying a stage to one record.
type Status int

const (
	StatusTransformed Status = iota
	StatusFiltered
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusTransformed:
		return "transformed"
	case StatusFiltered:
		return "filtered"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the result of one stage invocation. Only Transformed
// outcomes carry a record into the next generation.
type Outcome struct {
	Status Status
	Record types.Record
	Reason string
	Err    error
}

// Transformed keeps rec in the next generation.
func Transformed(rec types.Record) Outcome {
	return Outcome{Status: StatusTransformed, Record: rec}
}

// Filtered drops the record because it legitimately does not qualify.
func Filtered(reason string) Outcome {
	return Outcome{Status: StatusFiltered, Reason: reason}
}

// Failed drops the record because the stage could not process it.
func Failed(err error) Outcome {
	return Outcome{Status: StatusFailed, Err: err, Reason: err.Error()}
}

// Stage transforms one record. Implementations must be safe to call
// concurrently for distinct records and must not share mutable state
// across invocations, other than an injected limiter.
type Stage interface {
	// Name is the short stage label used in progress lines and the ledger.
	Name() string

	// Checkpoint is the checkpoint file name without extension.
	Checkpoint() string

	// Apply processes one record.
	Apply(ctx context.Context, rec types.Record) Outcome
}

// Exporter is implemented by a stage that also publishes a shaped view
// of its generation, e.g. the final dataset. The stage checkpoint is
// still the plain generation, so later stages can resume from it.
type Exporter interface {
	// ExportName is the export file name without extension.
	ExportName() string

	Export(gen []types.Record) any
}

// Observer is notified of every outcome and of each finished stage.
// Calls are made from the driver goroutine, never concurrently.
type Observer interface {
	ObserveOutcome(ctx context.Context, stage string, index types.RecordIndex, o Outcome)
	ObserveStage(ctx context.Context, summary Summary)
}
