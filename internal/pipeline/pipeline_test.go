// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/sciqa/pkg/types"
)

// funcStage adapts a function into a Stage for tests.
type funcStage struct {
	name string
	fn   func(ctx context.Context, rec types.Record) Outcome
}

func (s funcStage) Name() string       { return s.name }
func (s funcStage) Checkpoint() string { return "step_" + s.name }
func (s funcStage) Apply(ctx context.Context, rec types.Record) Outcome {
	return s.fn(ctx, rec)
}

type exportStage struct{ funcStage }

func (exportStage) ExportName() string { return "dataset" }

func (exportStage) Export(gen []types.Record) any {
	out := make([]string, len(gen))
	for i, r := range gen {
		out[i] = string(r.Index)
	}
	return out
}

type recordingObserver struct {
	outcomes  map[types.RecordIndex]Status
	summaries []Summary
}

func (o *recordingObserver) ObserveOutcome(_ context.Context, _ string, idx types.RecordIndex, out Outcome) {
	if o.outcomes == nil {
		o.outcomes = make(map[types.RecordIndex]Status)
	}
	o.outcomes[idx] = out.Status
}

func (o *recordingObserver) ObserveStage(_ context.Context, s Summary) {
	o.summaries = append(o.summaries, s)
}

func generation(n int) []types.Record {
	gen := make([]types.Record, n)
	for i := range gen {
		gen[i] = types.Record{Index: types.RecordIndex(strconv.Itoa(i))}
	}
	return gen
}

func quietDriver(t *testing.T, opts ...Option) (*Driver, *bytes.Buffer) {
	t.Helper()
	var progress bytes.Buffer
	opts = append([]Option{
		WithProgress(&progress),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return NewDriver(t.TempDir(), opts...), &progress
}

func TestRun_PreservesInputOrder(t *testing.T) {
	d, _ := quietDriver(t)
	gen := generation(20)

	// Later records finish first.
	stage := funcStage{name: "slow", fn: func(_ context.Context, rec types.Record) Outcome {
		n, _ := strconv.Atoi(string(rec.Index))
		time.Sleep(time.Duration(20-n) * time.Millisecond)
		rec.Context = "seen"
		return Transformed(rec)
	}}

	next, summary, err := d.Run(context.Background(), gen, stage)
	require.NoError(t, err)
	require.Len(t, next, 20)
	for i, rec := range next {
		assert.Equal(t, types.RecordIndex(strconv.Itoa(i)), rec.Index)
		assert.Equal(t, "seen", rec.Context)
	}
	assert.Equal(t, 20, summary.Transformed)
}

func TestRun_DropsFilteredAndFailed(t *testing.T) {
	d, progress := quietDriver(t)
	obs := &recordingObserver{}
	d.observer = obs
	gen := generation(9)

	stage := funcStage{name: "mixed", fn: func(_ context.Context, rec types.Record) Outcome {
		n, _ := strconv.Atoi(string(rec.Index))
		switch n % 3 {
		case 0:
			return Transformed(rec)
		case 1:
			return Filtered("not biomedical")
		default:
			return Failed(errors.New("backend down"))
		}
	}}

	next, summary, err := d.Run(context.Background(), gen, stage)
	require.NoError(t, err)

	var kept []types.RecordIndex
	for _, r := range next {
		kept = append(kept, r.Index)
	}
	assert.Equal(t, []types.RecordIndex{"0", "3", "6"}, kept)
	assert.LessOrEqual(t, len(next), len(gen))
	assert.Equal(t, Summary{Stage: "mixed", Input: 9, Transformed: 3, Filtered: 3, Failed: 3,
		Checkpoint: summary.Checkpoint, Elapsed: summary.Elapsed}, summary)
	assert.True(t, summary.HasFailures())

	assert.Contains(t, progress.String(), "failed  2: backend down")
	assert.Contains(t, progress.String(), "filtered 1: not biomedical")

	require.Len(t, obs.outcomes, 9)
	assert.Equal(t, StatusFailed, obs.outcomes["5"])
	require.Len(t, obs.summaries, 1)
}

func TestRun_FailureDoesNotCancelSiblings(t *testing.T) {
	d, _ := quietDriver(t)
	gen := generation(5)
	var completed int32

	stage := funcStage{name: "isolated", fn: func(ctx context.Context, rec types.Record) Outcome {
		if rec.Index == "0" {
			return Failed(errors.New("first one fails immediately"))
		}
		select {
		case <-ctx.Done():
			return Failed(ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
		atomic.AddInt32(&completed, 1)
		return Transformed(rec)
	}}

	next, _, err := d.Run(context.Background(), gen, stage)
	require.NoError(t, err)
	assert.Len(t, next, 4)
	assert.Equal(t, int32(4), atomic.LoadInt32(&completed))
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	d, _ := quietDriver(t)
	gen := generation(3)

	stage := funcStage{name: "panicky", fn: func(_ context.Context, rec types.Record) Outcome {
		if rec.Index == "1" {
			panic("nil map")
		}
		return Transformed(rec)
	}}

	next, summary, err := d.Run(context.Background(), gen, stage)
	require.NoError(t, err)
	assert.Len(t, next, 2)
	assert.Equal(t, 1, summary.Failed)
}

func TestRun_MaxInFlight(t *testing.T) {
	d, _ := quietDriver(t, WithMaxInFlight(2))
	gen := generation(10)
	var inFlight, peak int32

	stage := funcStage{name: "bounded", fn: func(_ context.Context, rec types.Record) Outcome {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return Transformed(rec)
	}}

	next, _, err := d.Run(context.Background(), gen, stage)
	require.NoError(t, err)
	assert.Len(t, next, 10)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRun_WritesCheckpoint(t *testing.T) {
	for _, format := range []types.CheckpointFormat{types.FormatJSON, types.FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			d, _ := quietDriver(t, WithFormat(format))
			gen := generation(3)
			gen[1].Images = []types.ImageDescriptor{{Index: 1, Caption: "H&E stain"}}

			stage := funcStage{name: "keep", fn: func(_ context.Context, rec types.Record) Outcome {
				rec.Category = "Clinical Medicine"
				return Transformed(rec)
			}}

			next, summary, err := d.Run(context.Background(), gen, stage)
			require.NoError(t, err)
			assert.Equal(t, d.CheckpointPath(stage), summary.Checkpoint)
			assert.Equal(t, "."+string(format), filepath.Ext(summary.Checkpoint))

			loaded, err := LoadGeneration(summary.Checkpoint)
			require.NoError(t, err)
			assert.Equal(t, next, loaded)
		})
	}
}

func TestRun_ExporterWritesSeparateFile(t *testing.T) {
	d, _ := quietDriver(t)
	stage := exportStage{funcStage{name: "final", fn: func(_ context.Context, rec types.Record) Outcome {
		return Transformed(rec)
	}}}

	next, summary, err := d.Run(context.Background(), generation(2), stage)
	require.NoError(t, err)
	assert.Equal(t, d.ExportPath(stage), summary.Export)

	data, err := os.ReadFile(summary.Export)
	require.NoError(t, err)
	assert.JSONEq(t, `["0","1"]`, string(data))

	loaded, err := LoadGeneration(summary.Checkpoint)
	require.NoError(t, err)
	assert.Equal(t, next, loaded)
}

func TestRunAll_ShrinksMonotonically(t *testing.T) {
	d, _ := quietDriver(t)
	gen := generation(12)

	dropEvery := func(k int) Stage {
		return funcStage{name: fmt.Sprintf("drop%d", k), fn: func(_ context.Context, rec types.Record) Outcome {
			n, _ := strconv.Atoi(string(rec.Index))
			if n%k == 0 {
				return Filtered("divisible")
			}
			return Transformed(rec)
		}}
	}

	final, summaries, err := d.RunAll(context.Background(), gen, []Stage{dropEvery(2), dropEvery(3), dropEvery(5)})
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	prev := len(gen)
	for _, s := range summaries {
		assert.Equal(t, prev, s.Input)
		assert.LessOrEqual(t, s.Transformed, s.Input)
		prev = s.Transformed
	}

	var kept []types.RecordIndex
	for _, r := range final {
		kept = append(kept, r.Index)
	}
	assert.Equal(t, []types.RecordIndex{"1", "7", "11"}, kept)
}

func TestRunAll_ResumeFromCheckpointMatches(t *testing.T) {
	d, _ := quietDriver(t)
	gen := generation(6)

	first := funcStage{name: "odd", fn: func(_ context.Context, rec types.Record) Outcome {
		n, _ := strconv.Atoi(string(rec.Index))
		if n%2 == 0 {
			return Filtered("even")
		}
		return Transformed(rec)
	}}
	second := funcStage{name: "tag", fn: func(_ context.Context, rec types.Record) Outcome {
		rec.Category = "tagged-" + string(rec.Index)
		return Transformed(rec)
	}}

	full, _, err := d.RunAll(context.Background(), gen, []Stage{first, second})
	require.NoError(t, err)

	resumed, err := LoadGeneration(d.CheckpointPath(first))
	require.NoError(t, err)
	again, _, err := d.RunAll(context.Background(), resumed, []Stage{second})
	require.NoError(t, err)

	assert.Equal(t, full, again)
}

func TestLoadCorpus(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadCorpus(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrCorpusMissing)

	path := filepath.Join(dir, "corpus.json")
	corpus := `[
		{"original_sample_index": 7, "text_list": ["Cells were stained", null, ") and imaged."],
		 "back_info": "bg", "image_info": [{"caption": "a"}, {"caption": "b"}]},
		{"original_sample_index": "x-2", "text_list": [], "back_info": "", "image_info": []}
	]`
	require.NoError(t, os.WriteFile(path, []byte(corpus), 0o644))

	gen, err := LoadCorpus(path)
	require.NoError(t, err)
	require.Len(t, gen, 2)
	assert.Equal(t, types.RecordIndex("7"), gen[0].Index)
	assert.Equal(t, types.RecordIndex("x-2"), gen[1].Index)
	assert.Equal(t, []string{"Cells were stained", "", ") and imaged."}, gen[0].TextSegments)
	assert.Equal(t, 1, gen[0].Images[0].Index)
	assert.Equal(t, 2, gen[0].Images[1].Index)
}

func TestWriteCheckpoint_ReplacesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "step.json")
	require.NoError(t, WriteCheckpoint(path, types.FormatJSON, []int{1}))
	require.NoError(t, WriteCheckpoint(path, types.FormatJSON, []int{1, 2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[1, 2]`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}
