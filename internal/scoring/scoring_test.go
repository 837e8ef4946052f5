// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/sciqa/pkg/types"
)

func exp(vis, inte, con float64) types.ExperimentJudgement {
	return types.ExperimentJudgement{
		VisualPhenomenon: types.Score(vis),
		Interpretation:   types.Score(inte),
		SubConclusion:    types.Score(con),
	}
}

func judged(conclusion float64, exps ...types.ExperimentJudgement) Judged {
	return Judged{Judgement: types.Judgement{ConclusionScore: types.Score(conclusion), Experiments: exps}}
}

func TestConclusionBucket(t *testing.T) {
	r, scored := Aggregate([]Judged{judged(2, exp(1, 1, 1))})
	assert.Equal(t, 0.5, scored[0].Conclusion)
	assert.Equal(t, 1, r.ConclusionBuckets.Get("0.5"))
	assert.Empty(t, r.Errors)
}

func TestExperimentScore(t *testing.T) {
	tests := []struct {
		name    string
		e       types.ExperimentJudgement
		score   float64
		failure string
	}{
		{"all correct", exp(1, 1, 1), 1, ""},
		{"visual missed", exp(0, 1, 1), 0, FailureVisual},
		{"interpretation missed", exp(1, 0, 1), 1.0 / 3, FailureInterpretation},
		{"conclusion missed", exp(1, 1, 0), 2.0 / 3, FailureConclusion},
		{"absent visual, all correct", exp(-1, 1, 1), 1, ""},
		{"absent visual, interpretation missed", exp(-1, 0, 1), 0, FailureInterpretation},
		{"absent visual, conclusion missed", exp(-1, 1, 0), 0.5, FailureConclusion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, failure := ExperimentScore(tt.e)
			assert.InDelta(t, tt.score, score, 1e-12)
			assert.Equal(t, tt.failure, failure)
		})
	}
}

func TestProcessScore_PerfectLandsInTopBucket(t *testing.T) {
	r, scored := Aggregate([]Judged{judged(4, exp(1, 1, 1))})
	assert.Equal(t, 1.0, scored[0].Process)
	assert.Equal(t, 1, r.ProcessBuckets.Get("0.75~1"))
	assert.Equal(t, 1, r.ConclusionBuckets.Get("1.0"))
	assert.Empty(t, r.Errors)
}

func TestProcessScore_AbsentVisualInterpretationFailure(t *testing.T) {
	r, scored := Aggregate([]Judged{judged(0, exp(-1, 0, 1))})
	assert.Equal(t, 0.0, scored[0].Process)
	assert.Equal(t, 1, r.ProcessBuckets.Get("0~0.25"))
	assert.Equal(t, 1, r.Failures.Get(FailureInterpretation))
	assert.Zero(t, r.Failures.Get(FailureVisual))
}

func TestProcessBuckets_HalfOpen(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, "0~0.25"},
		{0.25, "0.25~0.5"},
		{0.5, "0.5~0.75"},
		{0.74, "0.5~0.75"},
		{0.75, "0.75~1"},
		{1.0, "0.75~1"},
	}
	for _, tt := range tests {
		got, ok := processBucket(tt.score)
		require.True(t, ok, "%v", tt.score)
		assert.Equal(t, tt.want, got, "%v", tt.score)
	}
	_, ok := processBucket(1.5)
	assert.False(t, ok)
	_, ok = processBucket(-0.1)
	assert.False(t, ok)
}

func TestLCR(t *testing.T) {
	assert.Equal(t, 0.0, LCR(0, 0))
	assert.Equal(t, 1.0, LCR(1, 1))
	assert.InDelta(t, 0.5, LCR(0.5, 0.5), 1e-12)
	assert.Equal(t, 0.0, LCR(1, 0))
}

func TestAggregate_ErrorsDoNotAbort(t *testing.T) {
	r, scored := Aggregate([]Judged{
		judged(5, exp(1, 1, 1)),
		{Err: assert.AnError},
		judged(3),
		judged(4, exp(2, 1, 1)),
	})

	assert.Equal(t, "Error conclusion score: 1.25\n", r.Errors["Question[0]"])
	assert.Contains(t, r.Errors["Question[1]"], "Error judgement")
	assert.Equal(t, "Error process score: no experiments\n", r.Errors["Question[2]"])
	assert.Equal(t, "Error process score: 2.0\n", r.Errors["Question[3]"])

	assert.True(t, scored[0].OK)
	assert.False(t, scored[1].OK)
	assert.True(t, scored[2].OK)
	assert.Len(t, r.ConclusionScores, 3)
	assert.Equal(t, 1, r.ConclusionBuckets.Get("0.75"))
	assert.Equal(t, 1, r.ConclusionBuckets.Get("1.0"))
	assert.Equal(t, 2, r.NumExperiments)
}

func TestAggregate_Means(t *testing.T) {
	r, _ := Aggregate([]Judged{
		judged(4, exp(1, 1, 1)),
		judged(0, exp(0, 0, 0)),
		judged(2, exp(1, 1, 0), exp(-1, 1, 1)),
	})
	// process: 1, 0, (2/3 + 1)/2 = 5/6
	assert.InDelta(t, (1+0+0.5)/3.0, r.MeanConclusion, 1e-12)
	assert.InDelta(t, (1+0+5.0/6)/3, r.MeanProcess, 1e-12)
	assert.InDelta(t, (1+0+LCR(0.5, 5.0/6))/3, r.MeanLCR, 1e-12)
	assert.Equal(t, 4, r.NumExperiments)
	assert.Equal(t, 1, r.Failures.Get(FailureVisual))
	assert.Equal(t, 1, r.Failures.Get(FailureConclusion))
	assert.Equal(t, 2, r.ProcessBuckets.Get("0.75~1"))
	assert.Equal(t, 1, r.ProcessBuckets.Get("0~0.25"))
}

func TestAggregate_Empty(t *testing.T) {
	r, scored := Aggregate(nil)
	assert.Empty(t, scored)
	assert.Zero(t, r.MeanLCR)
	assert.Zero(t, r.MeanProcess)
	assert.Zero(t, r.MeanConclusion)
}

func TestCounts_MarshalKeepsOrder(t *testing.T) {
	c := newCounts(conclusionKeys...)
	c.inc("0.5")
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `{"0":0,"0.25":0,"0.5":1,"0.75":0,"1.0":0}`, string(data))
}

func TestRun_WritesStatsAndAugmentedCopy(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "judgements.json")
	corpus := `[
		{"id": "a", "question": "Q1", "judgement": {"conclusion_score": 2, "experiments": [{"visual_phenomenon": 1, "interpretation": 1, "sub-conclusion": 1}]}},
		{"id": "b", "judgement": {"conclusion_score": "4", "experiments": [{"visual_phenomenon": -1, "interpretation": 0, "sub-conclusion": 1}]}},
		{"id": "c", "note": "ungraded"}
	]`
	require.NoError(t, os.WriteFile(input, []byte(corpus), 0o644))

	out := filepath.Join(dir, "sta_result")
	report, err := Run(types.ScoringConfig{InputPath: input, OutputDir: out})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ConclusionBuckets.Get("0.5"))
	assert.Equal(t, 1, report.ConclusionBuckets.Get("1.0"))
	assert.Contains(t, report.Errors, "Question[2]")

	statsPath, updatedPath := Paths(input, out)
	assert.Equal(t, filepath.Join(out, "STA_judgements.json"), statsPath)

	var stats map[string]any
	data, err := os.ReadFile(statsPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &stats))
	for _, key := range []string{"conclusion_scores_sta", "process_scores_sta", "process_failures", "num_exp",
		"error", "conclusion_scores", "process_scores", "lcrs_scores", "proc_scores", "conc_scores"} {
		assert.Contains(t, stats, key)
	}
	assert.Equal(t, float64(2), stats["num_exp"])

	var updated []map[string]any
	data, err = os.ReadFile(updatedPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &updated))
	require.Len(t, updated, 3)
	assert.Equal(t, "Q1", updated[0]["question"])
	assert.Equal(t, 0.5, updated[0]["conc_score"])
	assert.Equal(t, 1.0, updated[0]["proc_score"])
	assert.Equal(t, 1.0, updated[1]["conc_score"])
	assert.Equal(t, 0.0, updated[1]["proc_score"])
	assert.Equal(t, "ungraded", updated[2]["note"])
	assert.NotContains(t, updated[2], "conc_score")
}

func TestRun_MissingInput(t *testing.T) {
	_, err := Run(types.ScoringConfig{InputPath: filepath.Join(t.TempDir(), "nope.json"), OutputDir: t.TempDir()})
	assert.Error(t, err)

	_, err = Run(types.ScoringConfig{})
	assert.Error(t, err)
}

func TestRun_DefaultOutputDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile("judgements.json", []byte(`[{"judgement": {"conclusion_score": 4, "experiments": []}}]`), 0o644))

	_, err := Run(types.ScoringConfig{InputPath: "judgements.json"})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, DefaultOutputDir, "STA_judgements.json"))
	assert.NoError(t, err)
}
