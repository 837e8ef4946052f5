// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scoring aggregates graded logic-chain judgements into bucketed
// statistics and a combined conclusion/process score. A malformed
// judgement is recorded in the error map; it never aborts aggregation.
package scoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pdiddy/sciqa/pkg/types"
)

// Conclusion buckets, keyed by the canonical conclusion values.
var conclusionKeys = []string{"0", "0.25", "0.5", "0.75", "1.0"}

// Process buckets are half-open ranges; exactly 1.0 goes to the last one.
var processKeys = []string{"0~0.25", "0.25~0.5", "0.5~0.75", "0.75~1"}

// Failure tallies.
const (
	FailureVisual         = "visual"
	FailureInterpretation = "interpretation"
	FailureConclusion     = "conclusion"
)

// Counts is an ordered set of named counters. It marshals as a JSON
// object whose keys keep their declared order.
type Counts struct {
	keys []string
	n    map[string]int
}

func newCounts(keys ...string) Counts {
	c := Counts{keys: keys, n: make(map[string]int, len(keys))}
	for _, k := range keys {
		c.n[k] = 0
	}
	return c
}

// Get returns the count for key.
func (c Counts) Get(key string) int { return c.n[key] }

func (c Counts) inc(key string) { c.n[key]++ }

// MarshalJSON writes the counters in declared order.
func (c Counts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(c.n[k]))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Report is the corpus-level statistics file.
type Report struct {
	ConclusionBuckets Counts            `json:"conclusion_scores_sta"`
	ProcessBuckets    Counts            `json:"process_scores_sta"`
	Failures          Counts            `json:"process_failures"`
	NumExperiments    int               `json:"num_exp"`
	Errors            map[string]string `json:"error"`
	ConclusionScores  []float64         `json:"conclusion_scores"`
	ProcessScores     []float64         `json:"process_scores"`
	MeanLCR           float64           `json:"lcrs_scores"`
	MeanProcess       float64           `json:"proc_scores"`
	MeanConclusion    float64           `json:"conc_scores"`
}

// Scored is the per-judgement result. OK is false when the judgement
// could not be scored at all.
type Scored struct {
	Conclusion float64
	Process    float64
	OK         bool
}

// ConclusionScore maps the judged integer in [0,4] onto [0,1].
func ConclusionScore(judged float64) float64 {
	return judged / 4
}

// ExperimentScore scores one experiment. A visual flag of -1 means the
// visual evidence was intentionally absent: it is treated as 1 and the
// two-term formula applies. The returned failure names the first broken
// step, or "" when there is none.
func ExperimentScore(e types.ExperimentJudgement) (score float64, failure string) {
	vis, inte, con := float64(e.VisualPhenomenon), float64(e.Interpretation), float64(e.SubConclusion)
	steps := 3.0
	if vis == -1 {
		vis = 1
		steps = 2
	}

	switch {
	case vis == 0:
		failure = FailureVisual
	case vis == 1 && inte == 0:
		failure = FailureInterpretation
	case vis == 1 && inte == 1 && con == 0:
		failure = FailureConclusion
	}

	if steps == 3 {
		return (vis + vis*inte + vis*inte*con) / steps, failure
	}
	return (inte + vis*inte*con) / steps, failure
}

// LCR combines conclusion and process scores harmonically. It is 0 when
// both are 0.
func LCR(conclusion, process float64) float64 {
	if conclusion+process == 0 {
		return 0
	}
	return 2 * conclusion * process / (conclusion + process)
}

func conclusionBucket(score float64) (string, bool) {
	for _, k := range conclusionKeys {
		v, _ := strconv.ParseFloat(k, 64)
		if v == score {
			return k, true
		}
	}
	return "", false
}

func processBucket(score float64) (string, bool) {
	for _, k := range processKeys {
		lo, hi, _ := strings.Cut(k, "~")
		l, _ := strconv.ParseFloat(lo, 64)
		h, _ := strconv.ParseFloat(hi, 64)
		if l <= score && score < h {
			return k, true
		}
	}
	if score == 1.0 {
		return processKeys[len(processKeys)-1], true
	}
	return "", false
}

// Aggregate scores every judgement. Judgements that fail to decode are
// reported in the error map and excluded from the means; the returned
// slice is aligned with the input.
func Aggregate(judgements []Judged) (Report, []Scored) {
	r := Report{
		ConclusionBuckets: newCounts(conclusionKeys...),
		ProcessBuckets:    newCounts(processKeys...),
		Failures:          newCounts(FailureVisual, FailureInterpretation, FailureConclusion),
		Errors:            make(map[string]string),
		ConclusionScores:  []float64{},
		ProcessScores:     []float64{},
	}
	scored := make([]Scored, len(judgements))
	var lcrs []float64

	for i, j := range judgements {
		key := fmt.Sprintf("Question[%d]", i)
		if j.Err != nil {
			r.Errors[key] = fmt.Sprintf("Error judgement: %v\n", j.Err)
			continue
		}

		conc := ConclusionScore(float64(j.Judgement.ConclusionScore))
		if b, ok := conclusionBucket(conc); ok {
			r.ConclusionBuckets.inc(b)
		} else {
			r.Errors[key] += fmt.Sprintf("Error conclusion score: %s\n", pyFloat(conc))
		}

		var proc float64
		if len(j.Judgement.Experiments) == 0 {
			r.Errors[key] += "Error process score: no experiments\n"
		} else {
			var sum float64
			for _, exp := range j.Judgement.Experiments {
				r.NumExperiments++
				s, failure := ExperimentScore(exp)
				if failure != "" {
					r.Failures.inc(failure)
				}
				sum += s
			}
			proc = sum / float64(len(j.Judgement.Experiments))
			if b, ok := processBucket(proc); ok {
				r.ProcessBuckets.inc(b)
			} else {
				r.Errors[key] += fmt.Sprintf("Error process score: %s\n", pyFloat(proc))
			}
		}

		r.ConclusionScores = append(r.ConclusionScores, conc)
		r.ProcessScores = append(r.ProcessScores, proc)
		lcrs = append(lcrs, LCR(conc, proc))
		scored[i] = Scored{Conclusion: conc, Process: proc, OK: true}
	}

	r.MeanConclusion = mean(r.ConclusionScores)
	r.MeanProcess = mean(r.ProcessScores)
	r.MeanLCR = mean(lcrs)
	return r, scored
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// pyFloat formats a score the way the statistics file has always shown
// it: shortest form, with a trailing ".0" on whole numbers.
func pyFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
