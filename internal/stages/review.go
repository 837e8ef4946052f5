// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"text/template"

	"github.com/pdiddy/sciqa/internal/decode"
	"github.com/pdiddy/sciqa/internal/inference"
	"github.com/pdiddy/sciqa/internal/pipeline"
	"github.com/pdiddy/sciqa/pkg/types"
)

// Review scores the first logic chain and its question with three
// reviewer prompts and filters records scoring below minScore on any
// criterion.
type Review struct {
	deps     Deps
	minScore int
}

func (*Review) Name() string       { return "review" }
func (*Review) Checkpoint() string { return "step7_review" }
func (*Review) ExportName() string { return "final_qa_dataset_reviewed" }

type reviewInput struct {
	Chain, Observation, Context, Phenomena, Question, Conclusion string
}

func (r *Review) Apply(ctx context.Context, rec types.Record) pipeline.Outcome {
	if len(rec.LogicChains) == 0 || rec.QA == nil {
		return pipeline.Failed(errors.New("record has no chain or question to review"))
	}
	chain := rec.LogicChains[0]
	flat, err := json.MarshalIndent(flattenChain(chain), "", "  ")
	if err != nil {
		return pipeline.Failed(fmt.Errorf("encoding chain: %w", err))
	}
	full, err := json.MarshalIndent(chain, "", "  ")
	if err != nil {
		return pipeline.Failed(fmt.Errorf("encoding chain: %w", err))
	}
	phenomena := make([]string, len(chain.Experiments))
	for i, exp := range chain.Experiments {
		phenomena[i] = exp.VisualPhenomenon
	}
	obs := ObservationText(rec)

	review := types.ChainReview{Scores: make(map[string]int)}
	passes := []struct {
		tmpl *template.Template
		in   reviewInput
	}{
		{reviewCoherencePromptTmpl, reviewInput{Chain: string(flat)}},
		{reviewGroundingPromptTmpl, reviewInput{Observation: obs, Context: rec.Context, Phenomena: strings.Join(phenomena, "\n")}},
		{reviewAlignmentPromptTmpl, reviewInput{Question: rec.QA.Question, Observation: obs, Chain: string(full), Conclusion: chain.Reasoning.Conclusion}},
	}
	for _, p := range passes {
		prompt, err := render(p.tmpl, p.in)
		if err != nil {
			return pipeline.Failed(err)
		}
		reply, err := r.deps.Text.Invoke(ctx, inference.Text(prompt))
		if err != nil {
			return pipeline.Failed(fmt.Errorf("%s: %w", p.tmpl.Name(), err))
		}
		scores, err := ParseScores(reply)
		if err != nil {
			return pipeline.Failed(fmt.Errorf("%s: %w", p.tmpl.Name(), err))
		}
		for k, v := range scores {
			review.Scores[k] = v
		}
		if expl, ok := decode.Tagged(reply, "explanation"); ok {
			review.Explanations = append(review.Explanations, expl)
		}
	}

	rec.Review = &review
	if low := review.Min(); low < r.minScore {
		return pipeline.Filtered(fmt.Sprintf("review score %d below %d", low, r.minScore))
	}
	return pipeline.Transformed(rec)
}

// Export writes the reviewed dataset.
func (*Review) Export(gen []types.Record) any {
	return DatasetEntries(gen)
}

// ParseScores reads the JSON object inside a <scores> block. Scores are
// rounded to integers.
func ParseScores(reply string) (map[string]int, error) {
	block, ok := decode.Tagged(reply, "scores")
	if !ok {
		return nil, fmt.Errorf("%w: no <scores> block", decode.ErrMalformed)
	}
	raw, ok := decode.JSON[map[string]float64](block).Get()
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%w: scores are not a JSON object of numbers", decode.ErrMalformed)
	}
	out := make(map[string]int, len(raw))
	for k, v := range raw {
		out[k] = int(math.Round(v))
	}
	return out, nil
}

// flattenChain lists a chain as facts, then inferences, then the
// reasoning and conclusion.
func flattenChain(chain types.LogicChain) []string {
	var out []string
	for i, exp := range chain.Experiments {
		out = append(out, fmt.Sprintf("Experiment %d: %s", i+1, exp.SubConclusion))
	}
	for i, inf := range chain.Reasoning.IntermediateInferences {
		out = append(out, fmt.Sprintf("Inference %d (from experiments %v): %s", i+1, inf.BasedOnExperiments, inf.SubConclusion))
	}
	out = append(out, "Reasoning: "+chain.Reasoning.Content, "Conclusion: "+chain.Reasoning.Conclusion)
	return out
}
