// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/sciqa/internal/decode"
	"github.com/pdiddy/sciqa/internal/inference"
	"github.com/pdiddy/sciqa/internal/pipeline"
	"github.com/pdiddy/sciqa/pkg/types"
)

// OpenQA writes one open-ended question per record from its first logic
// chain and audits it against the chain's disclosure plan. Its export is
// the final dataset.
type OpenQA struct {
	deps   Deps
	strict bool
}

func (*OpenQA) Name() string       { return "openqa" }
func (*OpenQA) Checkpoint() string { return "step6_openqa" }
func (*OpenQA) ExportName() string { return "final_qa_dataset" }

func (o *OpenQA) Apply(ctx context.Context, rec types.Record) pipeline.Outcome {
	if len(rec.LogicChains) == 0 {
		return pipeline.Failed(errors.New("record has no logic chain"))
	}
	chain := rec.LogicChains[0]
	plan := PlanDisclosure(chain)

	chainJSON, err := json.MarshalIndent(chain, "", "  ")
	if err != nil {
		return pipeline.Failed(fmt.Errorf("encoding chain: %w", err))
	}
	prompt, err := render(openQAPromptTmpl, struct{ Chain, Observation, Context, Plan string }{
		Chain:       string(chainJSON),
		Observation: ObservationText(rec),
		Context:     rec.Context,
		Plan:        plan.String(),
	})
	if err != nil {
		return pipeline.Failed(err)
	}

	reply, err := o.deps.Text.Invoke(ctx, inference.Text(prompt))
	if err != nil {
		return pipeline.Failed(fmt.Errorf("generating question: %w", err))
	}
	item, ok := decode.JSON[types.QAItem](reply).Get()
	if !ok {
		return pipeline.Failed(fmt.Errorf("%w: question is not a JSON object", decode.ErrMalformed))
	}
	if strings.TrimSpace(item.Question) == "" || strings.TrimSpace(item.Answer) == "" {
		return pipeline.Failed(fmt.Errorf("%w: question or answer is empty", decode.ErrMalformed))
	}

	violations := AuditQuestion(plan, item.Question)
	for _, v := range violations {
		o.deps.logger().Debug("disclosure audit", "record", rec.Index, "finding", v.String())
	}
	if leaks := Leaks(violations); len(leaks) > 0 {
		if o.strict {
			return pipeline.Filtered("question leaks " + joinViolations(leaks))
		}
		o.deps.logger().Warn("question leaks hidden chain text", "record", rec.Index, "leaks", joinViolations(leaks))
	}

	rec.QA = &item
	return pipeline.Transformed(rec)
}

// Export shapes the surviving records into dataset entries.
func (*OpenQA) Export(gen []types.Record) any {
	return DatasetEntries(gen)
}

// DatasetEntries converts records that carry a question into dataset
// entries, in order.
func DatasetEntries(gen []types.Record) []types.DatasetEntry {
	out := make([]types.DatasetEntry, 0, len(gen))
	for _, rec := range gen {
		if rec.QA == nil {
			continue
		}
		out = append(out, types.DatasetEntry{
			RecordIndex: rec.Index,
			QA:          *rec.QA,
			Observation: ObservationText(rec),
			Context:     rec.Context,
			LogicChains: rec.LogicChains,
			Review:      rec.Review,
		})
	}
	return out
}

func joinViolations(vs []Violation) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, "; ")
}
