// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/sciqa/internal/decode"
	"github.com/pdiddy/sciqa/internal/inference"
	"github.com/pdiddy/sciqa/internal/pipeline"
	"github.com/pdiddy/sciqa/pkg/types"
)

// VisualQA extracts vision-centred question/answer pairs and biomedical
// entities from a record's observations.
type VisualQA struct {
	deps Deps
}

func (*VisualQA) Name() string       { return "visualqa" }
func (*VisualQA) Checkpoint() string { return "step4_visual_qa" }

func (v *VisualQA) Apply(ctx context.Context, rec types.Record) pipeline.Outcome {
	obs := observationBrief(rec)
	if obs == "" {
		return pipeline.Filtered("no observations")
	}
	prompt, err := render(visualQAPromptTmpl, struct{ Observation string }{obs})
	if err != nil {
		return pipeline.Failed(err)
	}
	reply, err := v.deps.Text.Invoke(ctx, inference.Text(prompt))
	if err != nil {
		return pipeline.Failed(fmt.Errorf("generating visual QA: %w", err))
	}

	list, ok := decode.JSON[[]types.VisualQA](reply).Get()
	if !ok {
		return pipeline.Failed(fmt.Errorf("%w: visual QA is not a JSON list", decode.ErrMalformed))
	}
	if len(list) == 0 {
		return pipeline.Failed(errors.New("visual QA list is empty"))
	}
	rec.VisualQA = &list[0]
	return pipeline.Transformed(rec)
}
