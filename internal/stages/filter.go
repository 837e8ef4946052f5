// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/sciqa/internal/decode"
	"github.com/pdiddy/sciqa/internal/inference"
	"github.com/pdiddy/sciqa/internal/pipeline"
	"github.com/pdiddy/sciqa/pkg/types"
)

// Filter keeps only records a classifier judges biomedical.
type Filter struct {
	deps Deps
}

func (*Filter) Name() string       { return "filter" }
func (*Filter) Checkpoint() string { return "step0_filtered" }

// Apply classifies the record from its background text.
func (f *Filter) Apply(ctx context.Context, rec types.Record) pipeline.Outcome {
	prompt, err := render(classifyPromptTmpl, struct{ Context string }{classifierText(rec)})
	if err != nil {
		return pipeline.Failed(err)
	}
	reply, err := f.deps.Text.Invoke(ctx, inference.Text(prompt))
	if err != nil {
		return pipeline.Failed(fmt.Errorf("classifying: %w", err))
	}
	if !isBiomedical(reply) {
		return pipeline.Filtered("not biomedical")
	}
	rec.NormalizeImageIndices()
	return pipeline.Transformed(rec)
}

type classification struct {
	IsBiomedical bool `json:"is_biomedical"`
}

// isBiomedical reads the classifier verdict. A reply that is not valid
// JSON counts as biomedical when it mentions "true".
func isBiomedical(reply string) bool {
	if v, ok := decode.JSON[classification](reply).Get(); ok {
		return v.IsBiomedical
	}
	return strings.Contains(strings.ToLower(reply), "true")
}
