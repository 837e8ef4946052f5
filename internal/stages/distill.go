// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/sciqa/internal/inference"
	"github.com/pdiddy/sciqa/internal/pipeline"
	"github.com/pdiddy/sciqa/pkg/types"
)

// Distill condenses long backgrounds. Empty backgrounds stay empty and
// short ones pass through without a backend call.
type Distill struct {
	deps      Deps
	threshold int
}

func (*Distill) Name() string       { return "distill" }
func (*Distill) Checkpoint() string { return "step2_distilled" }

func (d *Distill) Apply(ctx context.Context, rec types.Record) pipeline.Outcome {
	switch {
	case strings.TrimSpace(rec.Background) == "":
		rec.DistilledBackground = ""
		return pipeline.Transformed(rec)
	case wordCount(rec.Background) < d.threshold:
		rec.DistilledBackground = rec.Background
		return pipeline.Transformed(rec)
	}

	prompt, err := render(distillPromptTmpl, struct{ Background string }{rec.Background})
	if err != nil {
		return pipeline.Failed(err)
	}
	reply, err := d.deps.Text.Invoke(ctx, inference.Text(prompt))
	if err != nil {
		return pipeline.Failed(fmt.Errorf("distilling background: %w", err))
	}
	rec.DistilledBackground = strings.TrimSpace(reply)
	return pipeline.Transformed(rec)
}
