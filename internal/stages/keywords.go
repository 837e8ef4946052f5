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

// Keywords assembles the record's context and extracts its research
// category and keywords.
type Keywords struct {
	deps Deps
}

func (*Keywords) Name() string       { return "keywords" }
func (*Keywords) Checkpoint() string { return "step1_keywords" }

func (k *Keywords) Apply(ctx context.Context, rec types.Record) pipeline.Outcome {
	rec.Context = AssembleContext(rec.TextSegments, len(rec.Images))

	prompt, err := render(keywordPromptTmpl, struct{ Context, Captions string }{
		Context:  rec.Context,
		Captions: captionList(rec.Images),
	})
	if err != nil {
		return pipeline.Failed(err)
	}
	reply, err := k.deps.Text.Invoke(ctx, inference.Text(prompt))
	if err != nil {
		return pipeline.Failed(fmt.Errorf("extracting keywords: %w", err))
	}

	rec.RawKeywords = strings.TrimSpace(reply)
	rec.Category, rec.Keywords = ParseKeywords(rec.RawKeywords)
	return pipeline.Transformed(rec)
}
