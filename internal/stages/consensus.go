// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stages

import (
	"context"
	"strings"

	"github.com/pdiddy/sciqa/internal/inference"
	"github.com/pdiddy/sciqa/internal/pipeline"
	"github.com/pdiddy/sciqa/pkg/types"
)

// Consensus merges the per-source descriptions of each image into one
// purely visual description.
type Consensus struct {
	deps Deps
}

func (*Consensus) Name() string       { return "consensus" }
func (*Consensus) Checkpoint() string { return "step3_5_consensus" }

type sourceText struct {
	Name        string
	Description string
}

// Apply calls the text backend once per image. When that call fails the
// first source's description is used instead; the record is never failed
// here.
func (c *Consensus) Apply(ctx context.Context, rec types.Record) pipeline.Outcome {
	merged := make([]types.ImageDescription, 0, len(rec.Images))
	for _, img := range rec.Images {
		sources := descriptionsFor(rec, img.Index)
		text := c.merge(ctx, rec.Index, img.Index, sources)
		merged = append(merged, types.ImageDescription{ImageIndex: img.Index, Description: text})
	}
	rec.ConsensusDescriptions = merged
	return pipeline.Transformed(rec)
}

func (c *Consensus) merge(ctx context.Context, recIdx types.RecordIndex, imgIdx int, sources []sourceText) string {
	fallback := ""
	if len(sources) > 0 {
		fallback = sources[0].Description
	}

	prompt, err := render(consensusPromptTmpl, struct{ Sources []sourceText }{sources})
	if err != nil {
		return fallback
	}
	reply, err := c.deps.Text.Invoke(ctx, inference.Text(prompt))
	if err != nil {
		c.deps.logger().Warn("consensus failed, using first source", "record", recIdx, "image", imgIdx, "error", err)
		return fallback
	}
	return strings.TrimSpace(reply)
}

// descriptionsFor collects each source's description of image idx, in
// source order. A source with no entry contributes "N/A".
func descriptionsFor(rec types.Record, idx int) []sourceText {
	out := make([]sourceText, 0, len(rec.ImageDescriptions))
	for _, src := range rec.ImageDescriptions {
		text := "N/A"
		for _, d := range src.Descriptions {
			if d.ImageIndex == idx {
				text = d.Description
				break
			}
		}
		out = append(out, sourceText{Name: src.Source, Description: text})
	}
	return out
}
