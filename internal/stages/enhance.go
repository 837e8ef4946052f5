// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pdiddy/sciqa/internal/decode"
	"github.com/pdiddy/sciqa/internal/inference"
	"github.com/pdiddy/sciqa/internal/pipeline"
	"github.com/pdiddy/sciqa/pkg/types"
)

// enhancedRootKey wraps the reply object; models sometimes omit it.
const enhancedRootKey = "Context_Enhanced_Captions"

// Enhance grounds the consensus descriptions in the source text and splits
// each into an observation and an interpretation.
type Enhance struct {
	deps Deps
}

func (*Enhance) Name() string       { return "enhance" }
func (*Enhance) Checkpoint() string { return "step3_enhanced" }

type enhanced struct {
	Observations    map[string]string `json:"observations"`
	Interpretations map[string]string `json:"interpretations"`
}

func (e *Enhance) Apply(ctx context.Context, rec types.Record) pipeline.Outcome {
	descriptions, err := json.MarshalIndent(rec.ConsensusDescriptions, "", "  ")
	if err != nil {
		return pipeline.Failed(fmt.Errorf("encoding descriptions: %w", err))
	}
	prompt, err := render(enhancePromptTmpl, struct {
		Background, Keywords, Context, Descriptions string
	}{rec.DistilledBackground, rec.RawKeywords, rec.Context, string(descriptions)})
	if err != nil {
		return pipeline.Failed(err)
	}

	reply, err := e.deps.Text.Invoke(ctx, inference.Text(prompt))
	if err != nil {
		return pipeline.Failed(fmt.Errorf("enhancing captions: %w", err))
	}
	parsed, err := parseEnhanced(reply)
	if err != nil {
		return pipeline.Failed(err)
	}

	consensus := make(map[int]string, len(rec.ConsensusDescriptions))
	for _, d := range rec.ConsensusDescriptions {
		consensus[d.ImageIndex] = d.Description
	}

	annotations := make([]types.ImageAnnotation, len(rec.Images))
	for i, img := range rec.Images {
		key := decode.ImageKey(img.Index)
		annotations[i] = types.ImageAnnotation{
			ImageIndex:     img.Index,
			FigID:          img.FigID,
			SubfigLabel:    img.SubfigLabel,
			Description:    consensus[img.Index],
			Observation:    decode.Lookup(parsed.Observations, key),
			Interpretation: decode.Lookup(parsed.Interpretations, key),
		}
	}
	rec.Annotations = annotations
	rec.Summary = &types.AnnotationSummary{
		ObservationSummary:    parsed.Observations["summary"],
		InterpretationSummary: parsed.Interpretations["summary"],
	}
	return pipeline.Transformed(rec)
}

// parseEnhanced decodes the reply with or without the root key.
func parseEnhanced(reply string) (enhanced, error) {
	root, ok := decode.JSON[map[string]json.RawMessage](reply).Get()
	if !ok {
		return enhanced{}, fmt.Errorf("%w: enhanced captions are not a JSON object", decode.ErrMalformed)
	}
	var out enhanced
	if inner, found := root[enhancedRootKey]; found {
		if err := json.Unmarshal(inner, &out); err != nil {
			return enhanced{}, fmt.Errorf("%w: %v", decode.ErrMalformed, err)
		}
		return out, nil
	}
	if err := json.Unmarshal([]byte(decode.Extract(reply)), &out); err != nil {
		return enhanced{}, fmt.Errorf("%w: %v", decode.ErrMalformed, err)
	}
	return out, nil
}
