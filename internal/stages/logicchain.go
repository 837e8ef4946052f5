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

// LogicChain builds provenance-tagged reasoning chains from the source
// text and the grounded observations.
type LogicChain struct {
	deps Deps
}

func (*LogicChain) Name() string       { return "logicchain" }
func (*LogicChain) Checkpoint() string { return "step5_logic_chain" }

func (l *LogicChain) Apply(ctx context.Context, rec types.Record) pipeline.Outcome {
	prompt, err := render(logicChainPromptTmpl, struct{ Context, Observation string }{
		Context:     rec.Context,
		Observation: ObservationText(rec),
	})
	if err != nil {
		return pipeline.Failed(err)
	}
	reply, err := l.deps.Text.Invoke(ctx, inference.Text(prompt))
	if err != nil {
		return pipeline.Failed(fmt.Errorf("building logic chain: %w", err))
	}

	chains, ok := decode.JSON[[]types.LogicChain](reply).Get()
	if !ok {
		return pipeline.Failed(fmt.Errorf("%w: logic chains are not a JSON list", decode.ErrMalformed))
	}
	if len(chains) == 0 {
		return pipeline.Failed(errors.New("empty logic chain"))
	}
	if err := ValidateImageRefs(rec, chains); err != nil {
		return pipeline.Failed(err)
	}
	rec.LogicChains = chains
	return pipeline.Transformed(rec)
}

// ValidateImageRefs reports the first image index cited by a chain that
// does not exist on the record.
func ValidateImageRefs(rec types.Record, chains []types.LogicChain) error {
	for c, chain := range chains {
		for _, idx := range chain.ReferencedImages() {
			if !rec.HasImage(idx) {
				return fmt.Errorf("chain %d cites Image %d but the record has %d image(s)", c+1, idx, len(rec.Images))
			}
		}
	}
	return nil
}
