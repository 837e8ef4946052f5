// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package stages implements the dataset-generation stages: domain
// filtering, keyword extraction, background distillation, image
// description, consensus, context grounding, visual QA, logic-chain
// construction and open-ended QA synthesis. Each stage is a
// pipeline.Stage and is safe to apply to distinct records concurrently.
package stages

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pdiddy/sciqa/internal/inference"
	"github.com/pdiddy/sciqa/internal/limiter"
	"github.com/pdiddy/sciqa/internal/pipeline"
	"github.com/pdiddy/sciqa/pkg/types"
)

// DefaultDistillWordThreshold is the background length below which
// distillation passes text through unchanged.
const DefaultDistillWordThreshold = 200

// Deps are the collaborators shared by every stage.
type Deps struct {
	// Text serves all text-only prompts.
	Text inference.Backend

	// Vision holds one backend per description source.
	Vision []inference.Backend

	// Images bounds concurrent image-carrying calls.
	Images limiter.Limiter

	Logger *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Options tune stage behaviour.
type Options struct {
	DistillWordThreshold int
	StrictDisclosure     bool

	// ReviewMinScore enables the chain review stage when positive; records
	// scoring below it on any criterion are filtered.
	ReviewMinScore int
}

// OptionsFrom extracts stage options from the pipeline configuration.
func OptionsFrom(cfg types.PipelineConfig) Options {
	return Options{
		DistillWordThreshold: cfg.DistillWordThreshold,
		StrictDisclosure:     cfg.StrictDisclosure,
		ReviewMinScore:       cfg.ReviewMinScore,
	}
}

// Build returns the stages in execution order.
func Build(deps Deps, opts Options) ([]pipeline.Stage, error) {
	if deps.Text == nil {
		return nil, errors.New("text backend is required")
	}
	if len(deps.Vision) == 0 {
		return nil, errors.New("at least one vision backend is required")
	}
	if deps.Images == nil {
		deps.Images = limiter.New(limiter.DefaultPermits)
	}
	if opts.DistillWordThreshold <= 0 {
		opts.DistillWordThreshold = DefaultDistillWordThreshold
	}

	list := []pipeline.Stage{
		&Filter{deps: deps},
		&Keywords{deps: deps},
		&Distill{deps: deps, threshold: opts.DistillWordThreshold},
		&Describe{deps: deps},
		&Consensus{deps: deps},
		&Enhance{deps: deps},
		&VisualQA{deps: deps},
		&LogicChain{deps: deps},
		&OpenQA{deps: deps, strict: opts.StrictDisclosure},
	}
	if opts.ReviewMinScore > 0 {
		list = append(list, &Review{deps: deps, minScore: opts.ReviewMinScore})
	}
	return list, nil
}

// From returns the suffix of list starting at the stage named name, for
// resuming from a checkpoint. Stage names and checkpoint names both match.
func From(list []pipeline.Stage, name string) ([]pipeline.Stage, error) {
	if name == "" {
		return list, nil
	}
	for i, s := range list {
		if s.Name() == name || s.Checkpoint() == name {
			return list[i:], nil
		}
	}
	return nil, fmt.Errorf("unknown stage %q", name)
}

// Names lists the stage names of list in order.
func Names(list []pipeline.Stage) []string {
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.Name()
	}
	return names
}
