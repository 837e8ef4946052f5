// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdiddy/sciqa/internal/pipeline"
	"github.com/pdiddy/sciqa/pkg/types"
)

// Output file prefixes.
const (
	StatsPrefix   = "STA_"
	UpdatedPrefix = "Updated_"
)

// DefaultOutputDir receives the output files when none is configured.
const DefaultOutputDir = "sta_result"

const judgementKey = "judgement"

// Judged is one input item's judgement, or the reason it could not be
// read.
type Judged struct {
	Judgement types.Judgement
	Err       error
}

// Corpus is a judgements file: the raw items, kept intact for the
// augmented copy, and their decoded judgements.
type Corpus struct {
	Items      []map[string]json.RawMessage
	Judgements []Judged
}

// LoadCorpus reads a JSON list of items, each carrying its grader output
// under "judgement".
func LoadCorpus(path string) (Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Corpus{}, fmt.Errorf("reading judgements %s: %w", path, err)
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return Corpus{}, fmt.Errorf("parsing judgements %s: %w", path, err)
	}

	c := Corpus{Items: items, Judgements: make([]Judged, len(items))}
	for i, item := range items {
		raw, ok := item[judgementKey]
		if !ok {
			c.Judgements[i].Err = errors.New("missing judgement")
			continue
		}
		if err := json.Unmarshal(raw, &c.Judgements[i].Judgement); err != nil {
			c.Judgements[i].Err = err
		}
	}
	return c, nil
}

// Augment returns a copy of the items with conc_score and proc_score added
// to every item that was scored. All other fields are preserved.
func (c Corpus) Augment(scored []Scored) ([]map[string]json.RawMessage, error) {
	out := make([]map[string]json.RawMessage, len(c.Items))
	for i, item := range c.Items {
		cp := make(map[string]json.RawMessage, len(item)+2)
		for k, v := range item {
			cp[k] = v
		}
		if i < len(scored) && scored[i].OK {
			conc, err := json.Marshal(scored[i].Conclusion)
			if err != nil {
				return nil, err
			}
			proc, err := json.Marshal(scored[i].Process)
			if err != nil {
				return nil, err
			}
			cp["conc_score"] = conc
			cp["proc_score"] = proc
		}
		out[i] = cp
	}
	return out, nil
}

// Paths returns the statistics and augmented-copy paths for an input file.
func Paths(inputPath, outDir string) (stats, updated string) {
	base := filepath.Base(inputPath)
	return filepath.Join(outDir, StatsPrefix+base), filepath.Join(outDir, UpdatedPrefix+base)
}

// Run aggregates the judgements file at cfg.InputPath and writes the
// statistics file and the augmented copy into cfg.OutputDir.
func Run(cfg types.ScoringConfig) (Report, error) {
	if cfg.InputPath == "" {
		return Report{}, errors.New("no judgements file given")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	corpus, err := LoadCorpus(cfg.InputPath)
	if err != nil {
		return Report{}, err
	}
	report, scored := Aggregate(corpus.Judgements)

	updated, err := corpus.Augment(scored)
	if err != nil {
		return Report{}, fmt.Errorf("augmenting judgements: %w", err)
	}

	statsPath, updatedPath := Paths(cfg.InputPath, cfg.OutputDir)
	if err := pipeline.WriteCheckpoint(statsPath, types.FormatJSON, report); err != nil {
		return Report{}, fmt.Errorf("writing statistics: %w", err)
	}
	if err := pipeline.WriteCheckpoint(updatedPath, types.FormatJSON, updated); err != nil {
		return Report{}, fmt.Errorf("writing augmented judgements: %w", err)
	}
	return report, nil
}
