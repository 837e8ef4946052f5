// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/sciqa/pkg/types"
)

// ExportEntry is one recorded question with the inputs it was built from.
type ExportEntry struct {
	RunID       string             `json:"run_id" yaml:"run_id"`
	RecordIndex string             `json:"record_index" yaml:"record_index"`
	Category    string             `json:"category,omitempty" yaml:"category,omitempty"`
	Keywords    []string           `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	QA          types.QAItem       `json:"basic_qa" yaml:"basic_qa"`
	Context     string             `json:"input_context" yaml:"input_context"`
	LogicChains []types.LogicChain `json:"input_logic_chain" yaml:"input_logic_chain"`
	Review      *types.ChainReview `json:"review,omitempty" yaml:"review,omitempty"`
}

const exportLimit = 100000

// ExportYAML writes the matching dataset entries to path as YAML. It
// supports the same filters as Search.
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions, path string) (int, error) {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return 0, err
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return 0, fmt.Errorf("marshaling YAML: %w", err)
	}
	return len(entries), os.WriteFile(path, data, 0o644)
}

// ExportJSON writes the matching dataset entries to path as JSON.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions, path string) (int, error) {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return 0, err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshaling JSON: %w", err)
	}
	return len(entries), os.WriteFile(path, data, 0o644)
}

func (s *Store) exportEntries(ctx context.Context, opts QueryOptions) ([]ExportEntry, error) {
	opts.MaxResults = exportLimit
	results, err := s.Search(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	entries := make([]ExportEntry, len(results))
	for i, r := range results {
		entries[i] = ExportEntry{
			RunID:       r.RunID,
			RecordIndex: r.RecordIndex,
			Category:    r.Category,
			Keywords:    r.Record.Keywords,
			QA:          r.QA,
			Context:     r.Record.Context,
			LogicChains: r.Record.LogicChains,
			Review:      r.Record.Review,
		}
	}
	return entries, nil
}
