// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/sciqa/internal/inference"
	"github.com/pdiddy/sciqa/internal/pipeline"
	"github.com/pdiddy/sciqa/internal/stages"
	"github.com/pdiddy/sciqa/pkg/types"
)

func validConfig() types.PipelineConfig {
	return types.PipelineConfig{
		TextBackend:    types.BackendConfig{BaseURL: "http://localhost:8000/v1", Model: "qwen3"},
		VisionBackends: []types.BackendConfig{{Name: "qwenvl", BaseURL: "http://localhost:8001/v1", Model: "qwen-vl"}},
		Format:         types.FormatJSON,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.PipelineConfig)
		errMsg string
	}{
		{"valid", func(*types.PipelineConfig) {}, ""},
		{"missing text model", func(c *types.PipelineConfig) { c.TextBackend.Model = "" }, "text_backend"},
		{"no vision backends", func(c *types.PipelineConfig) { c.VisionBackends = nil }, "vision backend"},
		{"vision without url", func(c *types.PipelineConfig) { c.VisionBackends[0].BaseURL = "" }, "vision_backends[0]"},
		{"duplicate names", func(c *types.PipelineConfig) {
			c.VisionBackends = append(c.VisionBackends, c.VisionBackends[0])
		}, "duplicate"},
		{"bad format", func(c *types.PipelineConfig) { c.Format = "xml" }, "unsupported format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := validate(cfg)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func testStages(t *testing.T) []pipeline.Stage {
	t.Helper()
	echo := inference.BackendFunc{Label: "echo", Fn: func(context.Context, inference.Payload) (string, error) {
		return "", nil
	}}
	list, err := stages.Build(stages.Deps{Text: echo, Vision: []inference.Backend{echo}}, stages.Options{})
	require.NoError(t, err)
	return list
}

func TestLoadInput(t *testing.T) {
	dir := t.TempDir()
	all := testStages(t)
	d := pipeline.NewDriver(dir)

	corpus := filepath.Join(dir, "corpus.json")
	require.NoError(t, os.WriteFile(corpus, []byte(`[{"original_sample_index": 7, "text_list": ["a"]}]`), 0o644))

	gen, source, err := loadInput(d, all, all, corpus, "")
	require.NoError(t, err)
	assert.Equal(t, corpus, source)
	require.Len(t, gen, 1)
	assert.Equal(t, types.RecordIndex("7"), gen[0].Index)

	// Resuming at distill without --input reads the keywords checkpoint.
	list, err := stages.From(all, "distill")
	require.NoError(t, err)
	require.NoError(t, pipeline.WriteCheckpoint(d.CheckpointPath(all[1]), types.FormatJSON,
		[]types.Record{{Index: "3"}, {Index: "4"}}))

	gen, source, err = loadInput(d, all, list, "", "distill")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "step1_keywords.json"), source)
	assert.Len(t, gen, 2)

	// Resuming at review reads the openqa generation, not the dataset export.
	echo := inference.BackendFunc{Label: "echo", Fn: func(context.Context, inference.Payload) (string, error) {
		return "", nil
	}}
	reviewed, err := stages.Build(stages.Deps{Text: echo, Vision: []inference.Backend{echo}}, stages.Options{ReviewMinScore: 3})
	require.NoError(t, err)
	list, err = stages.From(reviewed, "review")
	require.NoError(t, err)
	require.NoError(t, pipeline.WriteCheckpoint(d.CheckpointPath(reviewed[len(reviewed)-2]), types.FormatJSON,
		[]types.Record{{Index: "5", LogicChains: []types.LogicChain{{ResearchContext: "liver"}}}}))

	gen, source, err = loadInput(d, reviewed, list, "", "review")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "step6_openqa.json"), source)
	require.Len(t, gen, 1)
	assert.Len(t, gen[0].LogicChains, 1)

	_, _, err = loadInput(d, all, all, "", "filter")
	assert.Error(t, err)

	_, _, err = loadInput(d, all, all, filepath.Join(dir, "missing.json"), "")
	assert.ErrorIs(t, err, pipeline.ErrCorpusMissing)
}
