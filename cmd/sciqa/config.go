// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/sciqa/internal/limiter"
	"github.com/pdiddy/sciqa/internal/secrets"
	"github.com/pdiddy/sciqa/internal/stages"
	"github.com/pdiddy/sciqa/pkg/types"
)

const (
	defaultOutputDir       = "output"
	defaultLedgerPath      = "output/sciqa.db"
	defaultVisionMaxTokens = 512
)

func init() {
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.delay", 5*time.Second)
	viper.SetDefault("image_permits", limiter.DefaultPermits)
	viper.SetDefault("distill_word_threshold", stages.DefaultDistillWordThreshold)
	viper.SetDefault("strict_disclosure", true)
	viper.SetDefault("output_dir", defaultOutputDir)
	viper.SetDefault("format", string(types.FormatJSON))
	viper.SetDefault("ledger_path", defaultLedgerPath)
}

// pipelineConfig resolves the pipeline configuration from viper and fills
// empty API keys from the loaded secrets.
func pipelineConfig() (types.PipelineConfig, error) {
	var cfg types.PipelineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading configuration: %w", err)
	}
	for i := range cfg.VisionBackends {
		if cfg.VisionBackends[i].MaxTokens <= 0 {
			cfg.VisionBackends[i].MaxTokens = defaultVisionMaxTokens
		}
	}
	secrets.ApplyKeys(&cfg, loadedSecrets)
	return cfg, validate(cfg)
}

func validate(cfg types.PipelineConfig) error {
	if cfg.TextBackend.BaseURL == "" || cfg.TextBackend.Model == "" {
		return fmt.Errorf("text_backend needs base_url and model")
	}
	if len(cfg.VisionBackends) == 0 {
		return fmt.Errorf("at least one vision backend is required")
	}
	seen := make(map[string]bool)
	for i, b := range cfg.VisionBackends {
		if b.BaseURL == "" || b.Model == "" {
			return fmt.Errorf("vision_backends[%d] needs base_url and model", i)
		}
		name := b.Name
		if name == "" {
			name = b.Model
		}
		if seen[name] {
			return fmt.Errorf("duplicate vision backend name %q", name)
		}
		seen[name] = true
	}
	switch cfg.Format {
	case types.FormatJSON, types.FormatYAML:
	default:
		return fmt.Errorf("unsupported format %q: use json or yaml", cfg.Format)
	}
	return nil
}
