// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// BackendConfig describes one OpenAI-compatible inference endpoint.
type BackendConfig struct {
	// Name labels the backend in logs and in per-source descriptions
	// (e.g. "qwenvl").
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// BaseURL is the API root, e.g. "http://localhost:8000/v1".
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// APIKey is sent as a bearer token. Loaded from .secrets/ when empty.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Model is the model identifier (e.g. "qwen3_235b_instruct").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// MaxTokens caps the length of a single reply.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature is the sampling temperature. Nil uses the backend
	// default; an explicit 0 is sent as 0.
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature"`

	// Timeout bounds one call, streaming included.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// RetryConfig holds the retry ceiling and the fixed delay between attempts.
type RetryConfig struct {
	// MaxAttempts counts the first call (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// Delay is the pause between attempts (default 5s).
	Delay time.Duration `json:"delay" yaml:"delay" mapstructure:"delay"`
}

// CheckpointFormat selects the serialization of checkpoint files.
type CheckpointFormat string

const (
	FormatJSON CheckpointFormat = "json"
	FormatYAML CheckpointFormat = "yaml"
)

// PipelineConfig groups everything the generation pipeline needs. It is
// resolved once at startup and passed into constructors.
type PipelineConfig struct {
	// TextBackend serves every text-only stage.
	TextBackend BackendConfig `json:"text_backend" yaml:"text_backend" mapstructure:"text_backend"`

	// VisionBackends describe images; each one is a consensus source.
	VisionBackends []BackendConfig `json:"vision_backends" yaml:"vision_backends" mapstructure:"vision_backends"`

	Retry RetryConfig `json:"retry" yaml:"retry" mapstructure:"retry"`

	// ImagePermits bounds concurrent image-carrying calls (default 10).
	ImagePermits int `json:"image_permits" yaml:"image_permits" mapstructure:"image_permits"`

	// MaxInFlight bounds concurrent stage invocations per generation.
	// Zero means one goroutine per record.
	MaxInFlight int `json:"max_in_flight" yaml:"max_in_flight" mapstructure:"max_in_flight"`

	// DistillWordThreshold is the background length, in words, below which
	// distillation passes the text through (default 200).
	DistillWordThreshold int `json:"distill_word_threshold" yaml:"distill_word_threshold" mapstructure:"distill_word_threshold"`

	// StrictDisclosure filters generated questions that leak hidden fields.
	StrictDisclosure bool `json:"strict_disclosure" yaml:"strict_disclosure" mapstructure:"strict_disclosure"`

	// ReviewMinScore enables chain review when positive. Records scoring
	// below it on any review criterion are filtered.
	ReviewMinScore int `json:"review_min_score" yaml:"review_min_score" mapstructure:"review_min_score"`

	// OutputDir receives checkpoints and the final dataset.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// Format selects the checkpoint serialization (default json).
	Format CheckpointFormat `json:"format" yaml:"format" mapstructure:"format"`

	// LedgerPath is the SQLite run ledger. Empty disables the ledger.
	LedgerPath string `json:"ledger_path" yaml:"ledger_path" mapstructure:"ledger_path"`
}

// ScoringConfig holds settings for the offline scoring aggregator.
type ScoringConfig struct {
	// InputPath is the judgements file.
	InputPath string `json:"input_path" yaml:"input_path"`

	// OutputDir receives STA_<name> and Updated_<name>.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// LedgerConfig holds settings for querying the run ledger.
type LedgerConfig struct {
	// Path is the SQLite database file.
	Path string `json:"path" yaml:"path"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}
