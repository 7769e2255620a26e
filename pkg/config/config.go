// Package config loads audit engine configuration from a YAML file and
// watches it for changes. Each run receives an immutable snapshot; a reload
// only affects runs started after it.
package config

import (
	"fmt"
	"time"
)

// Config is the immutable engine configuration snapshot.
type Config struct {
	// Retrieval knobs.
	Retrieval RetrievalConfig `yaml:"retrieval"`
	// Pipeline execution knobs.
	Pipeline PipelineConfig `yaml:"pipeline"`
	// Model endpoint settings.
	Model ModelConfig `yaml:"model"`
	// SelectionPolicy is the Rego source for force-include decisions; empty
	// selects the built-in default policy.
	SelectionPolicy string `yaml:"selection_policy"`
	// EventLogPath is where the hash-chained pipeline event log is written;
	// empty disables the event log.
	EventLogPath string `yaml:"event_log_path"`

	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TelemetryConfig configures trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Environment  string `yaml:"environment"`
	Insecure     bool   `yaml:"insecure"`
}

// RetrievalConfig tunes the hybrid retriever.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	LexicalWeight  float64 `yaml:"lexical_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
}

// PipelineConfig tunes orchestration.
type PipelineConfig struct {
	// Workers bounds the per-requirement fan-out. Zero selects the default.
	Workers int `yaml:"workers"`
	// RequirementTimeout bounds each requirement's Retriever→Reasoner→
	// Verifier pipeline. A timeout degrades that requirement to UNKNOWN.
	RequirementTimeout time.Duration `yaml:"requirement_timeout"`
	// QuoteSimilarity is the near-verbatim quote acceptance threshold.
	QuoteSimilarity float64 `yaml:"quote_similarity"`
	// NegativeEvidence enables reduced-confidence inference from absent
	// evidence instead of the UNKNOWN short-circuit.
	NegativeEvidence bool `yaml:"negative_evidence"`
	// ForceMandatory controls whether the selection policy force-includes
	// requirements beyond the planner's choice.
	ForceMandatory bool `yaml:"force_mandatory"`
}

// ModelConfig points at the structured-generation endpoint.
type ModelConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Name        string        `yaml:"name"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Retrieval: RetrievalConfig{
			TopK:           4,
			LexicalWeight:  0.4,
			SemanticWeight: 0.6,
		},
		Pipeline: PipelineConfig{
			Workers:            4,
			RequirementTimeout: 90 * time.Second,
			QuoteSimilarity:    0.8,
			ForceMandatory:     true,
		},
		Model: ModelConfig{
			Name:        "gpt-4o-mini",
			Temperature: 0,
			Timeout:     30 * time.Second,
			MaxRetries:  2,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Retrieval.TopK < 0 {
		return fmt.Errorf("config: retrieval.top_k must be >= 0")
	}
	if c.Retrieval.LexicalWeight < 0 || c.Retrieval.SemanticWeight < 0 {
		return fmt.Errorf("config: retrieval weights must be >= 0")
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("config: pipeline.workers must be >= 0")
	}
	if c.Pipeline.QuoteSimilarity < 0 || c.Pipeline.QuoteSimilarity > 1 {
		return fmt.Errorf("config: pipeline.quote_similarity must be in [0,1]")
	}
	return nil
}
