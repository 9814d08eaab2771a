// Package config loads engine configuration from an optional YAML file
// and CLARITY_-prefixed environment variables, with environment taking
// precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/contractclarity/engine/internal/domain"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	LLM       LLMConfig       `koanf:"llm"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Risk      RiskConfig      `koanf:"risk"`
	Tasks     TaskConfig      `koanf:"tasks"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type LLMConfig struct {
	APIKey  string        `koanf:"api_key"`
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`

	// MaxRetries bounds automatic retries of transient upstream
	// failures; non-retryable rejections fail immediately.
	MaxRetries   int           `koanf:"max_retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

type EmbeddingConfig struct {
	APIKey  string        `koanf:"api_key"`
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

type RetrievalConfig struct {
	// IndexPath is the read-only sqlite index built by the offline
	// ingest job.
	IndexPath string `koanf:"index_path"`

	TopK          int     `koanf:"top_k"`
	MinSimilarity float64 `koanf:"min_similarity"`
}

type PipelineConfig struct {
	// MaxConcurrent bounds how many tasks run stages at the same time.
	MaxConcurrent int `koanf:"max_concurrent"`

	// RepairBudget is the number of corrective re-invocations allowed
	// per stage before the task fails with a schema violation.
	RepairBudget int `koanf:"repair_budget"`

	// MaxContractChars rejects oversized submissions up front.
	MaxContractChars int `koanf:"max_contract_chars"`

	// PromptTokenBudget caps contract text and citations inside a
	// single stage prompt.
	PromptTokenBudget int `koanf:"prompt_token_budget"`
}

type RiskConfig struct {
	HighThreshold   int `koanf:"high_threshold"`
	MediumThreshold int `koanf:"medium_threshold"`
}

// Banding converts the configured thresholds into a domain banding.
func (r RiskConfig) Banding() domain.Banding {
	return domain.Banding{High: r.HighThreshold, Medium: r.MediumThreshold}
}

type TaskConfig struct {
	// Retention is how long terminal tasks stay pollable before the
	// sweeper drops them.
	Retention     time.Duration `koanf:"retention"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// MaxTopK is the hard ceiling on retrieval fan-out, bounding prompt size.
const MaxTopK = 20

// Load reads configuration from the given YAML file (skipped when path
// is empty) and the environment, applies defaults, and validates the
// result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// The config tree is exactly two levels deep, so the first
	// underscore separates the section from the key and the rest belong
	// to the key itself: CLARITY_LLM_API_KEY -> llm.api_key.
	if err := k.Load(env.Provider("CLARITY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CLARITY_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	defaults := map[string]any{
		"server.port":                  5000,
		"llm.base_url":                 "https://api.deepseek.com",
		"llm.model":                    "deepseek-chat",
		"llm.timeout":                  "120s",
		"llm.max_retries":              2,
		"llm.retry_backoff":            "500ms",
		"embedding.base_url":           "http://localhost:8090",
		"embedding.model":              "bge-large-zh-v1.5",
		"embedding.timeout":            "30s",
		"retrieval.index_path":         "lawindex.db",
		"retrieval.top_k":              6,
		"retrieval.min_similarity":     0.25,
		"pipeline.max_concurrent":      4,
		"pipeline.repair_budget":       2,
		"pipeline.max_contract_chars":  200000,
		"pipeline.prompt_token_budget": 24000,
		"risk.high_threshold":          70,
		"risk.medium_threshold":        40,
		"tasks.retention":              "24h",
		"tasks.sweep_interval":         "10m",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces load-time invariants so misconfiguration fails at
// startup rather than mid-pipeline.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (set CLARITY_LLM_API_KEY)")
	}
	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > MaxTopK {
		return fmt.Errorf("retrieval.top_k must be in [1,%d], got %d", MaxTopK, c.Retrieval.TopK)
	}
	if c.Pipeline.MaxConcurrent < 1 {
		return fmt.Errorf("pipeline.max_concurrent must be at least 1, got %d", c.Pipeline.MaxConcurrent)
	}
	if c.Pipeline.RepairBudget < 0 {
		return fmt.Errorf("pipeline.repair_budget must not be negative, got %d", c.Pipeline.RepairBudget)
	}
	if c.Pipeline.MaxContractChars < 1 {
		return fmt.Errorf("pipeline.max_contract_chars must be positive, got %d", c.Pipeline.MaxContractChars)
	}
	if err := c.Risk.Banding().Validate(); err != nil {
		return fmt.Errorf("risk banding: %w", err)
	}
	return nil
}
