package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/contractclarity/engine/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CLARITY_LLM_API_KEY", "test-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("server.port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Retrieval.TopK != 6 {
		t.Errorf("retrieval.top_k = %d, want 6", cfg.Retrieval.TopK)
	}
	if cfg.Pipeline.RepairBudget != 2 {
		t.Errorf("pipeline.repair_budget = %d, want 2", cfg.Pipeline.RepairBudget)
	}
	if cfg.LLM.Timeout != 120*time.Second {
		t.Errorf("llm.timeout = %v, want 120s", cfg.LLM.Timeout)
	}
	if cfg.Tasks.Retention != 24*time.Hour {
		t.Errorf("tasks.retention = %v, want 24h", cfg.Tasks.Retention)
	}
	if got := cfg.Risk.Banding().Severity(85); got != domain.SeverityHigh {
		t.Errorf("default banding at 85 = %s, want High", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CLARITY_LLM_API_KEY", "test-key")
	t.Setenv("CLARITY_SERVER_PORT", "9000")
	t.Setenv("CLARITY_RETRIEVAL_TOP_K", "10")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("server.port = %d, want 9000 from env", cfg.Server.Port)
	}
	if cfg.Retrieval.TopK != 10 {
		t.Errorf("retrieval.top_k = %d, want 10 from env", cfg.Retrieval.TopK)
	}
}

// Variables with underscores inside the key name must bind to their
// snake_case koanf tags, not get split into deeper nesting.
func TestLoad_EnvMultiWordKeys(t *testing.T) {
	t.Setenv("CLARITY_LLM_API_KEY", "test-key")
	t.Setenv("CLARITY_LLM_BASE_URL", "https://llm.example.com")
	t.Setenv("CLARITY_LLM_MAX_RETRIES", "5")
	t.Setenv("CLARITY_RETRIEVAL_MIN_SIMILARITY", "0.5")
	t.Setenv("CLARITY_RETRIEVAL_INDEX_PATH", "/data/index.db")
	t.Setenv("CLARITY_PIPELINE_MAX_CONTRACT_CHARS", "1000")
	t.Setenv("CLARITY_RISK_HIGH_THRESHOLD", "80")
	t.Setenv("CLARITY_TASKS_SWEEP_INTERVAL", "1m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Errorf("llm.api_key = %q, want test-key from env", cfg.LLM.APIKey)
	}
	if cfg.LLM.BaseURL != "https://llm.example.com" {
		t.Errorf("llm.base_url = %q, want env value", cfg.LLM.BaseURL)
	}
	if cfg.LLM.MaxRetries != 5 {
		t.Errorf("llm.max_retries = %d, want 5 from env", cfg.LLM.MaxRetries)
	}
	if cfg.Retrieval.MinSimilarity != 0.5 {
		t.Errorf("retrieval.min_similarity = %v, want 0.5 from env", cfg.Retrieval.MinSimilarity)
	}
	if cfg.Retrieval.IndexPath != "/data/index.db" {
		t.Errorf("retrieval.index_path = %q, want env value", cfg.Retrieval.IndexPath)
	}
	if cfg.Pipeline.MaxContractChars != 1000 {
		t.Errorf("pipeline.max_contract_chars = %d, want 1000 from env", cfg.Pipeline.MaxContractChars)
	}
	if cfg.Risk.HighThreshold != 80 {
		t.Errorf("risk.high_threshold = %d, want 80 from env", cfg.Risk.HighThreshold)
	}
	if cfg.Tasks.SweepInterval != time.Minute {
		t.Errorf("tasks.sweep_interval = %v, want 1m from env", cfg.Tasks.SweepInterval)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("CLARITY_LLM_API_KEY", "test-key")

	path := filepath.Join(t.TempDir(), "clarity.yaml")
	data := []byte("server:\n  port: 8123\nrisk:\n  high_threshold: 80\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8123 {
		t.Errorf("server.port = %d, want 8123 from file", cfg.Server.Port)
	}
	if cfg.Risk.HighThreshold != 80 {
		t.Errorf("risk.high_threshold = %d, want 80 from file", cfg.Risk.HighThreshold)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing api key", map[string]string{}},
		{"top_k over ceiling", map[string]string{
			"CLARITY_LLM_API_KEY":     "k",
			"CLARITY_RETRIEVAL_TOP_K": "50",
		}},
		{"zero concurrency", map[string]string{
			"CLARITY_LLM_API_KEY":             "k",
			"CLARITY_PIPELINE_MAX_CONCURRENT": "0",
		}},
		{"non-monotonic banding", map[string]string{
			"CLARITY_LLM_API_KEY":           "k",
			"CLARITY_RISK_HIGH_THRESHOLD":   "30",
			"CLARITY_RISK_MEDIUM_THRESHOLD": "60",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Error("Load() should have failed validation")
			}
		})
	}
}
