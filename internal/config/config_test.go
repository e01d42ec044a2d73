package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INSIGHTX_CONFIG", "")
	t.Setenv("INSIGHTX_SERVER_ADDRESS", "")
	t.Setenv("INSIGHTX_LLM_PROVIDER", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected defaults to load, got %v", err)
	}
	if cfg.Server.Address != ":8080" || cfg.Server.OpsAddress != ":2112" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.LLM.Provider != ProviderGemini || cfg.LLM.Timeout != 10*time.Second {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.Dataset.Path != "data/transactions.csv" {
		t.Fatalf("unexpected dataset path %q", cfg.Dataset.Path)
	}
	if cfg.Pipeline.TopK != 5 || cfg.Pipeline.ConfidenceThreshold != 0.5 {
		t.Fatalf("unexpected pipeline defaults: %+v", cfg.Pipeline)
	}
	if cfg.Session.Backend != SessionBackendMemory || cfg.Session.TTL != 30*time.Minute {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.Cache.ResultsEnabled {
		t.Fatalf("expected result caching disabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("INSIGHTX_SERVER_ADDRESS", "")
	t.Setenv("INSIGHTX_LLM_PROVIDER", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `server:
  address: ":9999"
  requestTimeout: 45s
llm:
  provider: anthropic
  model: test-model
  timeout: 20s
dataset:
  path: /data/tx.csv
pipeline:
  topK: 7
session:
  backend: redis
  redisAddr: localhost:6379
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":9999" || cfg.Server.RequestTimeout != 45*time.Second {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.LLM.Provider != ProviderAnthropic || cfg.LLM.Model != "test-model" || cfg.LLM.Timeout != 20*time.Second {
		t.Fatalf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.Dataset.Path != "/data/tx.csv" {
		t.Fatalf("unexpected dataset path %q", cfg.Dataset.Path)
	}
	if cfg.Pipeline.TopK != 7 {
		t.Fatalf("unexpected topK %d", cfg.Pipeline.TopK)
	}
	if cfg.Session.Backend != SessionBackendRedis || cfg.Session.RedisAddr != "localhost:6379" {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	// Untouched sections keep their defaults.
	if cfg.Pipeline.RateLimitPerMinute != 10 {
		t.Fatalf("expected default rate limit kept, got %d", cfg.Pipeline.RateLimitPerMinute)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected missing config file rejected")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected malformed yaml rejected")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INSIGHTX_CONFIG", "")
	t.Setenv("INSIGHTX_SERVER_ADDRESS", ":7070")
	t.Setenv("INSIGHTX_LLM_PROVIDER", "ANTHROPIC")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("INSIGHTX_TOP_K", "9")
	t.Setenv("INSIGHTX_SESSION_BACKEND", "redis")
	t.Setenv("INSIGHTX_REDIS_ADDR", "redis:6379")
	t.Setenv("INSIGHTX_RESULTS_CACHE_ENABLED", "1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Fatalf("unexpected address %q", cfg.Server.Address)
	}
	if cfg.LLM.Provider != ProviderAnthropic {
		t.Fatalf("expected provider lowercased, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("expected api key from environment, got %q", cfg.LLM.APIKey)
	}
	if cfg.Pipeline.TopK != 9 {
		t.Fatalf("unexpected topK %d", cfg.Pipeline.TopK)
	}
	if cfg.Session.Backend != SessionBackendRedis || cfg.Session.RedisAddr != "redis:6379" {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if !cfg.Cache.ResultsEnabled {
		t.Fatalf("expected result caching enabled")
	}
}

func TestGeminiKeyPickedUpForGeminiProvider(t *testing.T) {
	t.Setenv("INSIGHTX_CONFIG", "")
	t.Setenv("INSIGHTX_LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.APIKey != "g-test" {
		t.Fatalf("expected gemini key applied, got %q", cfg.LLM.APIKey)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown provider", func(c *Config) { c.LLM.Provider = "llama" }, "unknown llm provider"},
		{"unknown backend", func(c *Config) { c.Session.Backend = "dynamo" }, "unknown session backend"},
		{"redis without addr", func(c *Config) { c.Session.Backend = SessionBackendRedis }, "requires redisAddr"},
		{"missing dataset", func(c *Config) { c.Dataset.Path = "" }, "dataset path"},
		{"zero context turns", func(c *Config) { c.Pipeline.MaxContextTurns = 0 }, "maxContextTurns"},
		{"zero rate limit", func(c *Config) { c.Pipeline.RateLimitPerMinute = 0 }, "rateLimitPerMinute"},
		{"zero topK", func(c *Config) { c.Pipeline.TopK = 0 }, "topK"},
		{"confidence out of range", func(c *Config) { c.Pipeline.ConfidenceThreshold = 1.5 }, "confidenceThreshold"},
		{"zero max sessions", func(c *Config) { c.Session.MaxSessions = 0 }, "maxSessions"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}
