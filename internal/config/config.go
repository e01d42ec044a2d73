package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Providers accepted in LLMConfig.Provider.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Session backends accepted in SessionConfig.Backend.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Config captures the settings required to boot the query engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	LLM       LLMConfig       `yaml:"llm"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Session   SessionConfig   `yaml:"session"`
	Followups FollowupsConfig `yaml:"followups"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	OpsAddress      string        `yaml:"opsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// LLMConfig configures the language model used for extraction and
// narrative synthesis. The API key normally arrives via environment.
type LLMConfig struct {
	Provider             string        `yaml:"provider"`
	Model                string        `yaml:"model"`
	BaseURL              string        `yaml:"baseURL"`
	APIKey               string        `yaml:"apiKey"`
	Timeout              time.Duration `yaml:"timeout"`
	NarrativeTemperature float64       `yaml:"narrativeTemperature"`
	MaxTokens            int           `yaml:"maxTokens"`
}

// DatasetConfig locates the transactions CSV and bounds query time.
type DatasetConfig struct {
	Path         string        `yaml:"path"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
}

// PipelineConfig tunes the resolution pipeline.
type PipelineConfig struct {
	MaxContextTurns     int     `yaml:"maxContextTurns"`
	RateLimitPerMinute  int     `yaml:"rateLimitPerMinute"`
	TopK                int     `yaml:"topK"`
	ConfidenceThreshold float64 `yaml:"confidenceThreshold"`
}

// SessionConfig controls conversation state storage.
type SessionConfig struct {
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redisAddr"`
	RedisUsername string        `yaml:"redisUsername"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
	TTL           time.Duration `yaml:"ttl"`
	MaxSessions   int           `yaml:"maxSessions"`
}

// FollowupsConfig controls rule-pack loading for follow-up suggestions.
type FollowupsConfig struct {
	RulesPath string `yaml:"rulesPath"`
	Max       int    `yaml:"max"`
}

// CacheConfig controls optional caching of computed results. Disabled
// by default so repeated questions always recompute.
type CacheConfig struct {
	ResultsEnabled bool          `yaml:"resultsEnabled"`
	ResultsTTL     time.Duration `yaml:"resultsTTL"`
}

// Load initialises Config from a YAML file and optional environment
// overrides, then validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("INSIGHTX_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderGemini, ProviderAnthropic:
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		return fmt.Errorf("config: unknown session backend %q", c.Session.Backend)
	}
	if c.Session.Backend == SessionBackendRedis && c.Session.RedisAddr == "" {
		return fmt.Errorf("config: session backend redis requires redisAddr")
	}
	if c.Dataset.Path == "" {
		return fmt.Errorf("config: dataset path is required")
	}
	if c.Pipeline.MaxContextTurns <= 0 {
		return fmt.Errorf("config: maxContextTurns must be positive")
	}
	if c.Pipeline.RateLimitPerMinute <= 0 {
		return fmt.Errorf("config: rateLimitPerMinute must be positive")
	}
	if c.Pipeline.TopK <= 0 {
		return fmt.Errorf("config: topK must be positive")
	}
	if c.Pipeline.ConfidenceThreshold < 0 || c.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: confidenceThreshold must be within [0,1]")
	}
	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("config: maxSessions must be positive")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			OpsAddress:      ":2112",
			GracefulTimeout: 10 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		LLM: LLMConfig{
			Provider:             ProviderGemini,
			Model:                "gemini-2.0-flash",
			BaseURL:              "https://generativelanguage.googleapis.com",
			Timeout:              10 * time.Second,
			NarrativeTemperature: 0.2,
			MaxTokens:            1024,
		},
		Dataset: DatasetConfig{
			Path:         "data/transactions.csv",
			QueryTimeout: 5 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxContextTurns:     5,
			RateLimitPerMinute:  10,
			TopK:                5,
			ConfidenceThreshold: 0.5,
		},
		Session: SessionConfig{
			Backend:     SessionBackendMemory,
			TTL:         30 * time.Minute,
			MaxSessions: 1000,
		},
		Followups: FollowupsConfig{
			Max: 3,
		},
		Cache: CacheConfig{
			ResultsEnabled: false,
			ResultsTTL:     5 * time.Minute,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INSIGHTX_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("INSIGHTX_OPS_ADDRESS"); v != "" {
		cfg.Server.OpsAddress = v
	}
	if v := os.Getenv("INSIGHTX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("INSIGHTX_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("INSIGHTX_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("INSIGHTX_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("INSIGHTX_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("INSIGHTX_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = d
		}
	}
	switch cfg.LLM.Provider {
	case ProviderGemini:
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
		}
	case ProviderAnthropic:
		if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
		}
	}
	if v := os.Getenv("INSIGHTX_DATASET_PATH"); v != "" {
		cfg.Dataset.Path = v
	}
	if v := os.Getenv("INSIGHTX_DATASET_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Dataset.QueryTimeout = d
		}
	}
	if v := os.Getenv("INSIGHTX_MAX_CONTEXT_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxContextTurns = n
		}
	}
	if v := os.Getenv("INSIGHTX_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.RateLimitPerMinute = n
		}
	}
	if v := os.Getenv("INSIGHTX_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.TopK = n
		}
	}
	if v := os.Getenv("INSIGHTX_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pipeline.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("INSIGHTX_SESSION_BACKEND"); v != "" {
		cfg.Session.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("INSIGHTX_REDIS_ADDR"); v != "" {
		cfg.Session.RedisAddr = v
	}
	if v := os.Getenv("INSIGHTX_REDIS_USERNAME"); v != "" {
		cfg.Session.RedisUsername = v
	}
	if v := os.Getenv("INSIGHTX_REDIS_PASSWORD"); v != "" {
		cfg.Session.RedisPassword = v
	}
	if v := os.Getenv("INSIGHTX_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Session.RedisDB = db
		}
	}
	if v := os.Getenv("INSIGHTX_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.TTL = d
		}
	}
	if v := os.Getenv("INSIGHTX_SESSION_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.MaxSessions = n
		}
	}
	if v := os.Getenv("INSIGHTX_FOLLOWUP_RULES_PATH"); v != "" {
		cfg.Followups.RulesPath = v
	}
	if v := os.Getenv("INSIGHTX_RESULTS_CACHE_ENABLED"); v != "" {
		cfg.Cache.ResultsEnabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("INSIGHTX_RESULTS_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ResultsTTL = d
		}
	}
}
