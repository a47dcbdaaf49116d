// Package config loads PromptForge settings from defaults, an optional YAML
// file, a .env file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/perbu/promptforge/pkg/embedder"
	"github.com/perbu/promptforge/pkg/llm"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "promptforge.yaml"

// Config holds all PromptForge settings.
type Config struct {
	LLM       llm.Config      `yaml:"llm"`
	Embedding embedder.Config `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Cache     CacheConfig     `yaml:"cache"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IndexConfig locates the index artifact and, optionally, a corpus file
// that replaces the built-in corpus.
type IndexConfig struct {
	Path   string `yaml:"path"`
	Corpus string `yaml:"corpus"`
}

type RetrievalConfig struct {
	K int `yaml:"k"`
}

// CacheConfig sizes the LLM response cache. Zero entries disables it.
type CacheConfig struct {
	Entries int `yaml:"entries"`
}

type PipelineConfig struct {
	// Parallel runs the two answer generations concurrently.
	Parallel bool `yaml:"parallel"`
}

// ServerConfig configures the HTTP API. SessionTTL is how long an idle
// session keeps its history; MaxSessions caps the session table.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	MaxSessions     int           `yaml:"max_sessions"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: llm.Config{
			Provider:          "gemini",
			Model:             "gemini-2.0-flash",
			Timeout:           60 * time.Second,
			RequestsPerSecond: 0,
			Burst:             1,
		},
		Embedding: embedder.Config{
			Provider:   "ollama",
			Model:      "all-minilm",
			Dimensions: 384,
		},
		Index: IndexConfig{
			Path: filepath.Join("embeddings", "index.msgpack"),
		},
		Retrieval: RetrievalConfig{K: 3},
		Cache:     CacheConfig{Entries: 256},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			SessionTTL:      30 * time.Minute,
			MaxSessions:     10000,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// .env and environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// .env never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration as YAML. API keys are never written.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	c.LLM.Provider = GetEnv("PROMPTFORGE_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = GetEnv("PROMPTFORGE_LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = GetEnv("PROMPTFORGE_LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.RequestsPerSecond = GetEnvFloat("PROMPTFORGE_LLM_RPS", c.LLM.RequestsPerSecond)

	c.Embedding.Provider = GetEnv("PROMPTFORGE_EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = GetEnv("PROMPTFORGE_EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Dimensions = GetEnvInt("PROMPTFORGE_EMBEDDING_DIMENSIONS", c.Embedding.Dimensions)

	c.Index.Path = GetEnv("PROMPTFORGE_INDEX_PATH", c.Index.Path)
	c.Index.Corpus = GetEnv("PROMPTFORGE_CORPUS_PATH", c.Index.Corpus)
	c.Retrieval.K = GetEnvInt("PROMPTFORGE_RETRIEVAL_K", c.Retrieval.K)
	c.Cache.Entries = GetEnvInt("PROMPTFORGE_CACHE_ENTRIES", c.Cache.Entries)
	c.Pipeline.Parallel = GetEnvBool("PROMPTFORGE_PARALLEL", c.Pipeline.Parallel)
	c.Server.Addr = GetEnv("PROMPTFORGE_ADDR", c.Server.Addr)
	c.Logging.Level = GetEnv("PROMPTFORGE_LOG_LEVEL", c.Logging.Level)

	c.LLM.APIKey = apiKeyFor(c.LLM.Provider, c.LLM.APIKey)
	c.Embedding.APIKey = apiKeyFor(c.Embedding.Provider, c.Embedding.APIKey)
	if strings.EqualFold(c.Embedding.Provider, "ollama") {
		c.Embedding.BaseURL = ollamaURL(GetEnv("OLLAMA_HOST", c.Embedding.BaseURL))
	}
}

func apiKeyFor(provider, current string) string {
	switch strings.ToLower(provider) {
	case "gemini", "genai", "":
		return GetEnvWithFallback("GOOGLE_API_KEY", "GEMINI_API_KEY", current)
	case "openai":
		return GetEnv("OPENAI_API_KEY", current)
	}
	return current
}

// ollamaURL accepts OLLAMA_HOST in the host:port form the Ollama CLI uses.
func ollamaURL(host string) string {
	if host == "" || strings.Contains(host, "://") {
		return host
	}
	return "http://" + host
}

// GeneratorConfig returns the LLM settings with the cache section applied.
func (c *Config) GeneratorConfig() llm.Config {
	g := c.LLM
	g.CacheEntries = c.Cache.Entries
	return g
}

var (
	ValidLLMProviders       = []string{"gemini", "genai", "openai"}
	ValidEmbeddingProviders = []string{"ollama", "openai", "genai", "gemini", "hash"}
)

// Validate checks provider names and numeric ranges. Missing API keys are
// not errors; the affected stages degrade at run time.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(ValidLLMProviders, strings.ToLower(c.LLM.Provider)) {
		errs = append(errs, fmt.Errorf("invalid llm provider: %q (valid: %v)", c.LLM.Provider, ValidLLMProviders))
	}
	if !slices.Contains(ValidEmbeddingProviders, strings.ToLower(c.Embedding.Provider)) {
		errs = append(errs, fmt.Errorf("invalid embedding provider: %q (valid: %v)", c.Embedding.Provider, ValidEmbeddingProviders))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm temperature must be within [0, 2], got %v", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("llm max_tokens must not be negative"))
	}
	if c.LLM.RequestsPerSecond < 0 || c.LLM.Burst < 0 {
		errs = append(errs, fmt.Errorf("llm rate limit must not be negative"))
	}
	if c.Embedding.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("embedding dimensions must not be negative"))
	}
	if c.Index.Path == "" {
		errs = append(errs, fmt.Errorf("index path is required"))
	}
	if c.Retrieval.K < 1 || c.Retrieval.K > 50 {
		errs = append(errs, fmt.Errorf("retrieval k must be within [1, 50], got %d", c.Retrieval.K))
	}
	if c.Cache.Entries < 0 {
		errs = append(errs, fmt.Errorf("cache entries must not be negative"))
	}
	if c.Server.SessionTTL < 0 || c.Server.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("server session limits must not be negative"))
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level: %w", err))
	}
	return errors.Join(errs...)
}
