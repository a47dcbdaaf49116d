// Package llm provides the text generation capability used for refinement,
// answer generation and judging, with caching, rate limiting and
// instrumentation decorators.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnavailable is returned when no backend can be reached, including
	// when credentials are missing.
	ErrUnavailable = errors.New("llm backend unavailable")
	// ErrNotConfigured is the ErrUnavailable case of missing credentials.
	ErrNotConfigured = fmt.Errorf("%w: not configured", ErrUnavailable)
	// ErrEmptyResponse is returned when the backend answers with no text.
	ErrEmptyResponse = errors.New("llm returned an empty response")
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is a single generation call. System and Schema are optional.
// When Schema is set the backend is asked for a JSON object matching it.
type Request struct {
	Prompt string
	System string
	Schema *Schema
}

func (r Request) cacheKey() string {
	schema := ""
	if r.Schema != nil {
		schema = r.Schema.Name
	}
	return r.System + "\x00" + schema + "\x00" + r.Prompt
}

// Config configures the generation backend and its decorators.
type Config struct {
	Provider          string        `yaml:"provider"` // gemini or openai
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"-"`
	Temperature       float32       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CacheEntries      int           `yaml:"-"`
}

// New builds the backend named by cfg.Provider and wraps it with
// instrumentation, rate limiting and the response cache.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var backend Generator
	var err error
	switch strings.ToLower(cfg.Provider) {
	case "gemini", "genai", "":
		backend, err = NewGemini(ctx, cfg)
	case "openai":
		backend, err = NewOpenAI(cfg)
	default:
		err = fmt.Errorf("%w: unsupported provider %q", ErrUnavailable, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	var gen Generator = NewInstrumented(backend, cfg.Provider, logger)
	gen = NewRateLimited(gen, cfg.RequestsPerSecond, cfg.Burst)
	if cfg.CacheEntries > 0 {
		gen = NewCache(gen, cfg.CacheEntries)
	}
	return gen, nil
}

// Unconfigured is the Generator used when no backend could be built. Every
// call fails with ErrNotConfigured.
type Unconfigured struct {
	Cause error
}

// Generate implements Generator.
func (u Unconfigured) Generate(context.Context, Request) (string, error) {
	if u.Cause != nil {
		return "", fmt.Errorf("%w: %v", ErrNotConfigured, u.Cause)
	}
	return "", ErrNotConfigured
}

func checkText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
