package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnavailable marks every failure to produce an embedding: missing
// credentials, an unreachable model, or an unusable response.
var ErrUnavailable = errors.New("embedder unavailable")

// Embedder interface for generating embeddings. Implementations return
// unit-length vectors of length Dimension().
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelInfo() string
}

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string `yaml:"provider"` // ollama, openai, genai or hash
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"-"`
	Dimensions int    `yaml:"dimensions"`
}

// New creates the embedder described by cfg.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		return NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions), nil
	case "openai":
		return NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions)
	case "genai", "gemini":
		return NewGenAIEmbedder(ctx, cfg.APIKey, cfg.Model, cfg.Dimensions)
	case "hash":
		return NewHashEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrUnavailable, cfg.Provider)
	}
}

// l2normalize normalizes a vector to unit length. It reports false for a
// zero vector, which has no direction and cannot be normalized.
func l2normalize(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return false
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return true
}

// finish validates and normalizes raw provider output in place.
func finish(raw []float32, dim int) ([]float32, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", ErrUnavailable)
	}
	if dim > 0 && len(raw) != dim {
		return nil, fmt.Errorf("%w: expected %d dimensions, got %d", ErrUnavailable, dim, len(raw))
	}
	if !l2normalize(raw) {
		return nil, fmt.Errorf("%w: zero vector returned", ErrUnavailable)
	}
	return raw, nil
}

func checkInput(texts ...string) error {
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("cannot embed empty text (input %d)", i)
		}
	}
	return nil
}
