package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIEmbedder generates embeddings using Google's Gemini API.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGenAIEmbedder creates a Gemini embedder. dim is passed to the API as the
// output dimensionality; reduced-dimension outputs are not unit length, so
// every vector is normalized on return.
func NewGenAIEmbedder(ctx context.Context, apiKey, model string, dim int) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GenAI API key is required", ErrUnavailable)
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dim <= 0 {
		dim = 768
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GenAI client: %v", ErrUnavailable, err)
	}

	return &GenAIEmbedder{client: client, model: model, dim: dim}, nil
}

// Embed generates an embedding for a single text.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (e *GenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkInput(texts...); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dim := int32(e.dim)
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             "SEMANTIC_SIMILARITY",
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: GenAI embed failed: %v", ErrUnavailable, err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d embeddings, got %d", ErrUnavailable, len(texts), len(result.Embeddings))
	}

	out := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		v, err := finish(emb.Values, e.dim)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimension returns the embedding dimension.
func (e *GenAIEmbedder) Dimension() int {
	return e.dim
}

// ModelInfo returns model information.
func (e *GenAIEmbedder) ModelInfo() string {
	return fmt.Sprintf("genai-%s-%d", e.model, e.dim)
}
