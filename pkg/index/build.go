package index

import (
	"context"
	"fmt"

	"github.com/perbu/promptforge/pkg/corpus"
	"github.com/perbu/promptforge/pkg/embedder"
)

// Build embeds every record's prompt text in one batch and indexes the
// vectors in corpus order.
func Build(ctx context.Context, records []corpus.Record, emb embedder.Embedder) (*Flat, error) {
	if len(records) == 0 {
		return nil, corpus.ErrEmpty
	}

	vectors, err := emb.EmbedBatch(ctx, corpus.PromptTexts(records))
	if err != nil {
		return nil, fmt.Errorf("embedding corpus: %w", err)
	}
	if len(vectors) != len(records) {
		return nil, fmt.Errorf("%w: %d vectors for %d records", ErrSizeMismatch, len(vectors), len(records))
	}

	return New(vectors, emb.Dimension(), emb.ModelInfo(), corpus.Fingerprint(records))
}

// Verify checks that f was built from records with the embedder identified
// by modelInfo. An empty modelInfo skips the model check.
func Verify(f *Flat, records []corpus.Record, modelInfo string) error {
	if f.Size() != len(records) {
		return fmt.Errorf("%w: index has %d rows, corpus has %d records", ErrSizeMismatch, f.Size(), len(records))
	}
	if fp := corpus.Fingerprint(records); f.Fingerprint() != fp {
		return fmt.Errorf("%w: index %016x, corpus %016x", ErrFingerprintMismatch, f.Fingerprint(), fp)
	}
	if modelInfo != "" && f.ModelInfo() != modelInfo {
		return fmt.Errorf("%w: index %q, embedder %q", ErrModelMismatch, f.ModelInfo(), modelInfo)
	}
	return nil
}
