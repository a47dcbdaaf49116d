// Package retriever finds the corpus examples closest to a user prompt.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/perbu/promptforge/pkg/corpus"
	"github.com/perbu/promptforge/pkg/embedder"
	"github.com/perbu/promptforge/pkg/index"
	"github.com/perbu/promptforge/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// DefaultK is the number of examples returned when the caller asks for k <= 0.
const DefaultK = 3

// ErrUnavailable is returned when the embedder or index cannot serve a query.
var ErrUnavailable = errors.New("retrieval unavailable")

var tracer = otel.Tracer("promptforge/retriever")

// Match is a resolved search hit.
type Match struct {
	Record   corpus.Record
	Row      int
	Distance float32
}

// Retriever queries a Flat index built from records. It is read-only and
// safe for concurrent use. A nil *Retriever is valid and always unavailable.
type Retriever struct {
	emb     embedder.Embedder
	idx     *index.Flat
	records []corpus.Record
	logger  *zap.Logger
}

// New creates a Retriever after checking that idx was built from records
// with emb.
func New(emb embedder.Embedder, idx *index.Flat, records []corpus.Record, logger *zap.Logger) (*Retriever, error) {
	if emb == nil || idx == nil {
		return nil, fmt.Errorf("%w: embedder and index are required", ErrUnavailable)
	}
	if err := index.Verify(idx, records, emb.ModelInfo()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{emb: emb, idx: idx, records: records, logger: logger}, nil
}

// Retrieve returns up to k formatted examples, nearest first. On failure it
// returns an empty slice and an error wrapping ErrUnavailable.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	matches, err := r.Search(ctx, query, k)
	if err != nil {
		return []string{}, err
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = Format(m.Record)
	}
	return out, nil
}

// Search embeds query and resolves the k nearest rows to corpus records.
// Row ids outside the corpus are skipped.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]Match, error) {
	if r == nil {
		metrics.RetrievalsTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: retriever not initialized", ErrUnavailable)
	}
	if k <= 0 {
		k = DefaultK
	}

	ctx, span := tracer.Start(ctx, "retriever.search")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieval.k", k), attribute.Int("retrieval.query_length", len(query)))

	matches, err := r.search(ctx, query, k)
	if err != nil {
		metrics.RetrievalsTotal.WithLabelValues("unavailable").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("retrieval failed", zap.Error(err))
		return nil, err
	}

	metrics.RetrievalsTotal.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("retrieval.results", len(matches)))
	r.logger.Debug("retrieved examples", zap.Int("k", k), zap.Int("results", len(matches)))
	return matches, nil
}

func (r *Retriever) search(ctx context.Context, query string, k int) ([]Match, error) {
	start := time.Now()
	vec, err := r.emb.Embed(ctx, query)
	metrics.EmbeddingDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", ErrUnavailable, err)
	}

	neighbors, err := r.idx.Search(vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	matches := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		if n.ID < 0 || n.ID >= len(r.records) {
			r.logger.Warn("skipping out-of-range index row", zap.Int("row", n.ID), zap.Int("corpus_size", len(r.records)))
			continue
		}
		matches = append(matches, Match{Record: r.records[n.ID], Row: n.ID, Distance: n.Distance})
	}
	return matches, nil
}

// Format renders a record the way it is shown to the refiner.
func Format(rec corpus.Record) string {
	return fmt.Sprintf("Example (from %s/%s):\nPrompt: %s\nExplanation: %s\n",
		rec.Domain, rec.Strategy, rec.PromptText, rec.Explanation)
}
