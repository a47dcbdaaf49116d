package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/perbu/promptforge/pkg/corpus"
	"github.com/perbu/promptforge/pkg/embedder"
	"github.com/perbu/promptforge/pkg/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRetriever(t *testing.T) (*Retriever, []corpus.Record) {
	t.Helper()
	records, err := corpus.Default()
	require.NoError(t, err)
	emb := embedder.NewHashEmbedder(256)
	idx, err := index.Build(context.Background(), records, emb)
	require.NoError(t, err)
	r, err := New(emb, idx, records, zap.NewNop())
	require.NoError(t, err)
	return r, records
}

func TestRetrieve_AtMostK(t *testing.T) {
	r, records := newTestRetriever(t)
	ctx := context.Background()

	for _, k := range []int{1, 2, 3, 5, len(records), len(records) + 10} {
		got, err := r.Retrieve(ctx, "Explain a legal concept to a student", k)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), k)
		assert.NotEmpty(t, got)
	}

	got, err := r.Retrieve(ctx, "Write a story about a brave knight.", 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultK)
}

func TestRetrieve_Deterministic(t *testing.T) {
	r, _ := newTestRetriever(t)
	ctx := context.Background()

	first, err := r.Retrieve(ctx, "Summarize a bug report as JSON", 3)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Retrieve(ctx, "Summarize a bug report as JSON", 3)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRetrieve_FormatContainsRecord(t *testing.T) {
	r, records := newTestRetriever(t)

	matches, err := r.Search(context.Background(), records[14].PromptText, 3)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, 14, matches[0].Row)

	for _, m := range matches {
		s := Format(m.Record)
		assert.Contains(t, s, m.Record.Domain)
		assert.Contains(t, s, string(m.Record.Strategy))
		assert.Contains(t, s, m.Record.PromptText)
		assert.Contains(t, s, m.Record.Explanation)
	}
}

func TestFormat(t *testing.T) {
	rec := corpus.Record{
		Domain:      "Legal",
		Strategy:    corpus.ConciseAnswer,
		PromptText:  "Define res judicata.",
		Explanation: "Quick definition.",
	}
	want := "Example (from Legal/Concise Answer):\nPrompt: Define res judicata.\nExplanation: Quick definition.\n"
	assert.Equal(t, want, Format(rec))
}

func TestRetrieve_SkipsOutOfRangeRows(t *testing.T) {
	records, err := corpus.Default()
	require.NoError(t, err)
	emb := embedder.NewHashEmbedder(64)
	idx, err := index.Build(context.Background(), records, emb)
	require.NoError(t, err)

	// An index larger than the corpus, as after a version mismatch.
	r := &Retriever{emb: emb, idx: idx, records: records[:2], logger: zap.NewNop()}
	got, err := r.Search(context.Background(), records[20].PromptText, 5)
	require.NoError(t, err)
	for _, m := range got {
		assert.Less(t, m.Row, 2)
	}
}

type brokenEmbedder struct{ embedder.Embedder }

func (brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model not loaded")
}

func (brokenEmbedder) ModelInfo() string { return "broken" }

func TestRetrieve_Unavailable(t *testing.T) {
	var nilRetriever *Retriever
	got, err := nilRetriever.Retrieve(context.Background(), "anything", 3)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	records, err := corpus.Default()
	require.NoError(t, err)
	idx, err := index.Build(context.Background(), records, embedder.NewHashEmbedder(16))
	require.NoError(t, err)

	r := &Retriever{emb: brokenEmbedder{}, idx: idx, records: records, logger: zap.NewNop()}
	got, err = r.Retrieve(context.Background(), "anything", 3)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, got)
}

func TestNew_RejectsMismatchedIndex(t *testing.T) {
	records, err := corpus.Default()
	require.NoError(t, err)
	emb := embedder.NewHashEmbedder(32)
	idx, err := index.Build(context.Background(), records, emb)
	require.NoError(t, err)

	_, err = New(emb, idx, records[1:], nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, index.ErrSizeMismatch)

	_, err = New(embedder.NewHashEmbedder(64), idx, records, nil)
	assert.ErrorIs(t, err, index.ErrModelMismatch)

	_, err = New(nil, idx, records, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}
