package index

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/perbu/promptforge/pkg/corpus"
	"github.com/perbu/promptforge/pkg/embedder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(v ...float32) []float32 { return v }

func TestSearch_Order(t *testing.T) {
	f, err := New([][]float32{
		unit(1, 0, 0),
		unit(0, 1, 0),
		unit(0, 0, 1),
		unit(0.6, 0.8, 0),
	}, 3, "test", 0)
	require.NoError(t, err)

	got, err := f.Search(unit(1, 0, 0), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 0, got[0].ID)
	assert.Equal(t, 3, got[1].ID)
	assert.InDelta(t, 0, got[0].Distance, 1e-6)
	assert.InDelta(t, 1, got[0].Similarity(), 1e-6)
	assert.InDelta(t, 0.6, got[1].Similarity(), 1e-6)

	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
	}
}

func TestSearch_TiesByRowID(t *testing.T) {
	f, err := New([][]float32{
		unit(0, 1),
		unit(1, 0),
		unit(0, 1),
		unit(1, 0),
	}, 2, "test", 0)
	require.NoError(t, err)

	got, err := f.Search(unit(1, 0), 4)
	require.NoError(t, err)
	ids := []int{got[0].ID, got[1].ID, got[2].ID, got[3].ID}
	assert.Equal(t, []int{1, 3, 0, 2}, ids)
}

func TestSearch_Bounds(t *testing.T) {
	f, err := New([][]float32{unit(1, 0), unit(0, 1)}, 2, "test", 0)
	require.NoError(t, err)

	got, err := f.Search(unit(1, 0), 10)
	require.NoError(t, err)
	assert.Len(t, got, 2, "k larger than the index returns every row")

	got, err = f.Search(unit(1, 0), 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.Search(unit(1, 0, 0), 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	empty, err := New(nil, 2, "test", 0)
	require.NoError(t, err)
	got, err = empty.Search(unit(1, 0), 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNew_Validates(t *testing.T) {
	_, err := New([][]float32{unit(1, 0), unit(1)}, 2, "test", 0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = New(nil, 0, "test", 0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestBuild(t *testing.T) {
	records, err := corpus.Default()
	require.NoError(t, err)
	emb := embedder.NewHashEmbedder(256)

	f, err := Build(context.Background(), records, emb)
	require.NoError(t, err)
	assert.Equal(t, len(records), f.Size())
	assert.Equal(t, 256, f.Dimension())
	assert.Equal(t, emb.ModelInfo(), f.ModelInfo())
	require.NoError(t, Verify(f, records, emb.ModelInfo()))

	// A record's own text is its nearest neighbour.
	q, err := emb.Embed(context.Background(), records[7].PromptText)
	require.NoError(t, err)
	got, err := f.Search(q, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, got[0].ID)
}

type failingEmbedder struct{ embedder.Embedder }

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, embedder.ErrUnavailable
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(context.Background(), nil, embedder.NewHashEmbedder(8))
	assert.ErrorIs(t, err, corpus.ErrEmpty)

	records := []corpus.Record{{PromptText: "x"}}
	_, err = Build(context.Background(), records, failingEmbedder{})
	assert.ErrorIs(t, err, embedder.ErrUnavailable)
}

func TestVerify(t *testing.T) {
	records, err := corpus.Default()
	require.NoError(t, err)
	emb := embedder.NewHashEmbedder(32)
	f, err := Build(context.Background(), records, emb)
	require.NoError(t, err)

	err = Verify(f, records[:len(records)-1], "")
	assert.ErrorIs(t, err, ErrSizeMismatch)

	reordered := append([]corpus.Record(nil), records...)
	reordered[0], reordered[1] = reordered[1], reordered[0]
	err = Verify(f, reordered, "")
	assert.ErrorIs(t, err, ErrFingerprintMismatch)

	err = Verify(f, records, "ollama-all-minilm-384")
	assert.ErrorIs(t, err, ErrModelMismatch)
}

func TestSaveLoad(t *testing.T) {
	records, err := corpus.Default()
	require.NoError(t, err)
	f, err := Build(context.Background(), records, embedder.NewHashEmbedder(64))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "embeddings", "index.msgpack")
	require.NoError(t, Save(path, f))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist), "temporary file must be renamed away")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, f.Size(), loaded.Size())
	assert.Equal(t, f.Dimension(), loaded.Dimension())
	assert.Equal(t, f.ModelInfo(), loaded.ModelInfo())
	assert.Equal(t, f.Fingerprint(), loaded.Fingerprint())
	require.NoError(t, Verify(loaded, records, ""))
}

func TestDecode_Rejects(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not msgpack")))
	assert.Error(t, err)

	var buf bytes.Buffer
	f := &Flat{data: Data{Version: 99, Dimension: 2}}
	require.NoError(t, Encode(&buf, f))
	_, err = Decode(&buf)
	assert.ErrorIs(t, err, ErrVersion)

	_, err = Load(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
