package index

import "errors"

// FormatVersion is the version of the persisted index layout.
const FormatVersion = 1

var (
	ErrDimensionMismatch   = errors.New("vector dimension mismatch")
	ErrSizeMismatch        = errors.New("index size does not match corpus size")
	ErrFingerprintMismatch = errors.New("index was built from a different corpus")
	ErrModelMismatch       = errors.New("index was built with a different embedding model")
	ErrVersion             = errors.New("unsupported index format version")
)

// Data is the on-disk form of an index.
type Data struct {
	Version           int         `msgpack:"version"`
	ModelInfo         string      `msgpack:"model_info"`  // Model name/version used
	Dimension         int         `msgpack:"dimension"`   // Embedding vector dimension
	CorpusFingerprint uint64      `msgpack:"fingerprint"` // corpus.Fingerprint of the records
	Vectors           [][]float32 `msgpack:"vectors"`     // Row i is the embedding of corpus record i
}

// Neighbor is a search hit: a row id and its distance to the query.
type Neighbor struct {
	ID       int
	Distance float32 // squared Euclidean distance
}

// Similarity converts the distance into cosine similarity. Only meaningful
// for unit-length vectors, where |a-b|² = 2 - 2·cos(a,b).
func (n Neighbor) Similarity() float32 {
	return 1 - n.Distance/2
}
