// Package index implements an exact nearest-neighbour index over a small,
// fixed set of unit-length vectors.
package index

import (
	"cmp"
	"fmt"
	"slices"
)

// Flat is a brute-force index. Every query is compared against every row,
// so results are exact. It is read-only after construction and safe for
// concurrent use.
type Flat struct {
	data Data
}

// New creates a Flat index over vectors. All vectors must have length dim.
func New(vectors [][]float32, dim int, modelInfo string, fingerprint uint64) (*Flat, error) {
	return fromData(Data{
		Version:           FormatVersion,
		ModelInfo:         modelInfo,
		Dimension:         dim,
		CorpusFingerprint: fingerprint,
		Vectors:           vectors,
	})
}

func fromData(d Data) (*Flat, error) {
	if d.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, d.Version)
	}
	if d.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, d.Dimension)
	}
	for i, v := range d.Vectors {
		if len(v) != d.Dimension {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, i, len(v), d.Dimension)
		}
	}
	return &Flat{data: d}, nil
}

// Size returns the number of rows.
func (f *Flat) Size() int { return len(f.data.Vectors) }

// Dimension returns the vector dimension.
func (f *Flat) Dimension() int { return f.data.Dimension }

// ModelInfo identifies the embedder the index was built with.
func (f *Flat) ModelInfo() string { return f.data.ModelInfo }

// Fingerprint returns the corpus fingerprint recorded at build time.
func (f *Flat) Fingerprint() uint64 { return f.data.CorpusFingerprint }

// Search returns up to k rows closest to query by Euclidean distance,
// nearest first. Rows at equal distance are ordered by ascending row id.
func (f *Flat) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != f.data.Dimension {
		return nil, fmt.Errorf("%w: query has %d values, index has %d", ErrDimensionMismatch, len(query), f.data.Dimension)
	}
	if k <= 0 || f.Size() == 0 {
		return nil, nil
	}

	results := make([]Neighbor, len(f.data.Vectors))
	for i, v := range f.data.Vectors {
		results[i] = Neighbor{ID: i, Distance: SquaredL2(query, v)}
	}

	// Rows are generated in id order, so a stable sort keeps ties by id.
	slices.SortStableFunc(results, func(a, b Neighbor) int {
		return cmp.Compare(a.Distance, b.Distance)
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// SquaredL2 returns the squared Euclidean distance between a and b, which
// must have equal length.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
