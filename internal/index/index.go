// Package index implements the immutable in-memory vector index used to resolve questions.
//
// Search is exact: every query scans all entries, which keeps the top-k ordering
// identical to a reference brute-force search.
package index

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/kailas-cloud/passage/internal/domain"
	"github.com/kailas-cloud/passage/internal/domain/chunk"
)

// Entry pairs a chunk with its embedding.
type Entry struct {
	Chunk  chunk.Chunk
	Vector []float32
}

// Hit is a single query match.
type Hit struct {
	Chunk    chunk.Chunk
	Distance float64
}

// Index is safe for concurrent queries. It cannot be modified after Build.
type Index struct {
	id      string
	metric  Metric
	dim     int
	chunks  []chunk.Chunk
	vectors [][]float32
	norms   []float64
}

// Build validates entries and constructs the index. It fails with domain.ErrIndex
// when entries is empty or vector dimensions disagree.
func Build(entries []Entry, metric Metric) (*Index, error) {
	if !metric.valid() {
		return nil, fmt.Errorf("%w: unknown metric %q", domain.ErrIndex, metric)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", domain.ErrIndex)
	}

	dim := len(entries[0].Vector)
	if dim == 0 {
		return nil, fmt.Errorf("%w: entry 0 has an empty vector", domain.ErrIndex)
	}

	idx := &Index{
		id:      uuid.NewString(),
		metric:  metric,
		dim:     dim,
		chunks:  make([]chunk.Chunk, len(entries)),
		vectors: make([][]float32, len(entries)),
		norms:   make([]float64, len(entries)),
	}
	for i, e := range entries {
		if len(e.Vector) != dim {
			return nil, fmt.Errorf("%w: entry %d: %w", domain.ErrIndex, i, domain.NewDimensionError(dim, len(e.Vector)))
		}
		idx.chunks[i] = e.Chunk
		idx.vectors[i] = slices.Clone(e.Vector)
		idx.norms[i] = norm(e.Vector)
	}
	return idx, nil
}

// Query returns up to k entries closest to vec, ascending by distance. Equal
// distances keep insertion order. Fails with domain.ErrQuery when k <= 0 or the
// vector dimension differs from the index.
func (i *Index) Query(vec []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrQuery, k)
	}
	if len(vec) != i.dim {
		return nil, fmt.Errorf("%w: %w", domain.ErrQuery, domain.NewDimensionError(i.dim, len(vec)))
	}

	type scored struct {
		pos  int
		dist float64
	}
	scoreds := make([]scored, len(i.vectors))

	qn := norm(vec)
	for pos, v := range i.vectors {
		var d float64
		switch i.metric {
		case Cosine:
			d = cosineDistance(vec, qn, v, i.norms[pos])
		default:
			d = euclidean(vec, v)
		}
		if math.IsNaN(d) {
			d = math.Inf(1)
		}
		scoreds[pos] = scored{pos: pos, dist: d}
	}

	slices.SortStableFunc(scoreds, func(a, b scored) int {
		return cmp.Compare(a.dist, b.dist)
	})

	k = min(k, len(scoreds))
	hits := make([]Hit, k)
	for n := range k {
		hits[n] = Hit{Chunk: i.chunks[scoreds[n].pos], Distance: scoreds[n].dist}
	}
	return hits, nil
}

// ID identifies this build of the index.
func (i *Index) ID() string { return i.id }

// Len returns the number of entries.
func (i *Index) Len() int { return len(i.vectors) }

// Dimension returns the vector dimension shared by all entries.
func (i *Index) Dimension() int { return i.dim }

// Metric returns the distance metric.
func (i *Index) Metric() Metric { return i.metric }
