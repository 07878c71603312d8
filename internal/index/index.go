// Package index is an exact nearest-neighbour index over the summaries of
// one completed session.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/session"
)

var (
	// ErrDimensionMismatch is returned when vectors differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrIncomplete is returned when building from a session still capturing.
	ErrIncomplete = errors.New("session capture has not completed")
)

// Hit is one search result.
type Hit struct {
	Position int     // record position in the session
	Distance float64 // squared Euclidean
}

// Index holds one vector per session record, by position. It is built
// whole and never updated; a nil *Index means nothing was indexed.
type Index struct {
	vectors [][]float32
	dim     int
}

// New validates vectors and builds an index over them.
func New(vectors [][]float32) (*Index, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("vector 0 is empty: %w", ErrDimensionMismatch)
	}
	cp := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has %d dimensions, want %d: %w", i, len(v), dim, ErrDimensionMismatch)
		}
		cp[i] = append([]float32(nil), v...)
	}
	return &Index{vectors: cp, dim: dim}, nil
}

// Build embeds every summary of a completed snapshot in one batched call.
// An empty snapshot yields a nil index without calling the embedder.
func Build(ctx context.Context, e provider.Embedder, snap session.Snapshot) (*Index, error) {
	if !snap.Complete() {
		return nil, ErrIncomplete
	}
	if snap.Len() == 0 {
		return nil, nil
	}

	vecs, err := e.Embed(ctx, snap.Summaries())
	if err != nil {
		return nil, fmt.Errorf("embed %d summaries: %w", snap.Len(), err)
	}
	if len(vecs) != snap.Len() {
		return nil, fmt.Errorf("embedder returned %d vectors for %d summaries", len(vecs), snap.Len())
	}
	return New(vecs)
}

// Len returns the number of indexed vectors.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.vectors)
}

// Dim returns the vector dimension.
func (x *Index) Dim() int {
	if x == nil {
		return 0
	}
	return x.dim
}

// Vector returns a copy of the vector at position i.
func (x *Index) Vector(i int) []float32 {
	return append([]float32(nil), x.vectors[i]...)
}

// Search returns the k nearest vectors to q by ascending distance. Equal
// distances are ordered by position, so repeated queries are stable.
func (x *Index) Search(q []float32, k int) ([]Hit, error) {
	if x == nil || k <= 0 {
		return nil, nil
	}
	if len(q) != x.dim {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w", len(q), x.dim, ErrDimensionMismatch)
	}

	hits := make([]Hit, len(x.vectors))
	for i, v := range x.vectors {
		hits[i] = Hit{Position: i, Distance: squaredDistance(q, v)}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func squaredDistance(a, b []float32) float64 {
	var d float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		d += diff * diff
	}
	return d
}
