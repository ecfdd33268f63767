// Package similarity provides the exact cosine search shared by the local
// vector store backends.
package similarity

import (
	"container/heap"
	"math"
	"sort"
)

// Cosine returns the cosine similarity of two vectors in [-1, 1].
// Vectors of different length or zero norm score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Hit is one scored candidate. Index points back into the caller's slice.
type Hit struct {
	Index int
	Score float64
}

// hitHeap is a min-heap on score so the weakest hit is evicted first.
type hitHeap []Hit

func (h hitHeap) Len() int { return len(h) }
func (h hitHeap) Less(i, j int) bool { return lessHit(h[i], h[j]) }
func (h hitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)   { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopK collects the k best-scoring candidates.
type TopK struct {
	k int
	h hitHeap
}

// NewTopK returns a collector for k hits. k <= 0 collects nothing.
func NewTopK(k int) *TopK {
	if k < 0 {
		k = 0
	}
	return &TopK{k: k, h: make(hitHeap, 0, k)}
}

// Offer considers a candidate.
func (t *TopK) Offer(index int, score float64) {
	if t.k == 0 {
		return
	}
	hit := Hit{Index: index, Score: score}
	if len(t.h) < t.k {
		heap.Push(&t.h, hit)
		return
	}
	if !lessHit(t.h[0], hit) {
		return
	}
	t.h[0] = hit
	heap.Fix(&t.h, 0)
}

// lessHit reports whether a ranks below b.
func lessHit(a, b Hit) bool {
	if a.Score == b.Score {
		return a.Index > b.Index
	}
	return a.Score < b.Score
}

// Results returns the hits ordered by descending score.
// Ties keep insertion order.
func (t *TopK) Results() []Hit {
	out := make([]Hit, len(t.h))
	copy(out, t.h)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Index < out[j].Index
		}
		return out[i].Score > out[j].Score
	})
	return out
}
