package study

import (
	"container/heap"
	"math"

	"github.com/dukerupert/tareas/internal/model"
)

// Match is a chunk relevant to a query.
type Match struct {
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// Search returns up to limit chunks whose cosine similarity to query is at
// least threshold, most similar first.
func Search(query []float32, chunks []model.DocumentChunk, threshold float64, limit int) []Match {
	if limit <= 0 {
		limit = 5
	}
	q := unit(query)

	h := &matchHeap{}
	for _, c := range chunks {
		if len(c.Embedding) != len(q) {
			continue
		}
		score := dot(q, unit(c.Embedding))
		if score < threshold {
			continue
		}
		m := Match{ChunkIndex: c.ChunkIndex, Content: c.Content, Similarity: score}
		if h.Len() < limit {
			heap.Push(h, m)
		} else if score > (*h)[0].Similarity {
			(*h)[0] = m
			heap.Fix(h, 0)
		}
	}

	out := make([]Match, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Match)
	}
	return out
}

// matchHeap keeps the weakest match at the root.
type matchHeap []Match

func (h matchHeap) Len() int           { return len(h) }
func (h matchHeap) Less(i, j int) bool { return h[i].Similarity < h[j].Similarity }
func (h matchHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x any)        { *h = append(*h, x.(Match)) }
func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func unit(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
