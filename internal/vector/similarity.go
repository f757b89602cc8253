package vector

import (
	"math"
	"sort"

	"knowledgescout/internal/chunk"
)

// RankedCandidate pairs a chunk with its similarity score for a single
// ranking pass. It is never persisted.
type RankedCandidate struct {
	Chunk chunk.Chunk
	Score float64
}

// Cosine returns the cosine similarity of two vectors, bounded in [-1, 1].
// Mismatched lengths, empty vectors and zero magnitudes all score 0: they
// mean "not similar", never an error.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	magnitude := math.Sqrt(normA) * math.Sqrt(normB)
	if magnitude == 0 {
		return 0
	}
	return dot / magnitude
}

// Rank scores every candidate against the query vector and returns up to k
// results, descending by score. Chunks without an embedding score 0. Ties
// break by ascending position so ranking is deterministic.
func Rank(query []float64, candidates []chunk.Chunk, k int) []RankedCandidate {
	if k <= 0 {
		return nil
	}

	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, RankedCandidate{Chunk: c, Score: Cosine(query, c.Embedding)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Chunk.Position < ranked[j].Chunk.Position
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
