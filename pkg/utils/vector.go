package utils

import (
	"math"
	"sort"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths, empty vectors and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ValidVector reports whether v has the expected dimension and only finite
// components. dims <= 0 skips the dimension check.
func ValidVector(v []float32, dims int) bool {
	if len(v) == 0 || (dims > 0 && len(v) != dims) {
		return false
	}
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// ScoredItem pairs an item with a ranking score.
type ScoredItem[T any] struct {
	Item  T
	Score float64
}

// TopK sorts items by descending score and keeps the first k. less breaks
// ties; it may be nil. k <= 0 keeps everything.
func TopK[T any](items []ScoredItem[T], k int, less func(a, b T) bool) []ScoredItem[T] {
	out := make([]ScoredItem[T], len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if less != nil {
			return less(out[i].Item, out[j].Item)
		}
		return false
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
