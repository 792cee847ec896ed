package utils

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{
			name:     "identical vectors",
			a:        []float32{1, 0, 0},
			b:        []float32{1, 0, 0},
			expected: 1.0,
		},
		{
			name:     "opposite vectors",
			a:        []float32{1, 0, 0},
			b:        []float32{-1, 0, 0},
			expected: -1.0,
		},
		{
			name:     "orthogonal vectors",
			a:        []float32{1, 0, 0},
			b:        []float32{0, 1, 0},
			expected: 0.0,
		},
		{
			name:     "scaled vectors",
			a:        []float32{1, 2, 3},
			b:        []float32{2, 4, 6},
			expected: 1.0,
		},
		{
			name:     "different lengths",
			a:        []float32{1, 2, 3},
			b:        []float32{1, 2},
			expected: 0.0,
		},
		{
			name:     "zero vector",
			a:        []float32{0, 0, 0},
			b:        []float32{1, 2, 3},
			expected: 0.0,
		},
		{
			name:     "nil vectors",
			a:        nil,
			b:        nil,
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CosineSimilarity(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 1e-6 {
				t.Errorf("CosineSimilarity(%v, %v) = %v, expected %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestValidVector(t *testing.T) {
	t.Parallel()
	nan := float32(math.NaN())
	tests := []struct {
		name string
		v    []float32
		dims int
		want bool
	}{
		{"matching dims", []float32{1, 2}, 2, true},
		{"unchecked dims", []float32{1, 2, 3}, 0, true},
		{"wrong dims", []float32{1, 2, 3}, 2, false},
		{"empty", nil, 0, false},
		{"nan", []float32{1, nan}, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidVector(tt.v, tt.dims); got != tt.want {
				t.Errorf("ValidVector(%v, %d) = %v, want %v", tt.v, tt.dims, got, tt.want)
			}
		})
	}
}

func TestTopK(t *testing.T) {
	t.Parallel()
	items := []ScoredItem[string]{
		{Item: "b", Score: 0.5},
		{Item: "a", Score: 0.9},
		{Item: "c", Score: 0.5},
		{Item: "d", Score: 0.1},
	}

	got := TopK(items, 3, func(x, y string) bool { return x > y })
	want := []string{"a", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("TopK returned %d items, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Item != want[i] {
			t.Errorf("TopK[%d] = %q, want %q", i, got[i].Item, want[i])
		}
	}

	if all := TopK(items, 0, nil); len(all) != len(items) {
		t.Errorf("TopK with k=0 returned %d items", len(all))
	}
	if items[0].Item != "b" {
		t.Error("TopK modified its input")
	}
}
