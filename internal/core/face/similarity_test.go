package face

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{0.5, -0.25, 0.75, 1.0}
	got := CosineSimilarity(v, v)
	if !almostEqual(got, 1.0) {
		t.Fatalf("expected similarity ~1.0 for identical vectors, got %f", got)
	}
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float32{1, 0, 0, 0}
	b := []float32{0, 1, 0, 0}
	got := CosineSimilarity(a, b)
	if !almostEqual(got, 0.0) {
		t.Fatalf("expected similarity ~0.0 for orthogonal vectors, got %f", got)
	}
}

func TestCosineSimilarityOpposite(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-1, -2, -3}
	got := CosineSimilarity(a, b)
	if !almostEqual(got, -1.0) {
		t.Fatalf("expected similarity ~-1.0 for opposite vectors, got %f", got)
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	got := CosineSimilarity(a, b)
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("expected finite similarity for zero vector, got %f", got)
	}
}

func TestBestSimilarityPicksMaximum(t *testing.T) {
	query := []float32{1, 0, 0}
	enrolled := [][]float32{
		{0, 1, 0},     // orthogonal
		{1, 1, 0},     // partial match
		{1, 0.001, 0}, // near-identical
		{-1, 0, 0},    // opposite
	}

	got := BestSimilarity(query, enrolled)
	want := CosineSimilarity(query, enrolled[2])
	if !almostEqual(got, want) {
		t.Fatalf("expected best similarity %f, got %f", want, got)
	}
}

func TestBestSimilarityEmptySet(t *testing.T) {
	if got := BestSimilarity([]float32{1, 2}, nil); got != 0 {
		t.Fatalf("expected 0 for empty enrolled set, got %f", got)
	}
}

func TestBestSimilarityNegativeOnly(t *testing.T) {
	query := []float32{1, 0}
	enrolled := [][]float32{{-1, 0}, {-1, -0.5}}

	got := BestSimilarity(query, enrolled)
	if got >= 0 {
		t.Fatalf("expected negative best similarity, got %f", got)
	}
}
