package face

import "math"

// epsilon guards against division by zero for degenerate embeddings.
const epsilon = 1e-8

// CosineSimilarity computes the cosine similarity between two embeddings.
// Both vectors must have the same length; the result is in [-1, 1].
func CosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	return dot / ((math.Sqrt(normA) + epsilon) * (math.Sqrt(normB) + epsilon))
}

// BestSimilarity returns the highest cosine similarity between the query
// embedding and any embedding in the enrolled set. An empty set yields 0.
func BestSimilarity(query []float32, enrolled [][]float32) float64 {
	best := 0.0
	for i, emb := range enrolled {
		s := CosineSimilarity(query, emb)
		if i == 0 || s > best {
			best = s
		}
	}
	return best
}
