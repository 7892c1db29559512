package faq

import (
	"fmt"
	"math"

	apperrors "github.com/yanqian/faq-assistant/pkg/errors"
)

// CosineSimilarity returns 1 - cosine distance of a and b. Vectors of different
// length or with zero norm cannot be compared and yield a data integrity error.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, apperrors.Wrap(apperrors.CodeDataIntegrity, fmt.Sprintf("dimension mismatch: %d vs %d", len(a), len(b)), nil)
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, apperrors.Wrap(apperrors.CodeDataIntegrity, "zero-norm vector", nil)
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push identical vectors a hair past 1
	return math.Max(-1, math.Min(1, sim)), nil
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
