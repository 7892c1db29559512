package embedder

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/yanqian/faq-assistant/internal/domain/faq"
)

// DeterministicEmbedder avoids network calls by hashing text into a vector.
// Identical text (ignoring case and surrounding space) maps to identical vectors.
type DeterministicEmbedder struct {
	dim int
}

// NewDeterministicEmbedder constructs the embedder.
func NewDeterministicEmbedder(dim int) *DeterministicEmbedder {
	if dim <= 0 {
		dim = 32
	}
	return &DeterministicEmbedder{dim: dim}
}

// Embed converts text into a pseudo-random vector with values in (0, 1].
func (e *DeterministicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, e.dim)
	hash := fnv.New64a()
	_, _ = hash.Write([]byte(strings.ToLower(strings.TrimSpace(text))))
	seed := hash.Sum64()
	for j := 0; j < e.dim; j++ {
		seed = seed*1099511628211 + 1469598103934665603
		vector[j] = float32(seed%997+1) / 997.0
	}
	return vector, nil
}

var _ faq.Embedder = (*DeterministicEmbedder)(nil)
