package faq

import (
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/faq-assistant/pkg/errors"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CosineSimilarity(tc.a, tc.b)
			require.NoError(t, err)
			require.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestCosineSimilarityRejectsInvalidVectors(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
	require.True(t, apperrors.IsCode(err, apperrors.CodeDataIntegrity))

	_, err = CosineSimilarity([]float32{1, 0}, []float32{0, 0})
	require.True(t, apperrors.IsCode(err, apperrors.CodeDataIntegrity))
}
