package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeVectorRejectsTruncatedInput(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestEncodeVectorLayout(t *testing.T) {
	encoded := EncodeVector([]float32{1})
	require.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, encoded)

	decoded, err := DecodeVector(encoded)
	require.NoError(t, err)
	require.Equal(t, []float32{1}, decoded)
}
