package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimestampRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 6, 789, time.FixedZone("x", 3600))
	got, err := ParseTimestamp(Timestamp(at))
	require.NoError(t, err)
	require.True(t, got.Equal(at))
	require.Equal(t, time.UTC, got.Location())
}

func TestParseTimestampEmpty(t *testing.T) {
	got, err := ParseTimestamp("")
	require.NoError(t, err)
	require.True(t, got.IsZero())

	_, err = ParseTimestamp("yesterday")
	require.Error(t, err)
}
