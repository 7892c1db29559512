package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupeKey(t *testing.T) {
	cases := []struct {
		name string
		in   string
		out  string
	}{
		{name: "trims whitespace", in: "  How do I reset my password  ", out: "how do i reset my password"},
		{name: "punctuation folds to space", in: "What's the VPN address?", out: "what s the vpn address"},
		{name: "collapses runs", in: "printer\t\tjammed -- again", out: "printer jammed again"},
		{name: "keeps digits", in: "Wi-Fi 6E support", out: "wi fi 6e support"},
		{name: "only punctuation", in: "?!", out: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.out, dedupeKey(tc.in))
		})
	}
}
