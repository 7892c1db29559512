package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/faq-assistant/internal/infra/config"
)

func TestOriginPolicy(t *testing.T) {
	open := newOriginPolicy(nil)
	require.Equal(t, "*", open.allowOrigin("https://anything.example"))

	wildcard := newOriginPolicy([]string{"https://app.example", "*"})
	require.Equal(t, "*", wildcard.allowOrigin("https://other.example"))

	listed := newOriginPolicy([]string{" https://App.example "})
	require.Equal(t, "https://app.example", listed.allowOrigin("https://app.example"))
	require.Empty(t, listed.allowOrigin("https://evil.example"))
	require.Empty(t, listed.allowOrigin(""))
}

func TestRouter_CORSRejectsUnlistedOrigin(t *testing.T) {
	server := newRouterUnderTest(t, &stubFAQ{}, func(cfg *config.Config) {
		cfg.HTTP.AllowedOrigins = []string{"https://app.example"}
	})

	rec := performRequest(server, http.MethodGet, "/", "", map[string]string{"Origin": "https://evil.example"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Origin", rec.Header().Get("Vary"))

	rec = performRequest(server, http.MethodOptions, "/ask-question", "", map[string]string{"Origin": "https://app.example"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}
