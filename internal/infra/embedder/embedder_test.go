package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/faq-assistant/pkg/util"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenAIEmbedderEmbed(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","model":"text-embedding-3-small","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3,0.4]}],"usage":{"prompt_tokens":3,"total_tokens":3}}`)
	}))
	defer server.Close()

	emb := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "text-embedding-3-small",
		Dimensions: 4,
	}, newTestLogger())

	vec, err := emb.Embed(context.Background(), "reset password")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, vec)
	require.Equal(t, "text-embedding-3-small", got["model"])
	require.Equal(t, float64(4), got["dimensions"])
}

func TestOpenAIEmbedderAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limit exceeded","type":"rate_limit_error"}}`)
	}))
	defer server.Close()

	emb := NewOpenAIEmbedder(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL, Model: "text-embedding-3-small"}, newTestLogger())

	_, err := emb.Embed(context.Background(), "hello")
	require.Error(t, err)
}

func TestDeterministicEmbedder(t *testing.T) {
	emb := NewDeterministicEmbedder(8)

	a, err := emb.Embed(context.Background(), "Reset Password")
	require.NoError(t, err)
	b, err := emb.Embed(context.Background(), "  reset password ")
	require.NoError(t, err)
	c, err := emb.Embed(context.Background(), "vpn setup")
	require.NoError(t, err)

	require.Len(t, a, 8)
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	for _, v := range a {
		require.Greater(t, v, float32(0))
	}
}

type mapCache struct {
	mu     sync.Mutex
	values map[string][]byte
	getErr error
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(context.Context, string) ([]float32, error) {
	c.calls++
	return []float32{0.25, 0.5}, nil
}

func TestCachedEmbedderHitsCache(t *testing.T) {
	inner := &countingEmbedder{}
	cache := &mapCache{values: map[string][]byte{}}
	emb := NewCachedEmbedder(inner, cache, "m", 2, time.Hour, nil, newTestLogger())

	for i := 0; i < 3; i++ {
		vec, err := emb.Embed(context.Background(), "same text")
		require.NoError(t, err)
		require.Equal(t, []float32{0.25, 0.5}, vec)
	}
	require.Equal(t, 1, inner.calls)
	require.Len(t, cache.values, 1)
}

func TestCachedEmbedderKeysByModel(t *testing.T) {
	cache := &mapCache{values: map[string][]byte{}}
	a := NewCachedEmbedder(&countingEmbedder{}, cache, "model-a", 2, 0, nil, newTestLogger())
	b := NewCachedEmbedder(&countingEmbedder{}, cache, "model-b", 2, 0, nil, newTestLogger())

	_, err := a.Embed(context.Background(), "text")
	require.NoError(t, err)
	_, err = b.Embed(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, cache.values, 2)
}

func TestCachedEmbedderFallsThroughOnCacheError(t *testing.T) {
	inner := &countingEmbedder{}
	cache := &mapCache{values: map[string][]byte{}, getErr: errors.New("valkey down")}
	emb := NewCachedEmbedder(inner, cache, "m", 2, 0, nil, newTestLogger())

	vec, err := emb.Embed(context.Background(), "text")
	require.NoError(t, err)
	require.Equal(t, []float32{0.25, 0.5}, vec)
	require.Equal(t, 1, inner.calls)
}

func TestCachedEmbedderKeysByDimension(t *testing.T) {
	cache := &mapCache{values: map[string][]byte{}}
	small := NewCachedEmbedder(&countingEmbedder{}, cache, "m", 2, 0, nil, newTestLogger())
	_, err := small.Embed(context.Background(), "text")
	require.NoError(t, err)

	wide := &countingEmbedder{}
	widened := NewCachedEmbedder(wide, cache, "m", 3, 0, nil, newTestLogger())
	_, err = widened.Embed(context.Background(), "text")
	require.NoError(t, err)
	require.Equal(t, 1, wide.calls)
	require.Len(t, cache.values, 2)
}

func TestCachedEmbedderIgnoresWrongLengthEntry(t *testing.T) {
	inner := &countingEmbedder{}
	cache := &mapCache{values: map[string][]byte{}}
	emb := NewCachedEmbedder(inner, cache, "m", 2, 0, nil, newTestLogger())
	cache.values[emb.cacheKey("text")] = util.EncodeVector([]float32{1, 2, 3})

	vec, err := emb.Embed(context.Background(), "text")
	require.NoError(t, err)
	require.Equal(t, []float32{0.25, 0.5}, vec)
	require.Equal(t, 1, inner.calls)
}
