package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"time"

	"github.com/yanqian/faq-assistant/internal/domain/faq"
	"github.com/yanqian/faq-assistant/pkg/metrics"
	"github.com/yanqian/faq-assistant/pkg/util"
)

// Cache is the byte-level store behind CachedEmbedder.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder serves repeated texts from a key-value cache. Cache failures
// are logged and fall through to the wrapped embedder.
type CachedEmbedder struct {
	inner     faq.Embedder
	cache     Cache
	model     string
	dimension int
	ttl       time.Duration
	recorder  *metrics.Recorder
	logger    *slog.Logger
}

// NewCachedEmbedder wraps inner. The model name and dimension are part of
// every key; a cached vector of any other length is ignored.
func NewCachedEmbedder(inner faq.Embedder, cache Cache, model string, dimension int, ttl time.Duration, recorder *metrics.Recorder, logger *slog.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:     inner,
		cache:     cache,
		model:     model,
		dimension: dimension,
		ttl:       ttl,
		recorder:  recorder,
		logger:    logger.With("component", "embedder.cache"),
	}
}

// Embed implements faq.Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.lookup(ctx, key); ok {
		c.recorder.ObserveCacheLookup(true)
		return vec, nil
	}
	c.recorder.ObserveCacheLookup(false)

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, util.EncodeVector(vec), c.ttl); err != nil {
		c.logger.Warn("failed to cache embedding", "key", key, "error", err)
	}
	return vec, nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("failed to read cached embedding", "key", key, "error", err)
		return nil, false
	}
	if !ok || len(data) == 0 {
		return nil, false
	}
	vec, err := util.DecodeVector(data)
	if err != nil {
		c.logger.Warn("failed to parse cached embedding", "key", key, "error", err)
		return nil, false
	}
	if c.dimension > 0 && len(vec) != c.dimension {
		c.logger.Warn("cached embedding has the wrong dimension", "key", key, "got", len(vec), "want", c.dimension)
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.model + "\x00" + strconv.Itoa(c.dimension) + "\x00" + text))
	return hex.EncodeToString(h[:])
}

var _ faq.Embedder = (*CachedEmbedder)(nil)
