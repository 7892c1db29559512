package embcache

import (
	"context"
	"sync"
	"time"

	"github.com/yanqian/faq-assistant/internal/infra/embedder"
	"github.com/yanqian/faq-assistant/pkg/util"
)

type cachedValue struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryCache keeps embeddings in process memory for tests/dev.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cachedValue
	now     func() time.Time
}

// NewMemoryCache constructs an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cachedValue),
		now:     util.NowUTC,
	}
}

// Get implements embedder.Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	value, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !value.expiresAt.IsZero() && c.now().After(value.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), value.payload...), true, nil
}

// Set stores value with an optional TTL.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.entries[key] = cachedValue{payload: append([]byte(nil), value...), expiresAt: exp}
	return nil
}

var _ embedder.Cache = (*MemoryCache)(nil)
