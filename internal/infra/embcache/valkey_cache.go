package embcache

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/faq-assistant/internal/infra/embedder"
)

// ValkeyCache persists embeddings in a Valkey-compatible database.
type ValkeyCache struct {
	client valkey.Client
	prefix string
}

// NewValkeyCache constructs a cache whose keys live under prefix.
func NewValkeyCache(client valkey.Client, prefix string) *ValkeyCache {
	if prefix == "" {
		prefix = "faq:emb"
	}
	return &ValkeyCache{client: client, prefix: prefix}
}

// Get implements embedder.Cache.
func (c *ValkeyCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	result := c.client.Do(ctx, c.client.B().Get().Key(c.key(key)).Build())
	payload, err := result.AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

// Set implements embedder.Cache.
func (c *ValkeyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	builder := c.client.B().Set().Key(c.key(key)).Value(valkey.BinaryString(value))
	var cmd valkey.Completed
	if ttl > 0 {
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	return c.client.Do(ctx, cmd).Error()
}

func (c *ValkeyCache) key(key string) string {
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

var _ embedder.Cache = (*ValkeyCache)(nil)
