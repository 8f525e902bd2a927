package cache

import (
	"context"
	"time"

	"github.com/matzehuels/forceview/pkg/observability"
)

// Instrumented reports hits, misses and writes of the wrapped cache to the
// registered observability hooks.
type Instrumented struct {
	Cache
}

// NewInstrumented wraps c. A nil c is replaced by a NullCache.
func NewInstrumented(c Cache) *Instrumented {
	if c == nil {
		c = NewNullCache()
	}
	return &Instrumented{Cache: c}
}

func (c *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, hit, err := c.Cache.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if hit {
		observability.Cache().OnCacheHit(ctx, KeyType(key))
	} else {
		observability.Cache().OnCacheMiss(ctx, KeyType(key))
	}
	return data, hit, nil
}

func (c *Instrumented) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.Cache.Set(ctx, key, data, ttl); err != nil {
		return err
	}
	observability.Cache().OnCacheSet(ctx, KeyType(key), len(data))
	return nil
}
