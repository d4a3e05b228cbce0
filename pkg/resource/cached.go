package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.uber.org/multierr"

	"github.com/albertocavalcante/assetpipe/internal/metrics"
)

// CacheOptions sizes a CachedProvider.
type CacheOptions struct {
	// Life is how long an entry stays cached.
	Life time.Duration
	// MaxSizeMB caps the cache; zero means unbounded.
	MaxSizeMB int
	Metrics   *metrics.Resolve
}

// CachedProvider keeps static reads of another provider in memory. Streams
// always go to the wrapped provider.
type CachedProvider struct {
	Provider
	cache   *bigcache.BigCache
	metrics *metrics.Resolve
}

// NewCachedProvider wraps p with an in-memory cache.
func NewCachedProvider(ctx context.Context, p Provider, opts CacheOptions) (*CachedProvider, error) {
	if opts.Life <= 0 {
		opts.Life = 10 * time.Minute
	}
	cfg := bigcache.DefaultConfig(opts.Life)
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 1024
	cfg.MaxEntrySize = 64 * 1024
	cfg.CleanWindow = opts.Life
	cfg.Verbose = false
	cfg.HardMaxCacheSize = opts.MaxSizeMB
	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource cache: %w", err)
	}
	return &CachedProvider{Provider: p, cache: cache, metrics: opts.Metrics}, nil
}

// Get implements Provider.
func (c *CachedProvider) Get(id string, stream bool) (Data, error) {
	if stream {
		return c.Provider.Get(id, true)
	}
	if data, err := c.cache.Get(id); err == nil {
		c.metrics.CacheHit(true)
		return NewStaticData(id, data), nil
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, err
	}
	c.metrics.CacheHit(false)

	d, err := c.Provider.Get(id, false)
	if err != nil {
		return nil, err
	}
	if s, ok := d.(*StaticData); ok {
		// Entries too large for a shard are served uncached.
		_ = c.cache.Set(id, s.Bytes())
	}
	return d, nil
}

// Invalidate drops id from the cache.
func (c *CachedProvider) Invalidate(id string) {
	_ = c.cache.Delete(id)
}

// Len returns the number of cached entries.
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}

// Close releases the cache and closes the wrapped provider if it holds
// resources.
func (c *CachedProvider) Close() error {
	err := c.cache.Close()
	if cl, ok := c.Provider.(io.Closer); ok {
		err = multierr.Append(err, cl.Close())
	}
	return err
}
