package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/quartzdata/chronicle/pkg/store"
)

// CacheConfig controls the cache tiers in front of an engine.
type CacheConfig struct {
	// MaxEntries bounds the in-memory LRU.
	MaxEntries int
	// TTL applies to both tiers. Stale entries expire even if an
	// invalidation was missed.
	TTL time.Duration
	// RedisURL enables the Redis tier when set.
	RedisURL string
}

// DefaultCacheConfig returns the cache defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: 1024,
		TTL:        5 * time.Minute,
	}
}

// CachedEngine wraps a store.Engine with a read-through cache for Read and
// ReadMetadata. Mutations delegate to the inner engine and then invalidate
// every cached entry for the touched symbols. Listings always hit the inner
// engine. Cache failures never fail an operation.
type CachedEngine struct {
	inner store.Engine
	local *lru.LRU[string, *store.VersionedItem]
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedEngine layers a cache over inner. With an empty RedisURL only the
// in-memory tier is used.
func NewCachedEngine(inner store.Engine, config CacheConfig) (*CachedEngine, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner engine is required")
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheConfig().MaxEntries
	}
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig().TTL
	}

	engine := &CachedEngine{
		inner: inner,
		local: lru.NewLRU[string, *store.VersionedItem](config.MaxEntries, nil, config.TTL),
		ttl:   config.TTL,
	}

	if config.RedisURL != "" {
		opts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		opts.DialTimeout = 5 * time.Second
		opts.ReadTimeout = 3 * time.Second
		opts.WriteTimeout = 3 * time.Second

		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		engine.redis = client
	}

	return engine, nil
}

// Unwrap returns the inner engine.
func (c *CachedEngine) Unwrap() store.Engine {
	return c.inner
}

// Library returns the library the inner engine serves.
func (c *CachedEngine) Library() string {
	return c.inner.Library()
}

// Close closes the Redis connection and the inner engine.
func (c *CachedEngine) Close() error {
	c.local.Purge()
	if c.redis != nil {
		c.redis.Close()
	}
	return c.inner.Close()
}

func (c *CachedEngine) itemKey(symbol string, asOf *int64) string {
	return c.key("item", symbol, asOf)
}

func (c *CachedEngine) metaKey(symbol string, asOf *int64) string {
	return c.key("meta", symbol, asOf)
}

func (c *CachedEngine) key(kind, symbol string, asOf *int64) string {
	label := "latest"
	if asOf != nil {
		label = fmt.Sprintf("v%d", *asOf)
	}
	return fmt.Sprintf("chronicle:%s:%s:%s:%s", c.inner.Library(), kind, symbol, label)
}

// cacheGet checks the local tier and then Redis. Corrupt Redis entries are
// deleted on sight.
func (c *CachedEngine) cacheGet(ctx context.Context, key string) (*store.VersionedItem, bool) {
	if item, ok := c.local.Get(key); ok {
		return copyItem(item), true
	}

	if c.redis == nil {
		return nil, false
	}

	data, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}

	var item store.VersionedItem
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		c.redis.Del(ctx, key)
		return nil, false
	}

	c.local.Add(key, &item)
	return copyItem(&item), true
}

func (c *CachedEngine) cacheSet(ctx context.Context, key string, item *store.VersionedItem) {
	c.local.Add(key, copyItem(item))

	if c.redis == nil {
		return
	}
	data, err := json.Marshal(item)
	if err != nil {
		return
	}
	c.redis.Set(ctx, key, data, c.ttl)
}

// invalidate drops every cached entry for the given symbols. The local tier
// cannot match keys by pattern, so it is purged wholesale.
func (c *CachedEngine) invalidate(ctx context.Context, symbols ...string) {
	c.local.Purge()

	if c.redis == nil {
		return
	}
	for _, symbol := range symbols {
		pattern := fmt.Sprintf("chronicle:%s:*:%s:*", c.inner.Library(), symbol)
		iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if iter.Err() != nil {
			continue
		}
		if len(keys) > 0 {
			c.redis.Del(ctx, keys...)
		}
	}
}

// copyItem clones an item so cached entries never alias caller data.
func copyItem(item *store.VersionedItem) *store.VersionedItem {
	clone := *item
	clone.Data = append([]byte(nil), item.Data...)
	clone.Metadata = store.CloneMetadata(item.Metadata)
	return &clone
}

// Write delegates and invalidates the symbol.
func (c *CachedEngine) Write(ctx context.Context, symbol string, data []byte, metadata map[string]interface{}, opts store.WriteOptions) (*store.VersionedItem, error) {
	item, err := c.inner.Write(ctx, symbol, data, metadata, opts)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, symbol)
	return item, nil
}

// Read serves from cache when possible.
func (c *CachedEngine) Read(ctx context.Context, symbol string, opts store.ReadOptions) (*store.VersionedItem, error) {
	key := c.itemKey(symbol, opts.AsOf)
	if item, ok := c.cacheGet(ctx, key); ok {
		return item, nil
	}

	item, err := c.inner.Read(ctx, symbol, opts)
	if err != nil {
		return nil, err
	}
	c.cacheSet(ctx, key, item)
	return item, nil
}

// Update delegates and invalidates the symbol.
func (c *CachedEngine) Update(ctx context.Context, symbol string, data []byte, metadata map[string]interface{}, opts store.UpdateOptions) (*store.VersionedItem, error) {
	item, err := c.inner.Update(ctx, symbol, data, metadata, opts)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, symbol)
	return item, nil
}

// Append delegates and invalidates the symbol.
func (c *CachedEngine) Append(ctx context.Context, symbol string, data []byte, opts store.AppendOptions) (*store.VersionedItem, error) {
	item, err := c.inner.Append(ctx, symbol, data, opts)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, symbol)
	return item, nil
}

// Delete delegates and invalidates the symbol.
func (c *CachedEngine) Delete(ctx context.Context, symbol string, versions []int64) error {
	if err := c.inner.Delete(ctx, symbol, versions); err != nil {
		return err
	}
	c.invalidate(ctx, symbol)
	return nil
}

// WriteBatch delegates and invalidates every written symbol.
func (c *CachedEngine) WriteBatch(ctx context.Context, payloads []store.WritePayload, opts store.WriteOptions) ([]*store.VersionedItem, error) {
	items, err := c.inner.WriteBatch(ctx, payloads, opts)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(payloads))
	for _, p := range payloads {
		symbols = append(symbols, p.Symbol)
	}
	c.invalidate(ctx, symbols...)
	return items, nil
}

// ReadBatch reads each symbol through the cache in order.
func (c *CachedEngine) ReadBatch(ctx context.Context, symbols []string, opts store.ReadOptions) ([]*store.VersionedItem, error) {
	items := make([]*store.VersionedItem, 0, len(symbols))
	for _, symbol := range symbols {
		item, err := c.Read(ctx, symbol, opts)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// WriteMetadata delegates and invalidates the symbol.
func (c *CachedEngine) WriteMetadata(ctx context.Context, symbol string, metadata map[string]interface{}) (*store.VersionedItem, error) {
	item, err := c.inner.WriteMetadata(ctx, symbol, metadata)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, symbol)
	return item, nil
}

// ReadMetadata serves from cache when possible.
func (c *CachedEngine) ReadMetadata(ctx context.Context, symbol string, opts store.ReadOptions) (*store.VersionedItem, error) {
	key := c.metaKey(symbol, opts.AsOf)
	if item, ok := c.cacheGet(ctx, key); ok {
		return item, nil
	}

	item, err := c.inner.ReadMetadata(ctx, symbol, opts)
	if err != nil {
		return nil, err
	}
	c.cacheSet(ctx, key, item)
	return item, nil
}

// UpdateVersionMetadata delegates and invalidates the symbol.
func (c *CachedEngine) UpdateVersionMetadata(ctx context.Context, symbol string, version int64, metadata map[string]interface{}) error {
	if err := c.inner.UpdateVersionMetadata(ctx, symbol, version, metadata); err != nil {
		return err
	}
	c.invalidate(ctx, symbol)
	return nil
}

// ListSymbols always hits the inner engine.
func (c *CachedEngine) ListSymbols(ctx context.Context) ([]string, error) {
	return c.inner.ListSymbols(ctx)
}

// ListVersions always hits the inner engine.
func (c *CachedEngine) ListVersions(ctx context.Context, symbol string) ([]store.VersionInfo, error) {
	return c.inner.ListVersions(ctx, symbol)
}
