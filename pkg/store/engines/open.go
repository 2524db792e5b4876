// Package engines resolves storage URIs into live storage engines. It sits
// outside pkg/store so the engine implementations can depend on the
// interface package without a cycle.
package engines

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quartzdata/chronicle/pkg/store"
	"github.com/quartzdata/chronicle/pkg/store/postgres"
	"github.com/quartzdata/chronicle/pkg/store/sqlite"
)

// Open resolves uri into an engine serving library. The context bounds
// connection establishment for networked engines.
//
// Supported schemes:
//
//	mem://                          in-memory engine
//	sqlite:///var/lib/chronicle.db  file-backed SQLite
//	sqlite://:memory:               ephemeral SQLite
//	postgres://user:pw@host/db      PostgreSQL
//
// A postgres URI may carry cache parameters, which are stripped before the
// connection string reaches the driver:
//
//	cache=on            enable the in-memory cache tier
//	cache_redis=host:p  also enable the Redis tier
//	cache_ttl=5m        cache entry lifetime
//	cache_entries=1024  in-memory entry bound
func Open(ctx context.Context, uri, library string) (store.Engine, error) {
	if uri == "" {
		return nil, fmt.Errorf("storage URI is required")
	}
	if library == "" {
		return nil, fmt.Errorf("library name is required")
	}

	// SQLite paths like :memory: are not valid URL hosts, so the scheme is
	// handled before URL parsing.
	if strings.HasPrefix(uri, "sqlite://") {
		path := strings.TrimPrefix(uri, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite URI requires a database path")
		}
		return sqlite.Open(path, library)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid storage URI: %w", err)
	}

	switch u.Scheme {
	case "mem":
		return store.NewMemEngine(library), nil
	case "postgres", "postgresql":
		return openPostgres(ctx, u, library)
	default:
		return nil, fmt.Errorf("unsupported storage scheme %q", u.Scheme)
	}
}

func openPostgres(ctx context.Context, u *url.URL, library string) (store.Engine, error) {
	query := u.Query()
	cacheFlag := query.Get("cache")
	cacheRedis := query.Get("cache_redis")
	cacheTTL := query.Get("cache_ttl")
	cacheEntries := query.Get("cache_entries")
	for _, key := range []string{"cache", "cache_redis", "cache_ttl", "cache_entries"} {
		query.Del(key)
	}
	u.RawQuery = query.Encode()

	engine, err := postgres.OpenContext(ctx, u.String(), library)
	if err != nil {
		return nil, err
	}

	enabled := cacheFlag != "" && cacheFlag != "off" && cacheFlag != "false" && cacheFlag != "0"
	if !enabled && cacheRedis == "" {
		return engine, nil
	}

	config := postgres.DefaultCacheConfig()
	if cacheRedis != "" {
		if !strings.Contains(cacheRedis, "://") {
			cacheRedis = "redis://" + cacheRedis
		}
		config.RedisURL = cacheRedis
	}
	if cacheTTL != "" {
		ttl, err := time.ParseDuration(cacheTTL)
		if err != nil {
			engine.Close()
			return nil, fmt.Errorf("invalid cache_ttl: %w", err)
		}
		config.TTL = ttl
	}
	if cacheEntries != "" {
		entries, err := strconv.Atoi(cacheEntries)
		if err != nil {
			engine.Close()
			return nil, fmt.Errorf("invalid cache_entries: %w", err)
		}
		config.MaxEntries = entries
	}

	cached, err := postgres.NewCachedEngine(engine, config)
	if err != nil {
		engine.Close()
		return nil, err
	}
	return cached, nil
}
