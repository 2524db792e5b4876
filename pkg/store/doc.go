// Package store defines the versioned storage-engine capability set and the
// in-memory reference engine.
//
// # Overview
//
// A library holds symbols; a symbol holds an ordered sequence of immutable
// versions. Every mutating operation creates a new version, leaving history
// intact; version numbers are monotonic per symbol and deletions leave gaps.
// The one exception is UpdateVersionMetadata, which rewrites the metadata of
// an existing version in place so historical versions can be backfilled
// without disturbing version history.
//
// # Engines
//
// MemEngine keeps everything in process memory and backs mem:// URIs and the
// test suites:
//
//	engine := store.NewMemEngine("prices")
//	item, err := engine.Write(ctx, "AAPL", data, nil, store.WriteOptions{})
//
// Durable engines live in subpackages: store/sqlite (single-file, embedded)
// and store/postgres (shared server, optional caching). The URI resolver in
// store/engines picks one from a connection string:
//
//	engine, err := engines.Open(ctx, "sqlite:///var/lib/chronicle.db", "prices")
//
// # Error Model
//
// Engines return ErrSymbolNotFound and ErrVersionNotFound (wrapped with the
// offending symbol and version) for missing data; errors.Is reaches the
// sentinels. Everything else is backend-specific and passes through to the
// caller untouched.
//
// # Related Packages
//
//   - pkg/audited: enforcement wrapper that audits every engine call
//   - pkg/migrate: audit-metadata backfill over ListSymbols/ListVersions
package store
