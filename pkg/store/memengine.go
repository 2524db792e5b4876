package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memVersion is one stored version; data and metadata are owned by the
// engine and copied at the boundary
type memVersion struct {
	version   int64
	data      []byte
	metadata  map[string]interface{}
	writtenAt time.Time
}

// MemEngine implements Engine in process memory. It backs mem:// URIs and
// the test suites; version numbers are monotonic per symbol and are never
// reused, so deletions leave gaps.
type MemEngine struct {
	library string

	mu      sync.RWMutex
	symbols map[string][]*memVersion
	nextVer map[string]int64
}

// NewMemEngine creates an empty in-memory engine for the given library
func NewMemEngine(library string) *MemEngine {
	return &MemEngine{
		library: library,
		symbols: make(map[string][]*memVersion),
		nextVer: make(map[string]int64),
	}
}

// Write implements Engine.Write
func (e *MemEngine) Write(ctx context.Context, symbol string, data []byte, metadata map[string]interface{}, opts WriteOptions) (*VersionedItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.writeLocked(symbol, data, metadata, opts.PrunePrevious), nil
}

// Read implements Engine.Read
func (e *MemEngine) Read(ctx context.Context, symbol string, opts ReadOptions) (*VersionedItem, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, err := e.findLocked(symbol, opts.AsOf)
	if err != nil {
		return nil, err
	}

	return e.itemLocked(symbol, rec, true), nil
}

// Update implements Engine.Update
func (e *MemEngine) Update(ctx context.Context, symbol string, data []byte, metadata map[string]interface{}, opts UpdateOptions) (*VersionedItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.symbols[symbol]) == 0 && !opts.Upsert {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	return e.writeLocked(symbol, data, metadata, opts.PrunePrevious), nil
}

// Append implements Engine.Append
func (e *MemEngine) Append(ctx context.Context, symbol string, data []byte, opts AppendOptions) (*VersionedItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	latest, err := e.findLocked(symbol, nil)
	if err != nil {
		return nil, err
	}

	extended := make([]byte, 0, len(latest.data)+len(data))
	extended = append(extended, latest.data...)
	extended = append(extended, data...)

	return e.writeLocked(symbol, extended, nil, opts.PrunePrevious), nil
}

// Delete implements Engine.Delete
func (e *MemEngine) Delete(ctx context.Context, symbol string, versions []int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing := e.symbols[symbol]
	if len(existing) == 0 {
		return fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	if len(versions) == 0 {
		delete(e.symbols, symbol)
		return nil
	}

	// Verify every named version before removing any, so a bad list is a
	// clean no-op.
	drop := make(map[int64]bool, len(versions))
	for _, v := range versions {
		found := false
		for _, rec := range existing {
			if rec.version == v {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s version %d", ErrVersionNotFound, symbol, v)
		}
		drop[v] = true
	}

	kept := make([]*memVersion, 0, len(existing)-len(drop))
	for _, rec := range existing {
		if !drop[rec.version] {
			kept = append(kept, rec)
		}
	}

	if len(kept) == 0 {
		delete(e.symbols, symbol)
	} else {
		e.symbols[symbol] = kept
	}

	return nil
}

// WriteBatch implements Engine.WriteBatch
func (e *MemEngine) WriteBatch(ctx context.Context, payloads []WritePayload, opts WriteOptions) ([]*VersionedItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	items := make([]*VersionedItem, 0, len(payloads))
	for _, p := range payloads {
		items = append(items, e.writeLocked(p.Symbol, p.Data, p.Metadata, opts.PrunePrevious))
	}

	return items, nil
}

// ReadBatch implements Engine.ReadBatch
func (e *MemEngine) ReadBatch(ctx context.Context, symbols []string, opts ReadOptions) ([]*VersionedItem, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	items := make([]*VersionedItem, 0, len(symbols))
	for _, symbol := range symbols {
		rec, err := e.findLocked(symbol, opts.AsOf)
		if err != nil {
			return nil, err
		}
		items = append(items, e.itemLocked(symbol, rec, true))
	}

	return items, nil
}

// WriteMetadata implements Engine.WriteMetadata
func (e *MemEngine) WriteMetadata(ctx context.Context, symbol string, metadata map[string]interface{}) (*VersionedItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	latest, err := e.findLocked(symbol, nil)
	if err != nil {
		return nil, err
	}

	return e.writeLocked(symbol, latest.data, metadata, false), nil
}

// ReadMetadata implements Engine.ReadMetadata
func (e *MemEngine) ReadMetadata(ctx context.Context, symbol string, opts ReadOptions) (*VersionedItem, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, err := e.findLocked(symbol, opts.AsOf)
	if err != nil {
		return nil, err
	}

	return e.itemLocked(symbol, rec, false), nil
}

// UpdateVersionMetadata implements Engine.UpdateVersionMetadata
func (e *MemEngine) UpdateVersionMetadata(ctx context.Context, symbol string, version int64, metadata map[string]interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.findLocked(symbol, &version)
	if err != nil {
		return err
	}

	rec.metadata = CloneMetadata(metadata)
	return nil
}

// ListSymbols implements Engine.ListSymbols
func (e *MemEngine) ListSymbols(ctx context.Context) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	symbols := make([]string, 0, len(e.symbols))
	for symbol := range e.symbols {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	return symbols, nil
}

// ListVersions implements Engine.ListVersions
func (e *MemEngine) ListVersions(ctx context.Context, symbol string) ([]VersionInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	existing := e.symbols[symbol]
	if len(existing) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	infos := make([]VersionInfo, 0, len(existing))
	for _, rec := range existing {
		infos = append(infos, VersionInfo{
			Version:     rec.version,
			WrittenAt:   rec.writtenAt,
			HasMetadata: rec.metadata != nil,
		})
	}

	return infos, nil
}

// Library implements Engine.Library
func (e *MemEngine) Library() string {
	return e.library
}

// Close implements Engine.Close
func (e *MemEngine) Close() error {
	return nil
}

// writeLocked appends a new version for symbol. Callers hold the write
// lock.
func (e *MemEngine) writeLocked(symbol string, data []byte, metadata map[string]interface{}, prune bool) *VersionedItem {
	rec := &memVersion{
		version:   e.nextVer[symbol],
		data:      append([]byte(nil), data...),
		metadata:  CloneMetadata(metadata),
		writtenAt: time.Now().UTC(),
	}
	e.nextVer[symbol] = rec.version + 1

	if prune {
		e.symbols[symbol] = []*memVersion{rec}
	} else {
		e.symbols[symbol] = append(e.symbols[symbol], rec)
	}

	return e.itemLocked(symbol, rec, true)
}

// findLocked resolves a symbol's latest version, or the exact version
// named by asOf. Callers hold at least the read lock.
func (e *MemEngine) findLocked(symbol string, asOf *int64) (*memVersion, error) {
	existing := e.symbols[symbol]
	if len(existing) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	if asOf == nil {
		return existing[len(existing)-1], nil
	}

	for _, rec := range existing {
		if rec.version == *asOf {
			return rec, nil
		}
	}

	return nil, fmt.Errorf("%w: %s version %d", ErrVersionNotFound, symbol, *asOf)
}

// itemLocked converts a stored version to the boundary representation,
// copying data and metadata so callers cannot mutate engine state
func (e *MemEngine) itemLocked(symbol string, rec *memVersion, withData bool) *VersionedItem {
	item := &VersionedItem{
		Symbol:    symbol,
		Version:   rec.version,
		Metadata:  CloneMetadata(rec.metadata),
		WrittenAt: rec.writtenAt,
	}
	if withData {
		item.Data = append([]byte(nil), rec.data...)
	}
	return item
}
