package store

import (
	"context"
	"errors"
)

// ErrSymbolNotFound is returned when a symbol does not exist in the library
var ErrSymbolNotFound = errors.New("symbol not found")

// ErrVersionNotFound is returned when a symbol exists but the requested
// version does not
var ErrVersionNotFound = errors.New("version not found")

// Engine is the capability set of a versioned storage backend. A symbol
// holds an ordered sequence of immutable versions; every mutating call
// produces a new version rather than rewriting an old one, except
// UpdateVersionMetadata which exists for metadata backfill.
type Engine interface {
	// Write stores data as a new version of symbol, creating the symbol if
	// needed
	Write(ctx context.Context, symbol string, data []byte, metadata map[string]interface{}, opts WriteOptions) (*VersionedItem, error)

	// Read returns the latest version of symbol, or the version selected by
	// opts.AsOf
	Read(ctx context.Context, symbol string, opts ReadOptions) (*VersionedItem, error)

	// Update replaces the data of symbol with a new version. The symbol
	// must exist unless opts.Upsert is set.
	Update(ctx context.Context, symbol string, data []byte, metadata map[string]interface{}, opts UpdateOptions) (*VersionedItem, error)

	// Append extends the latest version's data into a new version. The
	// symbol must exist.
	Append(ctx context.Context, symbol string, data []byte, opts AppendOptions) (*VersionedItem, error)

	// Delete removes the named versions of symbol, or the entire symbol
	// when versions is empty
	Delete(ctx context.Context, symbol string, versions []int64) error

	// WriteBatch writes each payload as with Write, returning one item per
	// payload in input order
	WriteBatch(ctx context.Context, payloads []WritePayload, opts WriteOptions) ([]*VersionedItem, error)

	// ReadBatch reads the latest version of each symbol in input order
	ReadBatch(ctx context.Context, symbols []string, opts ReadOptions) ([]*VersionedItem, error)

	// WriteMetadata carries the latest data forward into a new version with
	// replacement metadata. The symbol must exist.
	WriteMetadata(ctx context.Context, symbol string, metadata map[string]interface{}) (*VersionedItem, error)

	// ReadMetadata returns the latest version of symbol (or opts.AsOf)
	// without its data payload
	ReadMetadata(ctx context.Context, symbol string, opts ReadOptions) (*VersionedItem, error)

	// UpdateVersionMetadata replaces the metadata of one existing version
	// in place. No new version is created and the payload is untouched.
	UpdateVersionMetadata(ctx context.Context, symbol string, version int64, metadata map[string]interface{}) error

	// ListSymbols returns every symbol in the library in lexical order
	ListSymbols(ctx context.Context) ([]string, error)

	// ListVersions returns the surviving versions of symbol in ascending
	// version order
	ListVersions(ctx context.Context, symbol string) ([]VersionInfo, error)

	// Library returns the library identifier this engine serves
	Library() string

	// Close releases the engine's resources
	Close() error
}
