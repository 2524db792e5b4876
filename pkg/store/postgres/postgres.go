// Package postgres implements a PostgreSQL-backed storage engine with an
// optional read-through cache layered on top.
//
// Versioned items live in chronicle_versions keyed by (library, symbol,
// version) with the payload in a BYTEA column and metadata in JSONB. A
// chronicle_symbols counter table allocates version numbers, so a version
// number is never reused even after deletes. CachedEngine adds an in-memory
// LRU and an optional Redis tier in front of any store.Engine.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/quartzdata/chronicle/pkg/store"
)

// Engine implements store.Engine on a PostgreSQL database.
type Engine struct {
	db      *sql.DB
	library string
}

// Open connects to the PostgreSQL server at url and prepares the schema.
func Open(url, library string) (*Engine, error) {
	return OpenContext(context.Background(), url, library)
}

// OpenContext is Open with the connection test bounded by ctx.
func OpenContext(ctx context.Context, url, library string) (*Engine, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	engine, err := New(db, library)
	if err != nil {
		db.Close()
		return nil, err
	}
	return engine, nil
}

// New wraps an existing database handle. The schema is created if missing.
func New(db *sql.DB, library string) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if library == "" {
		return nil, fmt.Errorf("library name is required")
	}
	engine := &Engine{db: db, library: library}
	if err := engine.ensureSchema(); err != nil {
		return nil, err
	}
	return engine, nil
}

func (e *Engine) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chronicle_versions (
		id BIGSERIAL PRIMARY KEY,
		library TEXT NOT NULL,
		symbol TEXT NOT NULL,
		version BIGINT NOT NULL,
		data BYTEA,
		metadata JSONB,
		written_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(library, symbol, version)
	);
	CREATE INDEX IF NOT EXISTS idx_chronicle_versions_symbol
		ON chronicle_versions(library, symbol, version);
	CREATE TABLE IF NOT EXISTS chronicle_symbols (
		library TEXT NOT NULL,
		symbol TEXT NOT NULL,
		next_version BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (library, symbol)
	);
	`
	if _, err := e.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to ensure chronicle schema: %w", err)
	}
	return nil
}

// Library returns the library this engine serves.
func (e *Engine) Library() string {
	return e.library
}

// Close closes the underlying database handle.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Write stores a new version of symbol and returns the stored item.
func (e *Engine) Write(ctx context.Context, symbol string, data []byte, metadata map[string]interface{}, opts store.WriteOptions) (*store.VersionedItem, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	item, err := e.writeTx(ctx, tx, symbol, data, metadata, opts.PrunePrevious)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return item, nil
}

// writeTx inserts the next version of symbol inside an open transaction.
// The upsert on chronicle_symbols atomically allocates the version number.
func (e *Engine) writeTx(ctx context.Context, tx *sql.Tx, symbol string, data []byte, metadata map[string]interface{}, prune bool) (*store.VersionedItem, error) {
	var next int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO chronicle_symbols (library, symbol, next_version)
		VALUES ($1, $2, 1)
		ON CONFLICT (library, symbol)
		DO UPDATE SET next_version = chronicle_symbols.next_version + 1
		RETURNING next_version - 1
	`, e.library, symbol).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate version: %w", err)
	}

	if prune {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chronicle_versions WHERE library = $1 AND symbol = $2`,
			e.library, symbol,
		); err != nil {
			return nil, fmt.Errorf("failed to prune previous versions: %w", err)
		}
	}

	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}

	var writtenAt time.Time
	err = tx.QueryRowContext(ctx, `
		INSERT INTO chronicle_versions (library, symbol, version, data, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING written_at
	`, e.library, symbol, next, data, metadataJSON).Scan(&writtenAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}

	return &store.VersionedItem{
		Symbol:    symbol,
		Version:   next,
		Data:      append([]byte(nil), data...),
		Metadata:  store.CloneMetadata(metadata),
		WrittenAt: writtenAt,
	}, nil
}

// Read returns the latest version of symbol, or the version named in opts.
func (e *Engine) Read(ctx context.Context, symbol string, opts store.ReadOptions) (*store.VersionedItem, error) {
	return e.readItem(ctx, symbol, opts.AsOf, true)
}

func (e *Engine) readItem(ctx context.Context, symbol string, asOf *int64, withData bool) (*store.VersionedItem, error) {
	columns := "version, metadata, written_at"
	if withData {
		columns = "version, data, metadata, written_at"
	}

	var row *sql.Row
	if asOf != nil {
		row = e.db.QueryRowContext(ctx, fmt.Sprintf(`
			SELECT %s FROM chronicle_versions
			WHERE library = $1 AND symbol = $2 AND version = $3
		`, columns), e.library, symbol, *asOf)
	} else {
		row = e.db.QueryRowContext(ctx, fmt.Sprintf(`
			SELECT %s FROM chronicle_versions
			WHERE library = $1 AND symbol = $2
			ORDER BY version DESC LIMIT 1
		`, columns), e.library, symbol)
	}

	item := &store.VersionedItem{Symbol: symbol}
	var metadataJSON []byte
	var err error
	if withData {
		err = row.Scan(&item.Version, &item.Data, &metadataJSON, &item.WrittenAt)
	} else {
		err = row.Scan(&item.Version, &metadataJSON, &item.WrittenAt)
	}
	if err == sql.ErrNoRows {
		return nil, e.notFound(ctx, symbol, asOf)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}

	item.Metadata, err = unmarshalMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// notFound distinguishes a missing symbol from a missing version.
func (e *Engine) notFound(ctx context.Context, symbol string, asOf *int64) error {
	if asOf != nil {
		exists, err := e.symbolExists(ctx, symbol)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s version %d", store.ErrVersionNotFound, symbol, *asOf)
		}
	}
	return fmt.Errorf("%w: %s", store.ErrSymbolNotFound, symbol)
}

func (e *Engine) symbolExists(ctx context.Context, symbol string) (bool, error) {
	var exists bool
	err := e.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chronicle_versions WHERE library = $1 AND symbol = $2)`,
		e.library, symbol,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check symbol: %w", err)
	}
	return exists, nil
}

// Update writes a new version of an existing symbol. With Upsert set the
// symbol is created when absent.
func (e *Engine) Update(ctx context.Context, symbol string, data []byte, metadata map[string]interface{}, opts store.UpdateOptions) (*store.VersionedItem, error) {
	if !opts.Upsert {
		exists, err := e.symbolExists(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", store.ErrSymbolNotFound, symbol)
		}
	}
	return e.Write(ctx, symbol, data, metadata, store.WriteOptions{PrunePrevious: opts.PrunePrevious})
}

// Append extends the latest payload of symbol into a new version. The new
// version starts without metadata.
func (e *Engine) Append(ctx context.Context, symbol string, data []byte, opts store.AppendOptions) (*store.VersionedItem, error) {
	latest, err := e.Read(ctx, symbol, store.ReadOptions{})
	if err != nil {
		return nil, err
	}
	combined := append(latest.Data, data...)
	return e.Write(ctx, symbol, combined, nil, store.WriteOptions{PrunePrevious: opts.PrunePrevious})
}

// Delete removes versions of symbol. A nil versions slice removes the whole
// symbol. Every named version must exist or nothing is deleted.
func (e *Engine) Delete(ctx context.Context, symbol string, versions []int64) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var total int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chronicle_versions WHERE library = $1 AND symbol = $2`,
		e.library, symbol,
	).Scan(&total); err != nil {
		return fmt.Errorf("failed to count versions: %w", err)
	}
	if total == 0 {
		return fmt.Errorf("%w: %s", store.ErrSymbolNotFound, symbol)
	}

	if len(versions) == 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chronicle_versions WHERE library = $1 AND symbol = $2`,
			e.library, symbol,
		); err != nil {
			return fmt.Errorf("failed to delete symbol: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}

	var matched int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chronicle_versions WHERE library = $1 AND symbol = $2 AND version = ANY($3)`,
		e.library, symbol, pq.Array(versions),
	).Scan(&matched); err != nil {
		return fmt.Errorf("failed to count versions: %w", err)
	}
	if matched != int64(len(versions)) {
		return fmt.Errorf("%w: %s", store.ErrVersionNotFound, symbol)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chronicle_versions WHERE library = $1 AND symbol = $2 AND version = ANY($3)`,
		e.library, symbol, pq.Array(versions),
	); err != nil {
		return fmt.Errorf("failed to delete versions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// WriteBatch stores one new version per payload inside a single transaction.
func (e *Engine) WriteBatch(ctx context.Context, payloads []store.WritePayload, opts store.WriteOptions) ([]*store.VersionedItem, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	items := make([]*store.VersionedItem, 0, len(payloads))
	for _, p := range payloads {
		item, err := e.writeTx(ctx, tx, p.Symbol, p.Data, p.Metadata, opts.PrunePrevious)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return items, nil
}

// ReadBatch reads the requested symbols in order. It fails on the first
// missing symbol.
func (e *Engine) ReadBatch(ctx context.Context, symbols []string, opts store.ReadOptions) ([]*store.VersionedItem, error) {
	items := make([]*store.VersionedItem, 0, len(symbols))
	for _, symbol := range symbols {
		item, err := e.Read(ctx, symbol, opts)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// WriteMetadata creates a new version carrying the latest payload forward
// with replaced metadata.
func (e *Engine) WriteMetadata(ctx context.Context, symbol string, metadata map[string]interface{}) (*store.VersionedItem, error) {
	latest, err := e.Read(ctx, symbol, store.ReadOptions{})
	if err != nil {
		return nil, err
	}
	return e.Write(ctx, symbol, latest.Data, metadata, store.WriteOptions{})
}

// ReadMetadata returns version and metadata without loading the payload.
func (e *Engine) ReadMetadata(ctx context.Context, symbol string, opts store.ReadOptions) (*store.VersionedItem, error) {
	return e.readItem(ctx, symbol, opts.AsOf, false)
}

// UpdateVersionMetadata replaces the metadata of an existing version in
// place. No new version is created and the payload is untouched.
func (e *Engine) UpdateVersionMetadata(ctx context.Context, symbol string, version int64, metadata map[string]interface{}) error {
	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}

	result, err := e.db.ExecContext(ctx,
		`UPDATE chronicle_versions SET metadata = $1 WHERE library = $2 AND symbol = $3 AND version = $4`,
		metadataJSON, e.library, symbol, version,
	)
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		asOf := version
		return e.notFound(ctx, symbol, &asOf)
	}
	return nil
}

// ListSymbols returns every symbol in the library in lexical order.
func (e *Engine) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT DISTINCT symbol FROM chronicle_versions WHERE library = $1 ORDER BY symbol`,
		e.library,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	symbols := []string{}
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}
	return symbols, nil
}

// ListVersions returns version descriptors for symbol in ascending order.
func (e *Engine) ListVersions(ctx context.Context, symbol string) ([]store.VersionInfo, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT version, written_at, metadata IS NOT NULL FROM chronicle_versions WHERE library = $1 AND symbol = $2 ORDER BY version`,
		e.library, symbol,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var infos []store.VersionInfo
	for rows.Next() {
		var info store.VersionInfo
		if err := rows.Scan(&info.Version, &info.WrittenAt, &info.HasMetadata); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrSymbolNotFound, symbol)
	}
	return infos, nil
}

// marshalMetadata encodes metadata as JSONB bytes, mapping nil to SQL NULL.
func marshalMetadata(metadata map[string]interface{}) (interface{}, error) {
	if metadata == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return encoded, nil
}

// unmarshalMetadata decodes the metadata column, mapping SQL NULL to nil.
func unmarshalMetadata(column []byte) (map[string]interface{}, error) {
	if len(column) == 0 || string(column) == "null" {
		return nil, nil
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal(column, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}
