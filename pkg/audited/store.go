package audited

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/quartzdata/chronicle/pkg/audit"
	"github.com/quartzdata/chronicle/pkg/store"
)

// Store enforces actor identity and audit logging in front of a storage
// engine. Every operation takes the acting user as its first argument after
// the context and emits exactly one audit record before the engine runs.
// Records therefore document attempts: a record with no matching data change
// means the storage call failed after logging.
type Store struct {
	engine store.Engine
	logger *audit.Logger
}

// New wraps engine so that every operation is attributed and logged through
// logger. The caller keeps ownership of the logger; Close shuts down the
// engine only.
func New(engine store.Engine, logger *audit.Logger) (*Store, error) {
	if engine == nil {
		return nil, fmt.Errorf("storage engine is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("audit logger is required")
	}
	return &Store{engine: engine, logger: logger}, nil
}

// Unwrap returns the underlying engine. Callers that bypass the wrapper are
// on their own for attribution.
func (s *Store) Unwrap() store.Engine {
	return s.engine
}

// Library returns the library the underlying engine serves.
func (s *Store) Library() string {
	return s.engine.Library()
}

// Close closes the underlying engine.
func (s *Store) Close() error {
	return s.engine.Close()
}

// log validates the actor and appends the audit record. The engine is never
// invoked when either step fails.
func (s *Store) log(userID string, op audit.Operation, symbols []string, metadata map[string]interface{}) error {
	if strings.TrimSpace(userID) == "" {
		return &ActorRequiredError{Op: op}
	}
	return s.logger.Append(audit.NewRecord(userID, op, symbols, s.engine.Library(), metadata))
}

// Write logs the attempt and stores a new version of symbol.
func (s *Store) Write(ctx context.Context, userID, symbol string, data []byte, metadata map[string]interface{}, opts store.WriteOptions) (*store.VersionedItem, error) {
	if err := s.log(userID, audit.OpWrite, []string{symbol}, map[string]interface{}{
		"prune_previous_versions": opts.PrunePrevious,
		"staged":                  opts.Staged,
	}); err != nil {
		return nil, err
	}
	return s.engine.Write(ctx, symbol, data, metadata, opts)
}

// Read logs the attempt and returns the requested version of symbol.
func (s *Store) Read(ctx context.Context, userID, symbol string, opts store.ReadOptions) (*store.VersionedItem, error) {
	if err := s.log(userID, audit.OpRead, []string{symbol}, map[string]interface{}{
		"as_of": describeAsOf(opts.AsOf),
		"lazy":  false,
	}); err != nil {
		return nil, err
	}
	return s.engine.Read(ctx, symbol, opts)
}

// Update logs the attempt and writes a new version of an existing symbol.
func (s *Store) Update(ctx context.Context, userID, symbol string, data []byte, metadata map[string]interface{}, opts store.UpdateOptions) (*store.VersionedItem, error) {
	if err := s.log(userID, audit.OpUpdate, []string{symbol}, map[string]interface{}{
		"upsert":                  opts.Upsert,
		"prune_previous_versions": opts.PrunePrevious,
	}); err != nil {
		return nil, err
	}
	return s.engine.Update(ctx, symbol, data, metadata, opts)
}

// Append logs the attempt and extends the latest payload of symbol.
func (s *Store) Append(ctx context.Context, userID, symbol string, data []byte, opts store.AppendOptions) (*store.VersionedItem, error) {
	if err := s.log(userID, audit.OpAppend, []string{symbol}, map[string]interface{}{
		"prune_previous_versions": opts.PrunePrevious,
	}); err != nil {
		return nil, err
	}
	return s.engine.Append(ctx, symbol, data, opts)
}

// Delete logs the attempt and removes versions of symbol. A nil versions
// slice removes the whole symbol.
func (s *Store) Delete(ctx context.Context, userID, symbol string, versions []int64) error {
	if err := s.log(userID, audit.OpDelete, []string{symbol}, map[string]interface{}{
		"versions": describeVersions(versions),
	}); err != nil {
		return err
	}
	return s.engine.Delete(ctx, symbol, versions)
}

// WriteBatch logs one record naming every symbol in the batch, then stores a
// new version per payload.
func (s *Store) WriteBatch(ctx context.Context, userID string, payloads []store.WritePayload, opts store.WriteOptions) ([]*store.VersionedItem, error) {
	symbols := make([]string, 0, len(payloads))
	for _, p := range payloads {
		symbols = append(symbols, p.Symbol)
	}
	if err := s.log(userID, audit.OpWriteBatch, symbols, map[string]interface{}{
		"count":                   len(payloads),
		"prune_previous_versions": opts.PrunePrevious,
	}); err != nil {
		return nil, err
	}
	return s.engine.WriteBatch(ctx, payloads, opts)
}

// ReadBatch logs one record naming every requested symbol, then reads them
// in order.
func (s *Store) ReadBatch(ctx context.Context, userID string, symbols []string, opts store.ReadOptions) ([]*store.VersionedItem, error) {
	if err := s.log(userID, audit.OpReadBatch, symbols, map[string]interface{}{
		"count": len(symbols),
		"lazy":  false,
	}); err != nil {
		return nil, err
	}
	return s.engine.ReadBatch(ctx, symbols, opts)
}

// WriteMetadata logs the attempt and writes a new version carrying the
// latest payload with replaced metadata.
func (s *Store) WriteMetadata(ctx context.Context, userID, symbol string, metadata map[string]interface{}) (*store.VersionedItem, error) {
	if err := s.log(userID, audit.OpWriteMetadata, []string{symbol}, nil); err != nil {
		return nil, err
	}
	return s.engine.WriteMetadata(ctx, symbol, metadata)
}

// ReadMetadata logs the attempt and returns version and metadata without
// the payload.
func (s *Store) ReadMetadata(ctx context.Context, userID, symbol string, opts store.ReadOptions) (*store.VersionedItem, error) {
	if err := s.log(userID, audit.OpReadMetadata, []string{symbol}, map[string]interface{}{
		"as_of": describeAsOf(opts.AsOf),
	}); err != nil {
		return nil, err
	}
	return s.engine.ReadMetadata(ctx, symbol, opts)
}

// ListSymbols delegates without logging. Listings carry no data and are not
// part of the audited operation set.
func (s *Store) ListSymbols(ctx context.Context) ([]string, error) {
	return s.engine.ListSymbols(ctx)
}

// ListVersions delegates without logging.
func (s *Store) ListVersions(ctx context.Context, symbol string) ([]store.VersionInfo, error) {
	return s.engine.ListVersions(ctx, symbol)
}

func describeAsOf(asOf *int64) interface{} {
	if asOf == nil {
		return nil
	}
	return strconv.FormatInt(*asOf, 10)
}

func describeVersions(versions []int64) string {
	if len(versions) == 0 {
		return "all"
	}
	parts := make([]string, len(versions))
	for i, v := range versions {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}
