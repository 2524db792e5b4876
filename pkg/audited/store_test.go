package audited

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzdata/chronicle/pkg/audit"
	"github.com/quartzdata/chronicle/pkg/store"
)

func setupStore(t *testing.T) (*Store, *store.MemEngine, string) {
	t.Helper()

	dir, err := os.MkdirTemp("", "audited-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "audit.log")
	logger, err := audit.New(path, false)
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })

	engine := store.NewMemEngine("prices")
	wrapped, err := New(engine, logger)
	require.NoError(t, err)
	return wrapped, engine, path
}

func readAll(t *testing.T, path string) []audit.Record {
	t.Helper()
	result, err := audit.ReadLogs(path, 0, audit.Filter{})
	require.NoError(t, err)
	require.Zero(t, result.Skipped)
	return result.Records
}

func TestNew(t *testing.T) {
	t.Run("nil engine", func(t *testing.T) {
		dir := t.TempDir()
		logger, err := audit.New(filepath.Join(dir, "audit.log"), false)
		require.NoError(t, err)
		defer logger.Close()

		_, err = New(nil, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage engine is required")
	})

	t.Run("nil logger", func(t *testing.T) {
		_, err := New(store.NewMemEngine("prices"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "audit logger is required")
	})

	t.Run("success", func(t *testing.T) {
		wrapped, engine, _ := setupStore(t)
		assert.Equal(t, "prices", wrapped.Library())
		assert.Same(t, store.Engine(engine), wrapped.Unwrap())
	})
}

func TestStore_ActorRequired(t *testing.T) {
	wrapped, _, path := setupStore(t)
	ctx := context.Background()

	calls := []struct {
		op   audit.Operation
		call func(userID string) error
	}{
		{audit.OpWrite, func(u string) error {
			_, err := wrapped.Write(ctx, u, "AAPL", []byte("x"), nil, store.WriteOptions{})
			return err
		}},
		{audit.OpRead, func(u string) error {
			_, err := wrapped.Read(ctx, u, "AAPL", store.ReadOptions{})
			return err
		}},
		{audit.OpUpdate, func(u string) error {
			_, err := wrapped.Update(ctx, u, "AAPL", []byte("x"), nil, store.UpdateOptions{})
			return err
		}},
		{audit.OpAppend, func(u string) error {
			_, err := wrapped.Append(ctx, u, "AAPL", []byte("x"), store.AppendOptions{})
			return err
		}},
		{audit.OpDelete, func(u string) error {
			return wrapped.Delete(ctx, u, "AAPL", nil)
		}},
		{audit.OpWriteBatch, func(u string) error {
			_, err := wrapped.WriteBatch(ctx, u, []store.WritePayload{{Symbol: "AAPL"}}, store.WriteOptions{})
			return err
		}},
		{audit.OpReadBatch, func(u string) error {
			_, err := wrapped.ReadBatch(ctx, u, []string{"AAPL"}, store.ReadOptions{})
			return err
		}},
		{audit.OpWriteMetadata, func(u string) error {
			_, err := wrapped.WriteMetadata(ctx, u, "AAPL", map[string]interface{}{"k": "v"})
			return err
		}},
		{audit.OpReadMetadata, func(u string) error {
			_, err := wrapped.ReadMetadata(ctx, u, "AAPL", store.ReadOptions{})
			return err
		}},
	}

	for _, tc := range calls {
		for _, userID := range []string{"", "   "} {
			err := tc.call(userID)
			require.Error(t, err, "operation %s with actor %q", tc.op, userID)

			assert.True(t, errors.Is(err, ErrActorRequired))
			var actorErr *ActorRequiredError
			require.True(t, errors.As(err, &actorErr))
			assert.Equal(t, tc.op, actorErr.Op)
			assert.Contains(t, err.Error(), string(tc.op))
		}
	}

	// Nothing was logged and nothing reached the engine
	assert.Empty(t, readAll(t, path))
	symbols, err := wrapped.ListSymbols(ctx)
	require.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestStore_WriteLogsAndDelegates(t *testing.T) {
	wrapped, engine, path := setupStore(t)
	ctx := context.Background()

	item, err := wrapped.Write(ctx, "jane.doe", "AAPL", []byte("day-1"),
		map[string]interface{}{"source": "feed"}, store.WriteOptions{PrunePrevious: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), item.Version)

	records := readAll(t, path)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "jane.doe", rec.Actor)
	assert.Equal(t, audit.OpWrite, rec.Operation)
	assert.Equal(t, []string{"AAPL"}, rec.Symbols)
	assert.Equal(t, "prices", rec.Library)
	assert.Equal(t, map[string]interface{}{
		"prune_previous_versions": true,
		"staged":                  false,
	}, rec.Metadata)

	// The engine saw the original arguments unchanged
	got, err := engine.Read(ctx, "AAPL", store.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte("day-1"), got.Data)
	assert.Equal(t, map[string]interface{}{"source": "feed"}, got.Metadata)
}

func TestStore_EveryOperationEmitsOneRecord(t *testing.T) {
	wrapped, _, path := setupStore(t)
	ctx := context.Background()

	_, err := wrapped.Write(ctx, "jane.doe", "AAPL", []byte("v0"), nil, store.WriteOptions{})
	require.NoError(t, err)

	asOf := int64(0)
	_, err = wrapped.Read(ctx, "jane.doe", "AAPL", store.ReadOptions{AsOf: &asOf})
	require.NoError(t, err)

	_, err = wrapped.Update(ctx, "jane.doe", "AAPL", []byte("v1"), nil, store.UpdateOptions{Upsert: true})
	require.NoError(t, err)

	_, err = wrapped.Append(ctx, "jane.doe", "AAPL", []byte("+x"), store.AppendOptions{})
	require.NoError(t, err)

	_, err = wrapped.WriteBatch(ctx, "jane.doe", []store.WritePayload{
		{Symbol: "MSFT", Data: []byte("m")},
		{Symbol: "TSLA", Data: []byte("t")},
	}, store.WriteOptions{})
	require.NoError(t, err)

	_, err = wrapped.ReadBatch(ctx, "jane.doe", []string{"MSFT", "TSLA"}, store.ReadOptions{})
	require.NoError(t, err)

	_, err = wrapped.WriteMetadata(ctx, "jane.doe", "AAPL", map[string]interface{}{"reviewed": true})
	require.NoError(t, err)

	_, err = wrapped.ReadMetadata(ctx, "jane.doe", "AAPL", store.ReadOptions{})
	require.NoError(t, err)

	require.NoError(t, wrapped.Delete(ctx, "jane.doe", "TSLA", []int64{0}))

	records := readAll(t, path)
	require.Len(t, records, 9)

	ops := make([]audit.Operation, len(records))
	for i, rec := range records {
		ops[i] = rec.Operation
	}
	assert.Equal(t, []audit.Operation{
		audit.OpWrite, audit.OpRead, audit.OpUpdate, audit.OpAppend,
		audit.OpWriteBatch, audit.OpReadBatch,
		audit.OpWriteMetadata, audit.OpReadMetadata, audit.OpDelete,
	}, ops)

	// Operation-specific metadata survives the round trip. JSON numbers
	// decode as float64.
	assert.Equal(t, map[string]interface{}{"as_of": "0", "lazy": false}, records[1].Metadata)
	assert.Equal(t, map[string]interface{}{
		"upsert":                  true,
		"prune_previous_versions": false,
	}, records[2].Metadata)
	assert.Equal(t, map[string]interface{}{
		"count":                   float64(2),
		"prune_previous_versions": false,
	}, records[4].Metadata)
	assert.Equal(t, map[string]interface{}{"count": float64(2), "lazy": false}, records[5].Metadata)
	assert.Nil(t, records[6].Metadata)
	assert.Equal(t, map[string]interface{}{"as_of": nil}, records[7].Metadata)
	assert.Equal(t, map[string]interface{}{"versions": "0"}, records[8].Metadata)
}

func TestStore_BatchEmitsSingleRecord(t *testing.T) {
	wrapped, _, path := setupStore(t)
	ctx := context.Background()

	_, err := wrapped.WriteBatch(ctx, "jane.doe", []store.WritePayload{
		{Symbol: "AAPL", Data: []byte("a")},
		{Symbol: "MSFT", Data: []byte("m")},
		{Symbol: "TSLA", Data: []byte("t")},
	}, store.WriteOptions{})
	require.NoError(t, err)

	records := readAll(t, path)
	require.Len(t, records, 1)
	assert.Equal(t, audit.OpWriteBatch, records[0].Operation)
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, records[0].Symbols)
}

func TestStore_DeleteAllVersionsMetadata(t *testing.T) {
	wrapped, _, path := setupStore(t)
	ctx := context.Background()

	_, err := wrapped.Write(ctx, "jane.doe", "AAPL", []byte("x"), nil, store.WriteOptions{})
	require.NoError(t, err)
	require.NoError(t, wrapped.Delete(ctx, "jane.doe", "AAPL", nil))

	records := readAll(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, map[string]interface{}{"versions": "all"}, records[1].Metadata)
}

// failingEngine fails Write while delegating everything else.
type failingEngine struct {
	store.Engine
	err error
}

func (f *failingEngine) Write(ctx context.Context, symbol string, data []byte, metadata map[string]interface{}, opts store.WriteOptions) (*store.VersionedItem, error) {
	return nil, f.err
}

func TestStore_RecordPrecedesExecution(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	logger, err := audit.New(path, false)
	require.NoError(t, err)
	defer logger.Close()

	engineErr := errors.New("disk full")
	wrapped, err := New(&failingEngine{Engine: store.NewMemEngine("prices"), err: engineErr}, logger)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = wrapped.Write(ctx, "jane.doe", "AAPL", []byte("x"), nil, store.WriteOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engineErr))

	// The attempt is on disk even though the storage call failed
	records := readAll(t, path)
	require.Len(t, records, 1)
	assert.Equal(t, audit.OpWrite, records[0].Operation)
	assert.Equal(t, []string{"AAPL"}, records[0].Symbols)
}

func TestStore_EngineErrorsPassThrough(t *testing.T) {
	wrapped, _, path := setupStore(t)
	ctx := context.Background()

	_, err := wrapped.Read(ctx, "jane.doe", "GHOST", store.ReadOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrSymbolNotFound))

	// The failed read still left its record
	records := readAll(t, path)
	require.Len(t, records, 1)
	assert.Equal(t, audit.OpRead, records[0].Operation)
}

func TestStore_LoggerFailureBlocksEngine(t *testing.T) {
	dir := t.TempDir()
	logger, err := audit.New(filepath.Join(dir, "audit.log"), false)
	require.NoError(t, err)

	engine := store.NewMemEngine("prices")
	wrapped, err := New(engine, logger)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, logger.Close())

	_, err = wrapped.Write(ctx, "jane.doe", "AAPL", []byte("x"), nil, store.WriteOptions{})
	require.Error(t, err)
	var ioErr *audit.IOError
	assert.True(t, errors.As(err, &ioErr))

	// The engine never ran
	symbols, err := engine.ListSymbols(ctx)
	require.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestStore_EmptyBatchRejected(t *testing.T) {
	wrapped, _, path := setupStore(t)
	ctx := context.Background()

	_, err := wrapped.WriteBatch(ctx, "jane.doe", nil, store.WriteOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least one symbol")
	assert.Empty(t, readAll(t, path))
}

func TestStore_ListingsNotLogged(t *testing.T) {
	wrapped, _, path := setupStore(t)
	ctx := context.Background()

	_, err := wrapped.Write(ctx, "jane.doe", "AAPL", []byte("x"), nil, store.WriteOptions{})
	require.NoError(t, err)

	_, err = wrapped.ListSymbols(ctx)
	require.NoError(t, err)
	_, err = wrapped.ListVersions(ctx, "AAPL")
	require.NoError(t, err)

	assert.Len(t, readAll(t, path), 1)
}
