package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PGStore archives audit records in PostgreSQL for querying at scale.
// The JSONL file remains the system of record; the archive is loaded
// explicitly from it (see the ingest command) and is never on the append
// path of the Logger.
type PGStore struct {
	db *sql.DB
}

// NewPGStore creates a Postgres-backed audit archive on an existing
// connection, creating the table and indexes if needed
func NewPGStore(db *sql.DB) (*PGStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	store := &PGStore{db: db}

	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure chronicle_audit table: %w", err)
	}

	return store, nil
}

// OpenPGStore connects to PostgreSQL at url and returns an archive store
func OpenPGStore(url string) (*PGStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPGStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// ensureTable creates the chronicle_audit table if it doesn't exist
func (s *PGStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS chronicle_audit (
		id BIGSERIAL PRIMARY KEY,
		ts TIMESTAMP WITH TIME ZONE NOT NULL,
		actor TEXT NOT NULL,
		operation VARCHAR(32) NOT NULL,
		symbols TEXT[] NOT NULL,
		library TEXT NOT NULL,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	-- Indexes for the common query patterns
	CREATE INDEX IF NOT EXISTS idx_chronicle_audit_ts ON chronicle_audit(ts DESC);
	CREATE INDEX IF NOT EXISTS idx_chronicle_audit_actor ON chronicle_audit(actor);
	CREATE INDEX IF NOT EXISTS idx_chronicle_audit_operation ON chronicle_audit(operation);
	CREATE INDEX IF NOT EXISTS idx_chronicle_audit_library ON chronicle_audit(library);
	CREATE INDEX IF NOT EXISTS idx_chronicle_audit_symbols ON chronicle_audit USING GIN(symbols);
	`

	_, err := s.db.Exec(query)
	return err
}

// Insert archives one record
func (s *PGStore) Insert(ctx context.Context, rec Record) error {
	var metadataJSON []byte
	var err error

	if rec.Metadata != nil {
		metadataJSON, err = json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO chronicle_audit (ts, actor, operation, symbols, library, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.Timestamp.Time(), rec.Actor, string(rec.Operation),
		pq.Array(rec.Symbols), rec.Library, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	return nil
}

// Search returns archived records matching the filter in chronological
// order, most recent limit records when limit > 0
func (s *PGStore) Search(ctx context.Context, f Filter, limit int) ([]Record, error) {
	query := `
		SELECT ts, actor, operation, symbols, library, metadata
		FROM chronicle_audit
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if f.Actor != "" {
		query += fmt.Sprintf(" AND actor = $%d", argCount)
		args = append(args, f.Actor)
		argCount++
	}

	if f.Operation != "" {
		query += fmt.Sprintf(" AND operation = $%d", argCount)
		args = append(args, string(f.Operation))
		argCount++
	}

	if f.Library != "" {
		query += fmt.Sprintf(" AND library = $%d", argCount)
		args = append(args, f.Library)
		argCount++
	}

	if f.Symbol != "" {
		query += fmt.Sprintf(" AND $%d = ANY(symbols)", argCount)
		args = append(args, f.Symbol)
		argCount++
	}

	if !f.Since.IsZero() {
		query += fmt.Sprintf(" AND ts >= $%d", argCount)
		args = append(args, f.Since)
		argCount++
	}

	if !f.Until.IsZero() {
		query += fmt.Sprintf(" AND ts <= $%d", argCount)
		args = append(args, f.Until)
		argCount++
	}

	// Most-recent-first pagination, flipped back to chronological below
	query += " ORDER BY ts DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			ts           time.Time
			rec          Record
			symbols      []string
			metadataJSON []byte
		)

		err := rows.Scan(&ts, &rec.Actor, &rec.Operation, pq.Array(&symbols), &rec.Library, &metadataJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}

		rec.Timestamp = NewTimestamp(ts)
		rec.Symbols = symbols
		if rec.Symbols == nil {
			rec.Symbols = []string{}
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}

	// Reverse to chronological order
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	return records, nil
}

// Stats summarizes the archived records matching the filter
func (s *PGStore) Stats(ctx context.Context, f Filter) (*Stats, error) {
	where, args := s.whereClause(f)

	stats := NewStats()

	var start, end sql.NullTime
	totalQuery := "SELECT COUNT(*), MIN(ts), MAX(ts) FROM chronicle_audit" + where
	if err := s.db.QueryRowContext(ctx, totalQuery, args...).Scan(&stats.TotalRecords, &start, &end); err != nil {
		return nil, fmt.Errorf("failed to count audit records: %w", err)
	}
	if start.Valid && end.Valid {
		stats.TimeRange = &TimeRange{Start: start.Time, End: end.Time}
	}

	groups := []struct {
		column string
		fold   func(key string, count int64)
	}{
		{"operation", func(key string, count int64) { stats.ByOperation[Operation(key)] = count }},
		{"actor", func(key string, count int64) { stats.ByActor[key] = count }},
		{"library", func(key string, count int64) { stats.ByLibrary[key] = count }},
	}

	for _, g := range groups {
		query := fmt.Sprintf("SELECT %s, COUNT(*) FROM chronicle_audit%s GROUP BY %s", g.column, where, g.column)
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate by %s: %w", g.column, err)
		}

		for rows.Next() {
			var key string
			var count int64
			if err := rows.Scan(&key, &count); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan %s aggregate: %w", g.column, err)
			}
			g.fold(key, count)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error iterating %s aggregates: %w", g.column, err)
		}
		rows.Close()
	}

	return stats, nil
}

// whereClause builds the shared filter clause for stats queries
func (s *PGStore) whereClause(f Filter) (string, []interface{}) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if f.Actor != "" {
		where += fmt.Sprintf(" AND actor = $%d", argCount)
		args = append(args, f.Actor)
		argCount++
	}
	if f.Operation != "" {
		where += fmt.Sprintf(" AND operation = $%d", argCount)
		args = append(args, string(f.Operation))
		argCount++
	}
	if f.Library != "" {
		where += fmt.Sprintf(" AND library = $%d", argCount)
		args = append(args, f.Library)
		argCount++
	}
	if f.Symbol != "" {
		where += fmt.Sprintf(" AND $%d = ANY(symbols)", argCount)
		args = append(args, f.Symbol)
		argCount++
	}
	if !f.Since.IsZero() {
		where += fmt.Sprintf(" AND ts >= $%d", argCount)
		args = append(args, f.Since)
		argCount++
	}
	if !f.Until.IsZero() {
		where += fmt.Sprintf(" AND ts <= $%d", argCount)
		args = append(args, f.Until)
	}

	return where, args
}

// Cleanup removes archived records older than the cutoff, returning the
// number deleted. The JSONL file is untouched; retention applies to the
// archive only.
func (s *PGStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM chronicle_audit WHERE ts < $1", olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit archive: %w", err)
	}

	return result.RowsAffected()
}

// Close closes the underlying database connection
func (s *PGStore) Close() error {
	return s.db.Close()
}
