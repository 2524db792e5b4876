package store

import "time"

// VersionedItem is one stored version of a symbol as returned by engine
// reads and writes. Data is nil on metadata-only reads.
type VersionedItem struct {
	Symbol    string                 `json:"symbol"`
	Version   int64                  `json:"version"`
	Data      []byte                 `json:"data,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	WrittenAt time.Time              `json:"written_at"`
}

// WritePayload is one symbol's worth of a batch write
type WritePayload struct {
	Symbol   string
	Data     []byte
	Metadata map[string]interface{}
}

// WriteOptions controls Write and WriteBatch behavior
type WriteOptions struct {
	// PrunePrevious discards all older versions once the write lands
	PrunePrevious bool

	// Staged marks the write as staged; recorded for auditing, engines
	// treat staged writes like any other
	Staged bool
}

// ReadOptions controls Read, ReadBatch, and ReadMetadata behavior
type ReadOptions struct {
	// AsOf selects a specific version instead of the latest
	AsOf *int64
}

// UpdateOptions controls Update behavior
type UpdateOptions struct {
	// Upsert creates the symbol when it does not exist instead of failing
	Upsert bool

	// PrunePrevious discards all older versions once the update lands
	PrunePrevious bool
}

// AppendOptions controls Append behavior
type AppendOptions struct {
	// PrunePrevious discards all older versions once the append lands
	PrunePrevious bool
}

// VersionInfo describes one surviving version during enumeration
type VersionInfo struct {
	Version     int64     `json:"version"`
	WrittenAt   time.Time `json:"written_at"`
	HasMetadata bool      `json:"has_metadata"`
}

// CloneMetadata returns a shallow copy of a metadata map, preserving nil
func CloneMetadata(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		cloned[k] = v
	}
	return cloned
}
