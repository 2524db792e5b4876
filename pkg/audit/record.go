package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Operation is the kind of store operation a record describes
type Operation string

const (
	// Runtime operations emitted by the enforcement wrapper
	OpWrite         Operation = "write"
	OpRead          Operation = "read"
	OpUpdate        Operation = "update"
	OpAppend        Operation = "append"
	OpDelete        Operation = "delete"
	OpWriteBatch    Operation = "write_batch"
	OpReadBatch     Operation = "read_batch"
	OpWriteMetadata Operation = "write_metadata"
	OpReadMetadata  Operation = "read_metadata"

	// Backfill operation emitted by the migration tool
	OpMigrateMetadata Operation = "migrate_metadata"
)

// operations is the closed set of valid operation kinds
var operations = map[Operation]bool{
	OpWrite:           true,
	OpRead:            true,
	OpUpdate:          true,
	OpAppend:          true,
	OpDelete:          true,
	OpWriteBatch:      true,
	OpReadBatch:       true,
	OpWriteMetadata:   true,
	OpReadMetadata:    true,
	OpMigrateMetadata: true,
}

// Valid reports whether the operation is one of the enumerated kinds
func (o Operation) Valid() bool {
	return operations[o]
}

// LibraryLevel reports whether the operation may carry an empty symbol list.
// Only migration summary records are library-level; every runtime operation
// names at least one symbol.
func (o Operation) LibraryLevel() bool {
	return o == OpMigrateMetadata
}

// timestampLayout is the wire encoding for record timestamps: UTC with
// exactly six fractional digits and an explicit Z suffix.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// timestampLayoutNoZone accepts timestamps written without a zone marker;
// they are interpreted as UTC.
const timestampLayoutNoZone = "2006-01-02T15:04:05.999999999"

// Timestamp is a UTC instant with microsecond precision and a fixed
// textual encoding
type Timestamp time.Time

// Now returns the current UTC time truncated to microsecond precision,
// so that a constructed record round-trips to field-for-field equality.
func Now() Timestamp {
	return Timestamp(time.Now().UTC().Truncate(time.Microsecond))
}

// NewTimestamp converts a time to the record encoding, truncating to
// microsecond precision.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC().Truncate(time.Microsecond))
}

// Time returns the underlying time value
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// String returns the wire encoding
func (t Timestamp) String() string {
	return time.Time(t).UTC().Format(timestampLayout)
}

// MarshalJSON encodes the timestamp in the fixed wire layout
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses the wire layout, tolerating RFC 3339 variants and
// zone-less encodings (read as UTC)
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// ParseTime parses a timestamp string in the wire layout, an RFC 3339
// variant, or a zone-less encoding (read as UTC)
func ParseTime(s string) (time.Time, error) {
	parsed, err := time.Parse(timestampLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		parsed, err = time.ParseInLocation(timestampLayoutNoZone, s, time.UTC)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return parsed.UTC(), nil
}

// Record is one immutable audit log entry describing an attempted store
// operation. Records are constructed, appended, and read back; they are
// never mutated or rewritten.
type Record struct {
	Timestamp Timestamp              `json:"timestamp"`
	Actor     string                 `json:"actor"`
	Operation Operation              `json:"operation"`
	Symbols   []string               `json:"symbols"`
	Library   string                 `json:"library"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// NewRecord builds a record stamped with the current UTC time. The symbol
// list is copied so later mutation by the caller cannot alter the record.
func NewRecord(actor string, op Operation, symbols []string, library string, metadata map[string]interface{}) Record {
	copied := make([]string, len(symbols))
	copy(copied, symbols)
	return Record{
		Timestamp: Now(),
		Actor:     actor,
		Operation: op,
		Symbols:   copied,
		Library:   library,
		Metadata:  metadata,
	}
}

// Validate checks the record against the wire contract
func (r Record) Validate() error {
	if strings.TrimSpace(r.Actor) == "" {
		return fmt.Errorf("record actor is empty")
	}
	if !r.Operation.Valid() {
		return fmt.Errorf("unknown operation kind %q", r.Operation)
	}
	if len(r.Symbols) == 0 && !r.Operation.LibraryLevel() {
		return fmt.Errorf("operation %q requires at least one symbol", r.Operation)
	}
	if r.Library == "" {
		return fmt.Errorf("record library is empty")
	}
	return nil
}

// ToJSON converts the record to its single-line wire form
func (r Record) ToJSON() ([]byte, error) {
	if r.Symbols == nil {
		r.Symbols = []string{}
	}
	return json.Marshal(r)
}

// ParseRecord parses one log line. Lines that do not decode to a valid
// record are malformed by definition and are counted, not raised, by the
// reader.
func ParseRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Filter selects records during read-back and archive search. Zero-value
// fields match everything; Symbol matches membership in the record's
// symbol list.
type Filter struct {
	Actor     string
	Operation Operation
	Library   string
	Symbol    string
	Since     time.Time
	Until     time.Time
}

// Matches reports whether the record passes the filter
func (f Filter) Matches(rec Record) bool {
	if f.Actor != "" && rec.Actor != f.Actor {
		return false
	}
	if f.Operation != "" && rec.Operation != f.Operation {
		return false
	}
	if f.Library != "" && rec.Library != f.Library {
		return false
	}
	if f.Symbol != "" {
		found := false
		for _, s := range rec.Symbols {
			if s == f.Symbol {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	ts := rec.Timestamp.Time()
	if !f.Since.IsZero() && ts.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && ts.After(f.Until) {
		return false
	}
	return true
}

// ExportFormat represents the format for exporting audit records
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// Stats summarizes a set of audit records
type Stats struct {
	TotalRecords   int64                `json:"total_records"`
	ByOperation    map[Operation]int64  `json:"by_operation"`
	ByActor        map[string]int64     `json:"by_actor"`
	ByLibrary      map[string]int64     `json:"by_library"`
	MalformedLines int                  `json:"malformed_lines,omitempty"`
	TimeRange      *TimeRange           `json:"time_range,omitempty"`
}

// TimeRange is the span covered by a set of records
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewStats returns an empty stats value with initialized maps
func NewStats() *Stats {
	return &Stats{
		ByOperation: make(map[Operation]int64),
		ByActor:     make(map[string]int64),
		ByLibrary:   make(map[string]int64),
	}
}

// Observe folds one record into the stats
func (s *Stats) Observe(rec Record) {
	s.TotalRecords++
	s.ByOperation[rec.Operation]++
	s.ByActor[rec.Actor]++
	s.ByLibrary[rec.Library]++
	ts := rec.Timestamp.Time()
	if s.TimeRange == nil {
		s.TimeRange = &TimeRange{Start: ts, End: ts}
		return
	}
	if ts.Before(s.TimeRange.Start) {
		s.TimeRange.Start = ts
	}
	if ts.After(s.TimeRange.End) {
		s.TimeRange.End = ts
	}
}
