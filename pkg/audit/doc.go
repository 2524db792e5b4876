// Package audit provides append-only audit logging for versioned store operations.
//
// # Overview
//
// Every store operation performed through an audited store produces exactly one
// record capturing who did what: the acting user, the operation kind, the
// symbols touched, the library, and operation-specific metadata. Records are
// appended to a JSONL file, one JSON object per line, before the operation
// executes. A record therefore documents an attempt, not a success.
//
// # Operations
//
// Data: write, read, update, append, delete
// Batch: write_batch, read_batch
// Metadata: write_metadata, read_metadata, migrate_metadata
//
// # Usage Example
//
// Append a record:
//
//	logger, err := audit.New("audit.log", true)
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//
//	err = logger.Append(audit.NewRecord("jane.doe", audit.OpWrite, []string{"AAPL"}, "prices", map[string]interface{}{
//		"prune_previous_versions": false,
//		"staged":                  false,
//	}))
//
// Read records back:
//
//	res, err := audit.ReadLogs("audit.log", 100, audit.Filter{
//		Actor:   "jane.doe",
//		Library: "prices",
//	})
//
// # Archive
//
// The JSONL file is the system of record. Records can additionally be loaded
// into a PostgreSQL archive (PGStore) for querying at scale; the archive is
// fed explicitly and is never on the append path.
//
// # Related Packages
//
//   - pkg/audited: store wrapper that emits one record per operation
//   - pkg/migrate: backfill of audit metadata onto historical versions
package audit
