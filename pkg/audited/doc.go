// Package audited wraps a storage engine so that no operation runs without
// an attributed actor and an audit record.
//
// The wrapper exposes the nine runtime operation kinds (write, read, update,
// append, delete, write_batch, read_batch, write_metadata, read_metadata)
// with the same inputs as the engine plus a leading user ID. Calls with a
// missing or blank user ID fail with ActorRequiredError before the engine is
// touched. Once the actor is validated, the record is appended to the audit
// log and only then does the engine run, so a crash mid-operation leaves the
// attempt on disk rather than an unlogged change. Engine errors propagate to
// the caller unchanged; the record of the attempt stays in the log.
//
// Batch operations emit a single record listing every symbol in the batch.
// Listings (ListSymbols, ListVersions) are not part of the audited set and
// delegate directly.
//
// Usage:
//
//	logger, err := audit.New("/var/log/chronicle/audit.log", false)
//	if err != nil {
//	    return err
//	}
//	store, err := audited.New(engine, logger)
//	if err != nil {
//	    return err
//	}
//	item, err := store.Write(ctx, "jane.doe", "AAPL", payload, nil, opts)
package audited
