package audit

import "fmt"

// IOError reports a failed interaction with the audit log file: the
// destination is unwritable, a write or flush failed, or a read scan
// could not complete. The operation never partially applies; a failed
// append leaves no partial line visible to readers.
type IOError struct {
	Op   string // "open", "append", "sync", "read"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("audit log %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
