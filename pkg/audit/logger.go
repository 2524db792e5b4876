package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger is the durable, thread-safe sink for audit records. It owns the
// log file handle; no other component writes to the file. One instance is
// constructed explicitly and shared deliberately by every collaborator
// that emits records.
type Logger struct {
	path    string
	file    *os.File
	console io.Writer
	metrics *Metrics
	mu      sync.Mutex
}

// New creates a logger appending to the file at path, creating parent
// directories once at construction. With console enabled, every appended
// record is also mirrored to standard output.
func New(path string, console bool) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &IOError{Op: "open", Path: path, Err: err}
		}
	}

	// Append mode on an unbuffered handle: a completed write has reached
	// the OS before Append returns, so an abrupt process exit cannot lose
	// an accepted record.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}

	logger := &Logger{
		path: path,
		file: file,
	}
	if console {
		logger.console = os.Stdout
	}

	return logger, nil
}

// SetMetrics attaches append/read instrumentation. Optional; without it
// the logger records nothing about itself.
func (l *Logger) SetMetrics(m *Metrics) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics = m
}

// Path returns the log file location
func (l *Logger) Path() string {
	return l.path
}

// Append writes one record as a single JSON line. Safe for concurrent
// use: the mutex serializes format + write, so two concurrent appends
// produce two whole lines in some total order, never interleaved or
// truncated. The call returns only after the line has been handed to the
// OS; there is no background buffering and no cancellation. An append
// either completes durably or fails with an *IOError.
func (l *Logger) Append(rec Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid audit record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return &IOError{Op: "append", Path: l.path, Err: os.ErrClosed}
	}

	start := time.Now()

	data, err := rec.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		if l.metrics != nil {
			l.metrics.AppendErrors.Inc()
		}
		return &IOError{Op: "append", Path: l.path, Err: err}
	}

	// Console mirror is best-effort and independent of file durability.
	if l.console != nil {
		fmt.Fprintf(l.console, "AUDIT: %s", data)
	}

	if l.metrics != nil {
		l.metrics.Appends.WithLabelValues(string(rec.Operation)).Inc()
		l.metrics.AppendDuration.Observe(time.Since(start).Seconds())
	}

	return nil
}

// ReadLogs reads back the most recent limit records matching the filter,
// in chronological order. See the package-level ReadLogs for the full
// contract.
func (l *Logger) ReadLogs(limit int, f Filter) (*ReadResult, error) {
	res, err := ReadLogs(l.path, limit, f)
	if err == nil && res.Skipped > 0 && l.metrics != nil {
		l.metrics.MalformedLines.Add(float64(res.Skipped))
	}
	return res, err
}

// Close syncs and closes the file handle. Appends after Close fail.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	syncErr := l.file.Sync()
	closeErr := l.file.Close()
	l.file = nil

	if syncErr != nil {
		return &IOError{Op: "sync", Path: l.path, Err: syncErr}
	}
	if closeErr != nil {
		return &IOError{Op: "close", Path: l.path, Err: closeErr}
	}
	return nil
}
