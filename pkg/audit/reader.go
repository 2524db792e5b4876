package audit

import (
	"bufio"
	"bytes"
	"io"
	"os"
)

// maxLineBytes bounds a single log line during scans. Metadata maps are
// small by contract (no raw data values), so 1MB is generous.
const maxLineBytes = 1 << 20

// ReadResult is the outcome of one log scan
type ReadResult struct {
	// Records in chronological order (oldest first)
	Records []Record

	// Skipped counts malformed lines tolerated during the scan. A non-zero
	// value indicates external tampering or a torn final line.
	Skipped int
}

// ReadLogs scans the log file at path and returns matching records in
// chronological order. With limit > 0 only the most recent limit matches
// are kept, still ordered oldest first. Each call opens its own handle
// and observes a snapshot of the file at open time; it may run
// concurrently with appends and never sees a half-written record as
// valid. Malformed lines are skipped and counted, never fatal. A missing
// file reads as empty.
func ReadLogs(path string, limit int, f Filter) (*ReadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ReadResult{}, nil
		}
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	defer file.Close()

	res, _, err := scanRecords(file, path, f, true)
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(res.Records) > limit {
		res.Records = res.Records[len(res.Records)-limit:]
	}

	return res, nil
}

// ReadLogsFrom scans the log file starting at offset and returns the
// matching records plus the offset reached, for callers that follow the
// file across appends (tail mode). An unterminated trailing line is left
// unconsumed so the next pass picks it up once the writer finishes it;
// the returned offset always lands on a line boundary.
func ReadLogsFrom(path string, offset int64, f Filter) (*ReadResult, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ReadResult{}, offset, nil
		}
		return nil, offset, &IOError{Op: "read", Path: path, Err: err}
	}
	defer file.Close()

	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return nil, offset, &IOError{Op: "read", Path: path, Err: err}
		}
	}

	res, n, err := scanRecords(file, path, f, false)
	if err != nil {
		return nil, offset, err
	}

	return res, offset + n, nil
}

// scanRecords reads newline-delimited records from r, returning the
// matches and the number of bytes consumed. With consumeTrailing set, a
// final line lacking its newline is still parsed (and counted malformed
// if torn); otherwise it is left unconsumed for a later pass.
func scanRecords(r io.Reader, path string, f Filter, consumeTrailing bool) (*ReadResult, int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	res := &ReadResult{}
	var consumed int64

	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, consumed, &IOError{Op: "read", Path: path, Err: err}
		}

		trailing := err == io.EOF
		if trailing && (line == "" || !consumeTrailing) {
			break
		}
		consumed += int64(len(line))

		trimmed := bytes.TrimSpace([]byte(line))
		switch {
		case len(trimmed) == 0:
			// blank line, not evidence of tampering
		case len(trimmed) > maxLineBytes:
			res.Skipped++
		default:
			rec, perr := ParseRecord(trimmed)
			if perr != nil {
				res.Skipped++
			} else if f.Matches(rec) {
				res.Records = append(res.Records, rec)
			}
		}

		if trailing {
			break
		}
	}

	return res, consumed, nil
}

// CollectStats folds every record in the log into a Stats summary,
// including the malformed line count.
func CollectStats(path string, f Filter) (*Stats, error) {
	res, err := ReadLogs(path, 0, f)
	if err != nil {
		return nil, err
	}

	stats := NewStats()
	for _, rec := range res.Records {
		stats.Observe(rec)
	}
	stats.MalformedLines = res.Skipped

	return stats, nil
}
