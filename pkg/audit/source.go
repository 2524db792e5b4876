package audit

import "context"

// Source provides read access to audit records for queries, independent
// of whether they live in the JSONL file or the Postgres archive
type Source interface {
	// Search returns records matching the filter in chronological order,
	// most recent limit records when limit > 0
	Search(ctx context.Context, f Filter, limit int) ([]Record, error)

	// Stats summarizes the records matching the filter
	Stats(ctx context.Context, f Filter) (*Stats, error)
}

// FileSource reads audit records directly from a JSONL log file
type FileSource struct {
	path string
}

// NewFileSource creates a source over the log file at path
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Search reads the log file and returns matching records
func (s *FileSource) Search(ctx context.Context, f Filter, limit int) ([]Record, error) {
	res, err := ReadLogs(s.path, limit, f)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// Stats summarizes the log file contents
func (s *FileSource) Stats(ctx context.Context, f Filter) (*Stats, error) {
	return CollectStats(s.path, f)
}
