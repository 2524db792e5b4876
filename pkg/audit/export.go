package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
)

// Export serializes records in the requested format
func Export(records []Record, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportFormatJSON, "":
		return exportJSON(records)
	case ExportFormatNDJSON:
		return exportNDJSON(records)
	case ExportFormatCSV:
		return exportCSV(records)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// exportJSON exports audit records as a JSON array
func exportJSON(records []Record) ([]byte, error) {
	return json.MarshalIndent(records, "", "  ")
}

// exportNDJSON exports audit records as newline-delimited JSON
func exportNDJSON(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)

	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			return nil, fmt.Errorf("failed to encode record: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// exportCSV exports audit records as CSV. The metadata map is flattened
// to its JSON form in a single column.
func exportCSV(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"Timestamp",
		"Actor",
		"Operation",
		"Symbols",
		"Library",
		"Metadata",
	}

	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rec := range records {
		metadata := ""
		if rec.Metadata != nil {
			data, err := json.Marshal(rec.Metadata)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal metadata: %w", err)
			}
			metadata = string(data)
		}

		row := []string{
			rec.Timestamp.String(),
			rec.Actor,
			string(rec.Operation),
			strings.Join(rec.Symbols, ";"),
			rec.Library,
			metadata,
		}

		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}
