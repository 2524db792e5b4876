package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzdata/chronicle/pkg/audit"
)

func TestRunExport_JSONToStdout(t *testing.T) {
	path := seedLog(t)

	output, err := captureStdout(t, func() error {
		return runExport([]string{"-log", path, "-format", "json"})
	})
	require.NoError(t, err)

	var records []audit.Record
	require.NoError(t, json.Unmarshal([]byte(output), &records))
	assert.Len(t, records, 3)
	assert.Equal(t, "jane.doe", records[0].Actor)
}

func TestRunExport_CSVToFile(t *testing.T) {
	path := seedLog(t)
	outFile := filepath.Join(t.TempDir(), "audit.csv")

	output, err := captureStdout(t, func() error {
		return runExport([]string{"-log", path, "-format", "csv", "-o", outFile})
	})
	require.NoError(t, err)
	assert.Contains(t, output, "Exported 3 records to "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Timestamp,Actor,Operation,Symbols,Library,Metadata", lines[0])
	assert.Contains(t, lines[2], "svc.ingest")
	assert.Contains(t, lines[2], "AAPL;MSFT")
}

func TestRunExport_NDJSON(t *testing.T) {
	path := seedLog(t)

	output, err := captureStdout(t, func() error {
		return runExport([]string{"-log", path, "-format", "ndjson"})
	})
	require.NoError(t, err)

	lines := outputLines(output)
	require.Len(t, lines, 3)
	for _, line := range lines {
		var rec audit.Record
		assert.NoError(t, json.Unmarshal([]byte(line), &rec))
	}
}

func TestRunExport_FilteredByActor(t *testing.T) {
	path := seedLog(t)

	output, err := captureStdout(t, func() error {
		return runExport([]string{"-log", path, "-format", "ndjson", "-actor", "svc.ingest"})
	})
	require.NoError(t, err)

	lines := outputLines(output)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"actor":"svc.ingest"`)
}

func TestRunExport_UnsupportedFormat(t *testing.T) {
	path := seedLog(t)

	_, err := captureStdout(t, func() error {
		return runExport([]string{"-log", path, "-format", "xml"})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export format")
}
