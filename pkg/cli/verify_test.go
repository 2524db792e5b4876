package cli

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunVerify_CleanLog(t *testing.T) {
	path := seedLog(t)

	output, err := captureStdout(t, func() error {
		return runVerify([]string{"-log", path})
	})
	require.NoError(t, err)
	assert.Contains(t, output, "3 well-formed records")
	assert.Contains(t, output, "no malformed lines")
}

func TestRunVerify_MalformedLine(t *testing.T) {
	path := seedLog(t)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("corrupted line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = captureStdout(t, func() error {
		return runVerify([]string{"-log", path})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 malformed lines in")
}

func TestRunVerify_MissingFile(t *testing.T) {
	output, err := captureStdout(t, func() error {
		return runVerify([]string{"-log", "/nonexistent/audit.log"})
	})
	require.NoError(t, err)
	assert.Contains(t, output, "0 well-formed records")
}
