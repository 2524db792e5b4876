package cli

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// what it printed
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	runErr := fn()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), runErr
}

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	assert.Equal(t, "chronicle", root.Name)
	assert.Equal(t, "Chronicle - Audit Log Inspection CLI", root.Description)
	assert.NotNil(t, root.Subcommands)
	assert.NotNil(t, root.Flags)

	expectedCommands := []string{
		"tail",
		"export",
		"verify",
		"ingest",
		"stats",
	}

	for _, cmdName := range expectedCommands {
		assert.Contains(t, root.Subcommands, cmdName, "Expected subcommand %s to be registered", cmdName)
		assert.NotNil(t, root.Subcommands[cmdName], "Expected subcommand %s to be non-nil", cmdName)
	}

	assert.Equal(t, len(expectedCommands), len(root.Subcommands))
}

func TestCommandUsage(t *testing.T) {
	root := NewRootCommand()

	output, err := captureStdout(t, root.usage)

	assert.NoError(t, err)
	assert.Contains(t, output, "Usage: chronicle <command> [args]")
	assert.Contains(t, output, "Commands:")
	assert.Contains(t, output, "tail")
	assert.Contains(t, output, "export")
	assert.Contains(t, output, "verify")
	assert.Contains(t, output, "ingest")
	assert.Contains(t, output, "stats")
}

func TestCommandExecute_NoArgs(t *testing.T) {
	root := NewRootCommand()

	oldArgs := os.Args
	os.Args = []string{"chronicle"}
	defer func() { os.Args = oldArgs }()

	output, err := captureStdout(t, root.Execute)

	assert.NoError(t, err)
	assert.Contains(t, output, "Usage: chronicle <command> [args]")
}

func TestCommandExecute_HelpFlag(t *testing.T) {
	root := NewRootCommand()

	testCases := []struct {
		name     string
		helpFlag string
	}{
		{"lowercase -h", "-h"},
		{"uppercase -H", "-H"},
		{"lowercase --help", "--help"},
		{"uppercase --HELP", "--HELP"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			oldArgs := os.Args
			os.Args = []string{"chronicle", tc.helpFlag}
			defer func() { os.Args = oldArgs }()

			output, err := captureStdout(t, root.Execute)

			assert.NoError(t, err)
			assert.Contains(t, output, "Usage: chronicle <command> [args]")
		})
	}
}

func TestCommandExecute_ValidSubcommand(t *testing.T) {
	root := NewRootCommand()

	mockCalled := false
	root.Subcommands["test"] = &Command{
		Name:        "test",
		Description: "Test command",
		Run: func(args []string) error {
			mockCalled = true
			return nil
		},
	}

	oldArgs := os.Args
	os.Args = []string{"chronicle", "test"}
	defer func() { os.Args = oldArgs }()

	err := root.Execute()

	assert.NoError(t, err)
	assert.True(t, mockCalled, "Expected mock subcommand to be called")
}

func TestCommandExecute_UnknownCommand(t *testing.T) {
	root := NewRootCommand()

	oldArgs := os.Args
	os.Args = []string{"chronicle", "nonexistent"}
	defer func() { os.Args = oldArgs }()

	err := root.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: nonexistent")
}

func TestCommandExecute_SubcommandWithArgs(t *testing.T) {
	root := NewRootCommand()

	var receivedArgs []string
	root.Subcommands["test"] = &Command{
		Name:        "test",
		Description: "Test command",
		Run: func(args []string) error {
			receivedArgs = args
			return nil
		},
	}

	oldArgs := os.Args
	os.Args = []string{"chronicle", "test", "arg1", "arg2", "-flag"}
	defer func() { os.Args = oldArgs }()

	err := root.Execute()

	assert.NoError(t, err)
	require.Equal(t, []string{"arg1", "arg2", "-flag"}, receivedArgs)
}
