package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

type result struct {
	stdout string
	stderr string
	err    error
}

// execute runs the root command with an isolated settings file.
func execute(t *testing.T, args ...string) result {
	t.Helper()
	settingsFile := filepath.Join(t.TempDir(), "compositor.yaml")
	require.NoError(t, os.WriteFile(settingsFile, []byte("log_level: warn\n"), 0o644))

	root := newRootCmd()
	return executeCommand(root, append([]string{"--config", settingsFile}, args...)...)
}

func executeCommand(cmd *cobra.Command, args ...string) result {
	cmd.SetArgs(args)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.Execute()
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func writeAction(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "action.yml"), []byte(body), 0o644))
	return dir
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell required")
	}
}
