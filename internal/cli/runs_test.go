package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordedRunDB(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	cmd := NewApplyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{
		filepath.Join("testdata", "spmv.cue"),
		filepath.Join("testdata", "flagship.yaml"),
		"--store", dbPath,
	})
	require.NoError(t, cmd.Execute())
	return dbPath
}

func TestRunsListAndShow(t *testing.T) {
	dbPath := recordedRunDB(t)

	buf := &bytes.Buffer{}
	cmd := NewRunsCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"spmv", "--store", dbPath})
	require.NoError(t, cmd.Execute())

	token := strings.TrimSpace(buf.String())
	require.NotEmpty(t, token)

	buf.Reset()
	cmd = NewRunsCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--store", dbPath, "--token", token})
	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "status applied")
	assert.Contains(t, out, "op 1: split i factor=128")
	assert.Contains(t, out, "op 2: tag i_outer tag=group.0")
	assert.Contains(t, out, `"name":"spmv"`)
}

func TestRunsUnknownToken(t *testing.T) {
	dbPath := recordedRunDB(t)

	buf := &bytes.Buffer{}
	cmd := NewRunsCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--store", dbPath, "--token", "no-such-token"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "run not found")
}

func TestRunsRequiresKernelOrToken(t *testing.T) {
	dbPath := recordedRunDB(t)

	cmd := NewRunsCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--store", dbPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
