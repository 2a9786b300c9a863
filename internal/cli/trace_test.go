package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceSerial(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{
		filepath.Join("testdata", "spmv.cue"),
		"--data", filepath.Join("testdata", "spmv_data.yaml"),
	})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "y = [14, 0, 29, 28]\n", buf.String())
}

func TestTraceFlagshipMatchesSerial(t *testing.T) {
	run := func(recipe string) string {
		buf := &bytes.Buffer{}
		cmd := NewTraceCommand(&RootOptions{Format: "text"})
		cmd.SetOut(buf)
		args := []string{
			filepath.Join("testdata", "spmv.cue"),
			"--data", filepath.Join("testdata", "spmv_data.yaml"),
		}
		if recipe != "" {
			args = append(args, "--recipe", recipe)
		}
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute())
		return buf.String()
	}

	serial := run("")
	flagship := run(filepath.Join("testdata", "flagship.yaml"))
	assert.Equal(t, serial, flagship)
}

func TestTraceJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{
		filepath.Join("testdata", "spmv.cue"),
		"--data", filepath.Join("testdata", "spmv_data.yaml"),
	})

	require.NoError(t, cmd.Execute())
	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Len(t, data["y"], 4)
}

func TestTraceMissingData(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{
		filepath.Join("testdata", "spmv.cue"),
		"--data", filepath.Join("testdata", "nope.yaml"),
	})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
