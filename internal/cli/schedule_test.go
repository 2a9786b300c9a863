package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleSerial(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewScheduleCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join("testdata", "spmv.cue")})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "kernel spmv(m)")
	assert.Contains(t, out, "for i in [0, m):")
	assert.Contains(t, out, "store: y[i] = rowsum[i]")
}

func TestScheduleWithRecipe(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewScheduleCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{
		filepath.Join("testdata", "spmv.cue"),
		"--recipe", filepath.Join("testdata", "flagship.yaml"),
	})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "par group.0 i_outer")
	assert.Contains(t, out, "unroll j_inner")
}

func TestScheduleRecipeFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewScheduleCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{
		filepath.Join("testdata", "spmv.cue"),
		"--recipe", filepath.Join("testdata", "bad_recipe.yaml"),
	})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "UNKNOWN_INAME")
}
