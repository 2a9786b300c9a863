package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenarioResolvesKernelPath(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "serial_spmv.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "serial_spmv", s.Name)
	assert.Equal(t, filepath.Join("testdata", "spmv.cue"), s.Kernel)
	require.NotNil(t, s.Data)
	assert.Equal(t, []int64{14, 0, 29, 28}, s.Data.Outputs["y"])
}

func TestLoadScenarioRejectsMalformed(t *testing.T) {
	write := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "s.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}
	kernel, err := filepath.Abs(filepath.Join("testdata", "spmv.cue"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		content string
	}{
		{"missing name", "kernel: " + kernel + "\n"},
		{"missing kernel", "name: x\n"},
		{"kernel file absent", "name: x\nkernel: /nonexistent/k.cue\n"},
		{"unknown field", "name: x\nkernel: " + kernel + "\nasserts: []\n"},
		{"error and data together", "name: x\nkernel: " + kernel + "\nexpect_error: UNKNOWN_INAME\ndata:\n  outputs:\n    y: [1]\n"},
		{"data without outputs", "name: x\nkernel: " + kernel + "\ndata:\n  params:\n    m: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(write(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestVerifyReportsMismatchedOutput(t *testing.T) {
	s := &Scenario{
		Name: "mismatch",
		Data: &ScenarioData{Outputs: map[string][]int64{"y": {1, 2}}},
	}
	r := &Result{Outputs: map[string][]int64{"y": {1, 3}}}
	err := Verify(s, r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "y[1]")
}

func TestVerifyExpectedErrorCode(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "unknown_iname.yaml"))
	require.NoError(t, err)

	r, err := Run(s)
	require.NoError(t, err)
	require.Error(t, r.Err)
	assert.NoError(t, Verify(s, r))

	// A scenario expecting a different code must not pass.
	s.ExpectError = "CONFLICTING_TAG"
	assert.Error(t, Verify(s, r))
}
