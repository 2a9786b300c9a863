package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodeExtraction(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError,
		GetExitCode(WrapExitError(ExitCommandError, "load kernel", errors.New("no such file"))))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "apply", errors.New("refused")))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}

func TestFormatterTextFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, f.Failure("UNKNOWN_INAME", "no active iname q"))
	assert.Equal(t, "error (UNKNOWN_INAME): no active iname q\n", buf.String())
}

func TestFormatterJSONEnvelope(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}
	require.NoError(t, f.SuccessText("schedule", "kernel spmv(m)\n"))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	buf.Reset()
	require.NoError(t, f.Failure("CONFLICTING_TAG", "iname i already tagged"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFLICTING_TAG", resp.Error.Code)
}
