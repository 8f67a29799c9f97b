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

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(ErrCodeStore, "database locked", map[string]string{"path": "x.db"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E007", resp.Error.Code)
	assert.Equal(t, "database locked", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("all good"))
	require.NoError(t, formatter.Error(ErrCodeGeneric, "went wrong", "hidden"))
	formatter.Printf("%s=%d\n", "x", 1)

	assert.Equal(t, "all good\nError [E001]: went wrong\nx=1\n", buf.String())
}

func TestOutputFormatter_TextErrorDetailsWhenVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, formatter.Error(ErrCodeGeneric, "went wrong", "shown"))
	assert.Contains(t, buf.String(), "Details: shown")
}

func TestOutputFormatter_PrintfIsSilentInJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}
	formatter.Printf("noise\n")
	assert.Empty(t, buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	quiet := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}
	quiet.VerboseLog("hidden %d", 1)
	assert.Empty(t, errOut.String())

	loud := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}
	loud.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
	assert.Empty(t, out.String())
}

func TestFail(t *testing.T) {
	buf := &bytes.Buffer{}
	err := NewExitError(ExitCommandError, "boom")

	got := fail(&OutputFormatter{Format: "text", Writer: buf}, ErrCodeGeneric, err, nil)
	assert.Same(t, err, got)
	assert.Empty(t, buf.String())

	got = fail(&OutputFormatter{Format: "json", Writer: buf}, ErrCodeGeneric, err, nil)
	assert.Same(t, err, got)
	assert.Contains(t, buf.String(), `"message":"boom"`)
}

func TestExitError(t *testing.T) {
	inner := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to save", inner)
	assert.Equal(t, "failed to save: disk full", err.Error())
	assert.ErrorIs(t, err, inner)

	assert.Equal(t, "plain", NewExitError(ExitFailure, "plain").Error())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("x")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "x"))))
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "(blank)"},
		{2250.0, "2250"},
		{0.25, "0.25"},
		{"25.0%", "25.0%"},
		{true, "TRUE"},
		{[][]any{{1.0, nil, "a"}, {false, 2.5, "#DIV/0!"}}, "1\t\ta\nFALSE\t2.5\t#DIV/0!"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatValue(tt.in))
	}
}
