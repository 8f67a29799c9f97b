package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // success
	ExitFailure      = 1 // the workbook or a scenario failed: schema violation, build errors, failed assertions
	ExitCommandError = 2 // the command could not run: bad paths, bad flags, unreadable database
)

// Error codes reported in JSON output. Schema violations carry the ir
// package codes (E100-E102) instead.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeNotFound    = "E002" // path not found
	ErrCodeNoFiles     = "E003" // no workbook files found
	ErrCodeBuildFailed = "E004" // workbook built with errors
	ErrCodeBadRef      = "E005" // unresolvable address or name
	ErrCodeBadInput    = "E006" // malformed ref=value argument
	ErrCodeStore       = "E007" // snapshot store failure
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors that are not an
// ExitError map to ExitFailure; nil maps to ExitSuccess.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose output; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// IsJSON reports whether output is JSON.
func (f *OutputFormatter) IsJSON() bool {
	return f.Format == "json"
}

// Success outputs a successful result in the configured format. Text output
// prints data with fmt; commands with structured results print their own
// text and call Success only for JSON.
func (f *OutputFormatter) Success(data any) error {
	if f.IsJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.IsJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// fail returns err after writing its JSON envelope. In text mode nothing is
// written; Main prints the error on stderr.
func fail(out *OutputFormatter, code string, err error, details any) error {
	if out.IsJSON() {
		_ = out.Error(code, err.Error(), details)
	}
	return err
}

// Printf writes text output. It is a no-op in JSON mode.
func (f *OutputFormatter) Printf(format string, args ...any) {
	if f.IsJSON() {
		return
	}
	fmt.Fprintf(f.Writer, format, args...)
}

// VerboseLog writes a line to ErrWriter when verbose is set, keeping JSON
// on Writer intact.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// formatValue renders a facade value for text output. Grids print one row
// per line, tab separated.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "(blank)"
	case [][]any:
		rows := make([]string, len(x))
		for i, row := range x {
			cells := make([]string, len(row))
			for j, c := range row {
				cells[j] = formatScalar(c)
			}
			rows[i] = strings.Join(cells, "\t")
		}
		return strings.Join(rows, "\n")
	default:
		return formatScalar(v)
	}
}

func formatScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}
