package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cellarsync/sqlitecrdt"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failure (merge/compact/exec returned an engine error)
	ExitCommandError = 2 // Command error (invalid flags, database not found, etc.)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
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
	ErrWriter io.Writer // Separate writer for diagnostic output; Success and Error write only to Writer
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"` // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError mirrors an engine *sqlitecrdt.Error onto the wire: Code is
// one of sqlitecrdt's own ErrorCode values (e.g. "no_tracked_table"),
// not a CLI-invented code, so a scripted caller can match on exactly
// the taxonomy the engine itself defines.
type CLIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details map[string]string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose {
		for k, v := range details {
			fmt.Fprintf(f.Writer, "  %s: %s\n", k, v)
		}
	}
	return nil
}

// exitCodeForEngineError classifies a *sqlitecrdt.Error by its Code:
// mistakes a caller could have caught before ever touching the
// database (a bad table name, a missing --table, too many excluded
// nodes) exit ExitCommandError, while failures that only surface once
// the engine actually ran a statement exit ExitFailure.
func exitCodeForEngineError(err error) int {
	switch {
	case sqlitecrdt.IsInvalidName(err),
		sqlitecrdt.IsNameTooLong(err),
		sqlitecrdt.IsNoTrackedTable(err),
		sqlitecrdt.IsTooManyExcludedNodes(err),
		sqlitecrdt.IsOpenFailed(err):
		return ExitCommandError
	default:
		return ExitFailure
	}
}

// ReportEngineError formats err (expected to unwrap to a *sqlitecrdt.Error)
// as a CLIError carrying the engine's own error code and context fields,
// and returns an *ExitError with the exit code exitCodeForEngineError
// selects for it. action describes the operation that failed, e.g.
// "enable table".
func (f *OutputFormatter) ReportEngineError(action string, err error) error {
	code := string(sqlitecrdt.ErrInternal)
	details := map[string]string{}
	var engErr *sqlitecrdt.Error
	if errors.As(err, &engErr) {
		code = string(engErr.Code)
		if engErr.Table != "" {
			details["table"] = engErr.Table
		}
		if engErr.Column != "" {
			details["column"] = engErr.Column
		}
		if engErr.Statement != "" {
			details["statement"] = engErr.Statement
		}
	}
	if len(details) == 0 {
		details = nil
	}

	message := action + ": " + err.Error()
	f.Error(code, message, details)
	return NewExitError(exitCodeForEngineError(err), message)
}
