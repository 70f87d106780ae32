package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	rerrors "github.com/arkilian/realmstore/internal/errors"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Check failure (schema mismatch, migration needed)
	ExitCommandError = 2 // Command error (bad flags, missing files, storage errors)
)

// ExitError carries the exit code a command failed with.
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

// GetExitCode extracts the exit code from an error. Schema and version
// failures exit with ExitFailure, everything else with ExitCommandError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch rerrors.GetCategory(err) {
	case rerrors.ErrCategoryMigration, rerrors.ErrCategoryVersion:
		return ExitFailure
	}
	return ExitCommandError
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Category string      `json:"category,omitempty"`
	Code     string      `json:"code"`
	Message  string      `json:"message"`
	Details  interface{} `json:"details,omitempty"`
}

// JSON reports whether output is JSON.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Success writes data as a JSON envelope, or calls text for human output.
func (f *OutputFormatter) Success(data interface{}, text func(w io.Writer)) error {
	if f.JSON() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Error writes err in the configured format.
func (f *OutputFormatter) Error(err error) error {
	var e *rerrors.Error
	cliErr := &CLIError{Code: "UNEXPECTED", Message: err.Error()}
	if errors.As(err, &e) {
		cliErr = &CLIError{
			Category: string(e.Category),
			Code:     e.Code,
			Message:  e.Message,
		}
		if m := rerrors.Mismatches(err); len(m) > 1 {
			cliErr.Details = map[string]interface{}{"mismatches": m}
		}
	}

	if f.JSON() {
		return f.encode(CLIResponse{Status: "error", Error: cliErr})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", cliErr.Code, cliErr.Message)
	for _, m := range rerrors.Mismatches(err) {
		fmt.Fprintf(f.Writer, "  - %s\n", m)
	}
	return nil
}

func (f *OutputFormatter) encode(v interface{}) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
