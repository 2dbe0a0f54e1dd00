package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/odatamongo/internal/pipeline"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the adapter refused the call or the store failed it
	ExitCommandError = 2 // the call was never made: flags, input files, connection
)

// Codes reported in CLIError.Code.
const (
	ErrCodeGeneric       = "E001"
	ErrCodeInvalidInput  = "E002" // flag value or document does not parse
	ErrCodeInvalidModel  = "E003"
	ErrCodeInvalidQuery  = "E004" // descriptor rejected by query.Validate
	ErrCodeNotFound      = "E005" // input file missing
	ErrCodeRejected      = "E006" // update not successful, insert not single
	ErrCodeStoreError    = "E007"
	ErrCodeConnectFailed = "E008"
)

// ExitError carries the process exit code out of a command's RunE.
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

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors other than ExitError
// exit with ExitFailure.
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

// OutputFormatter writes command results as a JSON envelope or plain text.
// Diagnostics go to ErrWriter, or to Writer when it is nil.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// CLIResponse is the envelope of --format json. Exactly one of Data and
// Error is set.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failed command inside CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data with status "ok".
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Documents outputs BSON values (documents, counts, plans) in their
// canonical Extended JSON form: raw inside the JSON envelope, indented in
// text mode.
func (f *OutputFormatter) Documents(v any) error {
	raw, err := pipeline.MarshalCanonical(v)
	if err != nil {
		return err
	}
	return f.Raw(raw)
}

// Raw outputs an already encoded JSON value the same way Documents does.
func (f *OutputFormatter) Raw(raw []byte) error {
	if f.Format == "json" {
		return f.Success(json.RawMessage(raw))
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	return f.Success(buf.String())
}

// Error writes an error with status "error". Text mode prints details only
// when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
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

// Fail outputs the error and returns the matching ExitError.
func (f *OutputFormatter) Fail(exitCode int, code, message string, err error) error {
	var details any
	if err != nil {
		details = err.Error()
	}
	_ = f.Error(code, message, details)
	return WrapExitError(exitCode, fmt.Sprintf("[%s] %s", code, message), err)
}

// VerboseLog writes a diagnostic line when verbose.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the diagnostics writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
