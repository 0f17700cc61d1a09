// Package bencherrors contains the error types returned while preparing, running and collecting a benchmark.
//
// Configuration errors (ErrConfigFile, ErrMissingKey, ErrInvalidType, ErrInvalidArgument, ErrMissingEnv) are always
// returned before any host is touched. Execution errors describe a command that failed on one host,
// ErrGroupExecution collapses a failed fan-out to a single representative host, and ErrParse is returned
// by the log parser. Callers should use errors.As to look through wrapped errors.
//
// If several sweep points fail, the sweep returns an error of type multierror.Error from package
// github.com/hashicorp/go-multierror that encapsulates those individual errors.
package bencherrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMissingKey is returned when a required key is absent from a settings or parameters file.
type ErrMissingKey struct {
	// Dotted path of the key, e.g., "key.path"
	Key string
	// Optional file the key was expected in
	Source string
}

func (err *ErrMissingKey) Error() string {
	if err.Source != "" {
		return fmt.Sprintf("malformed %s: missing key %q", err.Source, err.Key)
	}
	return fmt.Sprintf("missing key %q", err.Key)
}

// ErrConfigFile is returned when a settings or parameters file can't be read or isn't well-formed.
type ErrConfigFile struct {
	Path string
	Err  error
}

func (err *ErrConfigFile) Error() string {
	return fmt.Sprintf("failed to load %s: %s", err.Path, err.Err)
}

func (err *ErrConfigFile) Unwrap() error {
	return err.Err
}

// ErrInvalidType is returned when a value is present but cannot be coerced to the expected type.
type ErrInvalidType struct {
	Key      string
	Value    interface{}
	Expected string
}

func (err *ErrInvalidType) Error() string {
	if err.Expected == "" {
		return fmt.Sprintf("invalid type for key %q: %v", err.Key, err.Value)
	}
	return fmt.Sprintf("invalid type for key %q: expected %s, got %v (%T)", err.Key, err.Expected, err.Value, err.Value)
}

// ErrInvalidArgument is returned when individually valid fields violate an invariant.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "nodes"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %v is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrMissingEnv is returned when a settings value references an environment variable that isn't set.
type ErrMissingEnv struct {
	Name  string
	Value string
}

func (err *ErrMissingEnv) Error() string {
	return fmt.Sprintf("environment variable $%s referenced by %q is not set", err.Name, err.Value)
}

// ErrExecution is returned when a command produced error output or exited with a non-zero status.
type ErrExecution struct {
	// Host the command ran on; empty for local commands
	Host    string
	Command string
	Stderr  string
	// Exit status of the command, or -1 if it is unknown
	ExitStatus int
}

func (err *ErrExecution) Error() string {
	where := "locally"
	if err.Host != "" {
		where = "on " + err.Host
	}
	if err.Stderr != "" {
		return fmt.Sprintf("command failed %s: %s", where, err.Stderr)
	}
	return fmt.Sprintf("command failed %s with exit status %d", where, err.ExitStatus)
}

// ErrGroupExecution is returned when at least one host of a parallel fan-out failed.
// Only one representative failure is kept.
type ErrGroupExecution struct {
	Host   string
	Failed int
	Total  int
	Err    error
}

func (err *ErrGroupExecution) Error() string {
	return fmt.Sprintf("%d of %d hosts failed; %s: %s", err.Failed, err.Total, err.Host, err.Err)
}

func (err *ErrGroupExecution) Unwrap() error {
	return err.Err
}

// ErrParse is returned by the log parser when the collected logs can't be interpreted.
type ErrParse struct {
	Path    string
	Message string
}

func (err *ErrParse) Error() string {
	if err.Path == "" {
		return "failed to parse logs: " + err.Message
	}
	return fmt.Sprintf("failed to parse logs %s: %s", err.Path, err.Message)
}

// BenchError is the operator-facing error returned by the orchestrator, e.g., "Failed to update nodes".
type BenchError struct {
	Message string
	Err     error
}

func NewBenchError(message string, err error) *BenchError {
	return &BenchError{Message: message, Err: err}
}

func (err *BenchError) Error() string {
	if err.Err == nil {
		return err.Message
	}
	return fmt.Sprintf("%s: %s", err.Message, err.Err)
}

func (err *BenchError) Unwrap() error {
	return err.Err
}

// Cause lets pkg/errors and logging.ExtractStack walk into the wrapped error.
func (err *BenchError) Cause() error {
	return err.Err
}

// IsConfigurationError returns true if err, or any error it wraps, is one of the configuration error kinds.
func IsConfigurationError(err error) bool {
	{
		var e *ErrMissingKey
		if errors.As(err, &e) {
			return true
		}
	}
	{
		var e *ErrInvalidType
		if errors.As(err, &e) {
			return true
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return true
		}
	}
	{
		var e *ErrMissingEnv
		if errors.As(err, &e) {
			return true
		}
	}
	{
		var e *ErrConfigFile
		if errors.As(err, &e) {
			return true
		}
	}
	return false
}

// IsExecutionError returns true if err wraps a single-host or group execution failure.
func IsExecutionError(err error) bool {
	{
		var e *ErrExecution
		if errors.As(err, &e) {
			return true
		}
	}
	{
		var e *ErrGroupExecution
		if errors.As(err, &e) {
			return true
		}
	}
	return false
}
