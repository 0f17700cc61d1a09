// Package remote runs shell commands on the benchmark hosts and copies files to and from them.
package remote

import (
	"context"

	"github.com/pkg/errors"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
)

// Output is what a command wrote.
type Output struct {
	Host    string
	Command string
	Stdout  string
	Stderr  string
}

// Executor runs commands on remote hosts. Commands are never retried.
type Executor interface {
	// Run blocks until command has completed on host.
	// A command that exits with a non-zero status returns an *bencherrors.ErrExecution.
	Run(ctx context.Context, host, command string) (*Output, error)
	// Put copies the local file to remotePath on host.
	Put(ctx context.Context, host, localPath, remotePath string) error
	// Get copies remotePath on host to the local file.
	Get(ctx context.Context, host, remotePath, localPath string) error
	// Close releases every connection.
	Close() error
}

// Check returns an error if the command wrote anything to stderr.
func Check(output *Output) error {
	if output == nil || output.Stderr == "" {
		return nil
	}
	return errors.WithStack(&bencherrors.ErrExecution{
		Host:       output.Host,
		Command:    output.Command,
		Stderr:     output.Stderr,
		ExitStatus: 0,
	})
}
