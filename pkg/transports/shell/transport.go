// Package shell provides the SSH transport for remote command execution
// and file delivery against a unit's host operating system.
package shell

import (
	"context"
	"time"
)

// Transport is the contract the orchestration core depends on. The
// concrete implementation is Client; tests substitute fakes.
type Transport interface {
	// Connect establishes the SSH connection.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. Safe to call repeatedly.
	Disconnect() error

	// Run executes one command. stdin, when non-empty, is written to
	// the command's input stream and closed. A non-zero exit code is
	// reported in the result, not as an error; errors are reserved for
	// session and connection faults.
	Run(ctx context.Context, cmd string, stdin string, timeout time.Duration) (ExecResult, error)

	// Upload copies a local file to a remote path with the given mode.
	Upload(ctx context.Context, localPath, remotePath string, mode uint32) error
}

// ExecResult is the captured outcome of one remote command.
type ExecResult struct {
	// Stdout is the trimmed standard output.
	Stdout string

	// Stderr is the trimmed standard error.
	Stderr string

	// ExitCode is the remote exit status. -1 when the command did not
	// run to completion.
	ExitCode int

	// Duration is the wall-clock execution time.
	Duration time.Duration
}

// Combined returns stdout and stderr joined for marker scanning.
func (r ExecResult) Combined() string {
	if r.Stdout == "" {
		return r.Stderr
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + "\n" + r.Stderr
}

// TransportError represents an error from the shell transport layer.
type TransportError struct {
	// Op is the operation that failed (connect, exec, upload).
	Op string

	// Err is the underlying error.
	Err error

	// IsTemporary indicates the failure may succeed on retry.
	IsTemporary bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
