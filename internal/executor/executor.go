// Package executor runs approved relay commands on the home host.
package executor

import (
	"context"
	"time"
)

// Executor executes commands on the host system.
type Executor interface {
	Execute(ctx context.Context, req ExecuteRequest) ExecuteResponse
}

// ExecuteRequest contains the command execution parameters.
// Command is handed to the shell verbatim.
type ExecuteRequest struct {
	Command string
	Stdin   []byte
	Timeout time.Duration
}

// ExecuteResponse contains the result of command execution.
type ExecuteResponse struct {
	Status          string
	ExitCode        int
	Stdout          []byte
	Stderr          []byte
	StdoutTruncated bool
	StderrTruncated bool
	Error           string
	Duration        time.Duration
}

// Status constants for ExecuteResponse.Status.
const (
	StatusCompleted = "completed"
	StatusTimeout   = "timeout"
	StatusError     = "error"
)
