package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultOutputLimit caps captured stdout and stderr (each) at 1 MiB.
const DefaultOutputLimit = 1 << 20

// waitDelay bounds how long Wait blocks on pipes held open by orphaned
// grandchildren after the process group was killed.
const waitDelay = 2 * time.Second

// ShellExecutor runs commands through the local user's shell as
// "<shell> -c <command>", with the daemon's own environment.
type ShellExecutor struct {
	Shell       string
	OutputLimit int
}

// NewShellExecutor creates a ShellExecutor. An empty shell resolves via
// ResolveShell; a non-positive limit uses DefaultOutputLimit.
func NewShellExecutor(shell string, outputLimit int) *ShellExecutor {
	if outputLimit <= 0 {
		outputLimit = DefaultOutputLimit
	}
	return &ShellExecutor{Shell: ResolveShell(shell), OutputLimit: outputLimit}
}

// ResolveShell returns configured if set, else $SHELL, else /bin/sh.
func ResolveShell(configured string) string {
	if configured != "" {
		return configured
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// Execute runs req.Command and returns the result.
func (e *ShellExecutor) Execute(ctx context.Context, req ExecuteRequest) ExecuteResponse {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.Shell, "-c", req.Command)
	// Run in a fresh process group so a timeout kills everything the
	// command spawned, not just the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	if req.Stdin != nil {
		cmd.Stdin = bytes.NewReader(req.Stdin)
	}

	stdout := NewLimitedBuffer(e.OutputLimit)
	stderr := NewLimitedBuffer(e.OutputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	resp := ExecuteResponse{
		Stdout:          stdout.Bytes(),
		Stderr:          stderr.Bytes(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		Duration:        time.Since(start),
	}

	if err == nil {
		resp.Status = StatusCompleted
		return resp
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		resp.ExitCode = -1
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			resp.Status = StatusTimeout
			resp.Error = fmt.Sprintf("command timed out after %s", req.Timeout)
		} else {
			resp.Status = StatusError
			resp.Error = "command canceled: relay session closed"
		}
		return resp
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		switch {
		case code < 0:
			resp.Status = StatusError
			resp.ExitCode = -1
			resp.Error = "command terminated by signal: " + exitErr.String()
		case code == 126:
			resp.Status = StatusError
			resp.Error = "command not executable (shell exit status 126)"
		case code == 127:
			resp.Status = StatusError
			resp.Error = "command not found (shell exit status 127)"
		default:
			resp.Status = StatusCompleted
			resp.ExitCode = code
		}
		return resp
	}

	// The shell itself could not be started.
	resp.Status = StatusError
	resp.Error = fmt.Sprintf("failed to start %s: %v", e.Shell, err)
	return resp
}
