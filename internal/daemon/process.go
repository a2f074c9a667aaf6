package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ExecutableEnvVar overrides the backchannel binary used to spawn the
// background daemon. Used in tests to point at a built binary instead of
// os.Executable().
const ExecutableEnvVar = "BACKCHANNEL_EXECUTABLE"

// ErrAlreadyRunning is returned by Spawn when a live daemon is recorded.
var ErrAlreadyRunning = errors.New("daemon is already running")

// startupTimeout bounds how long Spawn waits for the child to record its state.
const startupTimeout = 5 * time.Second

func executablePath() (string, error) {
	if path := os.Getenv(ExecutableEnvVar); path != "" {
		return path, nil
	}
	path, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("get executable path: %w", err)
	}
	return path, nil
}

// Spawn starts "backchannel <args...>" detached from the terminal and waits
// until the child has written its state file. args normally carry
// "daemon run" plus any global flags.
func Spawn(args []string) (*State, error) {
	if err := CleanupStaleState(); err != nil {
		return nil, err
	}
	if state, err := LoadState(); err != nil {
		return nil, err
	} else if IsRunning(state) {
		return state, ErrAlreadyRunning
	}

	path, err := executablePath()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(context.Background(), path, args...) //nolint:gosec // G204: args are not user-controlled
	// New session: the daemon must survive the terminal closing.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start daemon: %w", err)
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	deadline := time.After(startupTimeout)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case err := <-exited:
			if err == nil {
				err = errors.New("exited during startup")
			}
			return nil, fmt.Errorf("daemon failed to start: %w", err)
		case <-deadline:
			_ = cmd.Process.Kill()
			return nil, errors.New("daemon failed to start (no state file written)")
		case <-tick.C:
			state, err := LoadState()
			if err == nil && state != nil && state.PID == cmd.Process.Pid {
				return state, nil
			}
		}
	}
}

// Terminate stops the recorded daemon, waits briefly for it to exit and
// removes leftover state. It returns nil when no daemon is recorded.
func Terminate() (*State, error) {
	state, err := LoadState()
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}

	if err := Stop(state); err != nil {
		return state, err
	}
	deadline := time.Now().Add(2 * time.Second)
	for IsRunning(state) && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	// The daemon removes these itself; this covers a daemon that died.
	_ = RemoveState()
	if state.SocketPath != "" {
		_ = os.Remove(state.SocketPath)
	}
	return state, nil
}
