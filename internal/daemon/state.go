package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// State tracks a running daemon so that `daemon status` and `daemon stop`
// can find it.
type State struct {
	PID          int       `json:"pid"`
	SocketPath   string    `json:"socket_path"`
	SSHListen    string    `json:"ssh_listen,omitempty"`
	StatusListen string    `json:"status_listen,omitempty"`
	StartedAt    time.Time `json:"started_at"`
}

// StateDir returns $XDG_DATA_HOME/backchannel, defaulting to
// ~/.local/share/backchannel.
func StateDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "backchannel"), nil
}

// StatePath returns the path to the daemon state file.
func StatePath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "daemon.json"), nil
}

// SaveState saves the daemon state to disk.
func SaveState(state *State) error {
	path, err := StatePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}

// LoadState loads the daemon state from disk.
// Returns nil if the state file doesn't exist.
func LoadState() (*State, error) {
	path, err := StatePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// RemoveState removes the daemon state file.
func RemoveState() error {
	path, err := StatePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove state: %w", err)
	}
	return nil
}

// IsRunning checks if the daemon process recorded in state is alive.
func IsRunning(state *State) bool {
	if state == nil || state.PID == 0 {
		return false
	}
	process, err := os.FindProcess(state.PID)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 checks existence.
	return process.Signal(syscall.Signal(0)) == nil
}

// Stop sends SIGTERM to the daemon process. A process that is already gone
// is not an error.
func Stop(state *State) error {
	if state == nil || state.PID == 0 {
		return nil
	}
	process, err := os.FindProcess(state.PID)
	if err != nil {
		return nil //nolint:nilerr // nothing to stop
	}
	if err := process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to signal daemon (pid %d): %w", state.PID, err)
	}
	return nil
}

// CleanupStaleState removes the state file and socket if the recorded
// process is not running. This handles a daemon that crashed without cleanup.
func CleanupStaleState() error {
	state, err := LoadState()
	if err != nil {
		return err
	}
	if state != nil && !IsRunning(state) {
		if state.SocketPath != "" {
			_ = os.Remove(state.SocketPath)
		}
		return RemoveState()
	}
	return nil
}
