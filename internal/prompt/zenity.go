package prompt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// zenity exit statuses.
const (
	zenityOK      = 0
	zenityCancel  = 1
	zenityTimeout = 5
)

// ZenityConfirmer asks through a desktop dialog, for daemons that run without
// a terminal in the user's graphical session.
type ZenityConfirmer struct {
	Path  string
	Width int
	// Home and UID locate the X authority file when XAUTHORITY is unset.
	Home string
	UID  int
}

// NewZenityConfirmer creates a ZenityConfirmer using the zenity binary at path.
func NewZenityConfirmer(path string) *ZenityConfirmer {
	home, _ := os.UserHomeDir()
	return &ZenityConfirmer{Path: path, Width: 450, Home: home, UID: os.Getuid()}
}

// Args returns the zenity command line for p.
func (z *ZenityConfirmer) Args(p Prompt) []string {
	origin := p.Origin
	if origin == "" {
		origin = "a remote host"
	}
	args := []string{
		"--question",
		"--title=Backchannel",
		"--no-markup",
		fmt.Sprintf("--text=%s wants to run:\n\n$ %s", origin, p.Command),
		"--ok-label=Run",
		"--cancel-label=Deny",
		fmt.Sprintf("--width=%d", z.Width),
	}
	if p.Timeout > 0 {
		args = append(args, fmt.Sprintf("--timeout=%d", int(math.Ceil(p.Timeout.Seconds()))))
	}
	return args
}

// Confirm shows the dialog and maps zenity's exit status to a decision.
func (z *ZenityConfirmer) Confirm(ctx context.Context, p Prompt) (bool, error) {
	cmd := exec.CommandContext(ctx, z.Path, z.Args(p)...)
	cmd.Env = DesktopEnv(os.Environ(), z.Home, z.UID)

	err := cmd.Run()
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case zenityCancel:
			return false, nil
		case zenityTimeout:
			return false, ErrNoAnswer
		}
	}
	return false, fmt.Errorf("zenity prompt: %w", err)
}

// DesktopEnv returns env with DISPLAY and XAUTHORITY filled in so a dialog
// started from a daemon without a session environment reaches the user's
// display. Existing values are kept.
func DesktopEnv(env []string, home string, uid int) []string {
	out := append([]string(nil), env...)
	if !hasEnv(out, "DISPLAY") && !hasEnv(out, "WAYLAND_DISPLAY") {
		out = append(out, "DISPLAY=:0")
	}
	if hasEnv(out, "XAUTHORITY") {
		return out
	}
	candidates := []string{filepath.Join(fmt.Sprintf("/run/user/%d", uid), "gdm", "Xauthority")}
	if home != "" {
		candidates = append([]string{filepath.Join(home, ".Xauthority")}, candidates...)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return append(out, "XAUTHORITY="+path)
		}
	}
	return out
}

func hasEnv(env []string, key string) bool {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) && len(kv) > len(prefix) {
			return true
		}
	}
	return false
}
