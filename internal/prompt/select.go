package prompt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"golang.org/x/term"
)

// Backend names accepted by Select.
const (
	BackendAuto     = "auto"
	BackendTerminal = "terminal"
	BackendStdin    = "stdin"
	BackendZenity   = "zenity"
)

// ErrNoBackend is returned when no prompt backend can reach the user.
var ErrNoBackend = errors.New("no prompt backend available: run the daemon in a terminal or install zenity")

// Select returns the Confirmer for the named backend.
// Auto prefers a desktop dialog when a display is available, then the
// terminal the daemon runs in.
func Select(backend string, in *os.File, out io.Writer) (Confirmer, error) {
	switch backend {
	case BackendStdin:
		return NewStdinConfirmer(in, out), nil
	case BackendTerminal:
		if !term.IsTerminal(int(in.Fd())) {
			return nil, fmt.Errorf("prompt backend %q: stdin is not a terminal", backend)
		}
		return NewTerminalConfirmer(in, out), nil
	case BackendZenity:
		path, err := exec.LookPath("zenity")
		if err != nil {
			return nil, fmt.Errorf("prompt backend %q: %w", backend, err)
		}
		return NewZenityConfirmer(path), nil
	case BackendAuto, "":
		if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
			if path, err := exec.LookPath("zenity"); err == nil {
				return NewZenityConfirmer(path), nil
			}
		}
		if term.IsTerminal(int(in.Fd())) {
			return NewTerminalConfirmer(in, out), nil
		}
		return nil, ErrNoBackend
	default:
		return nil, fmt.Errorf("unknown prompt backend %q", backend)
	}
}
