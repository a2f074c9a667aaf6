package cmd

import (
	"fmt"
	"io"

	"github.com/xdg/backchannel/internal/request"
	"github.com/xdg/backchannel/internal/term"
)

// ExitCodeError carries a process exit code out of a command. main exits
// with Code without printing anything further.
type ExitCodeError struct {
	Code int
}

// NewExitCodeError creates an ExitCodeError.
func NewExitCodeError(code int) *ExitCodeError {
	return &ExitCodeError{Code: code}
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// exitWith returns nil for 0 and an ExitCodeError otherwise.
func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return NewExitCodeError(code)
}

// noResult reports a failure that happened before any request existed and
// returns the connectivity exit code, so callers can tell it apart from a
// result.
func noResult(w io.Writer, format string, args ...any) error {
	term.Diag(w, format, args...)
	return NewExitCodeError(request.ExitConnectivity)
}
