// Package term is backchannel's user-facing output: command results and
// listings on stdout, and prefixed diagnostics on stderr. Operational
// logging lives in internal/clog.
//
// Print output is suppressed by --silent. Diagnostics and errors never are:
// on the relay path they are the only explanation of a reserved exit code.
package term

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// DiagPrefix starts every diagnostic line.
const DiagPrefix = "backchannel: "

var (
	mu     sync.Mutex
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	silent bool
)

// SetSilent enables or disables silent mode.
func SetSilent(s bool) {
	mu.Lock()
	defer mu.Unlock()
	silent = s
}

// SetOutput sets the stdout writer; nil restores os.Stdout.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	stdout = orDefault(w, os.Stdout)
}

// SetErrOutput sets the stderr writer; nil restores os.Stderr.
func SetErrOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	stderr = orDefault(w, os.Stderr)
}

// Reset restores the default writers and clears silent mode.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	stdout = os.Stdout
	stderr = os.Stderr
	silent = false
}

// Print writes to stdout unless silent.
func Print(a ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !silent {
		_, _ = fmt.Fprint(stdout, a...)
	}
}

// Printf writes to stdout unless silent.
func Printf(format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !silent {
		_, _ = fmt.Fprintf(stdout, format, a...)
	}
}

// Println writes to stdout unless silent.
func Println(a ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !silent {
		_, _ = fmt.Fprintln(stdout, a...)
	}
}

// Error writes "Error: <msg>" to stderr.
func Error(format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	_, _ = fmt.Fprintf(stderr, "Error: %s\n", fmt.Sprintf(format, a...))
}

// Diag writes one DiagPrefix line to w, or to the package stderr when w is
// nil. Sessions pass their own stream so the line reaches the remote caller.
func Diag(w io.Writer, format string, a ...any) {
	line := DiagPrefix + fmt.Sprintf(format, a...) + "\n"
	if w != nil {
		_, _ = io.WriteString(w, line)
		return
	}
	mu.Lock()
	defer mu.Unlock()
	_, _ = io.WriteString(stderr, line)
}

func orDefault(w, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}
