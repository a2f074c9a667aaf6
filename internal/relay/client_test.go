package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/xdg/backchannel/internal/clog"
	"github.com/xdg/backchannel/internal/request"
)

// fakeTransport answers every Exec with a scripted session.
type fakeTransport struct {
	result  *request.Result // encoded as the session's stdout when set
	stdout  string          // written verbatim before the frame
	stderr  string
	err     error
	payload string
	stdin   []byte
}

func (f *fakeTransport) Exec(_ context.Context, payload string, stdin io.Reader, stdout, stderr io.Writer) error {
	f.payload = payload
	if stdin != nil {
		f.stdin, _ = io.ReadAll(stdin)
	}
	if f.err != nil {
		return f.err
	}
	_, _ = io.WriteString(stdout, f.stdout)
	_, _ = io.WriteString(stderr, f.stderr)
	if f.result != nil {
		return request.EncodeResult(stdout, f.result)
	}
	return nil
}

func runClient(t *testing.T, tr *fakeTransport, stdin io.Reader, command string) (code int, stdout, stderr string) {
	t.Helper()
	clog.Discard()
	t.Cleanup(clog.Reset)

	var out, errOut bytes.Buffer
	c := &Client{Transport: tr, Stdin: stdin, StdinLimit: 16, Stdout: &out, Stderr: &errOut}
	code = c.Run(context.Background(), command)
	return code, out.String(), errOut.String()
}

func TestClientRun_Outcomes(t *testing.T) {
	truncated := request.Completed("r1", 0, []byte("partial"), nil)
	truncated.StdoutTruncated = true

	tests := []struct {
		name       string
		transport  *fakeTransport
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{
			name:       "completed",
			transport:  &fakeTransport{result: request.Completed("r1", 0, []byte("hi\n"), []byte("warn\n"))},
			wantCode:   0,
			wantStdout: "hi\n",
			wantStderr: "warn\n",
		},
		{
			name:       "completed nonzero",
			transport:  &fakeTransport{result: request.Completed("r1", 7, nil, nil)},
			wantCode:   7,
			wantStderr: "",
		},
		{
			name:       "completed with reserved code",
			transport:  &fakeTransport{result: request.Completed("r1", request.ExitDenied, nil, nil)},
			wantCode:   request.ExitDenied,
			wantStderr: "exit status 120, which is also a reserved",
		},
		{
			name:       "completed truncated",
			transport:  &fakeTransport{result: truncated},
			wantCode:   0,
			wantStdout: "partial",
			wantStderr: "stdout was truncated",
		},
		{
			name:       "denied",
			transport:  &fakeTransport{result: request.Denied("r1")},
			wantCode:   request.ExitDenied,
			wantStderr: "denied by the home host user",
		},
		{
			name:       "timed out",
			transport:  &fakeTransport{result: request.TimedOut("r1", "")},
			wantCode:   request.ExitTimedOut,
			wantStderr: "confirmation window",
		},
		{
			name:       "execution failed",
			transport:  &fakeTransport{result: request.Failed("r1", "command not found (shell exit status 127)")},
			wantCode:   request.ExitExecutionFailed,
			wantStderr: "command not found",
		},
		{
			name:       "motd before frame",
			transport:  &fakeTransport{stdout: "Welcome home\n", result: request.Completed("r1", 0, []byte("ok"), nil)},
			wantCode:   0,
			wantStdout: "ok",
		},
		{
			name:       "transport failure",
			transport:  &fakeTransport{err: &ConnectivityError{Op: "dial home:22", Err: errors.New("connection refused")}},
			wantCode:   request.ExitConnectivity,
			wantStderr: "connection refused",
		},
		{
			name:       "no frame",
			transport:  &fakeTransport{stderr: "backchannel: daemon not running\n"},
			wantCode:   request.ExitConnectivity,
			wantStderr: "daemon not running",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := runClient(t, tt.transport, nil, "ls -la")
			if code != tt.wantCode {
				t.Errorf("Run() = %d, want %d (stderr %q)", code, tt.wantCode, stderr)
			}
			if stdout != tt.wantStdout {
				t.Errorf("stdout = %q, want %q", stdout, tt.wantStdout)
			}
			if !strings.Contains(stderr, tt.wantStderr) {
				t.Errorf("stderr = %q, want containing %q", stderr, tt.wantStderr)
			}
			if tt.transport.payload != "ls -la" {
				t.Errorf("payload = %q, want verbatim command", tt.transport.payload)
			}
		})
	}
}

func TestClientRun_MalformedFrameIsConnectivity(t *testing.T) {
	var out, errOut bytes.Buffer
	c := &Client{Transport: &fakeTransport{stdout: "backchannel-result {garbage\n"}, Stdout: &out, Stderr: &errOut}
	clog.Discard()
	defer clog.Reset()

	res, err := c.relay(context.Background(), "true", nil)
	if res != nil || !errors.Is(err, ErrMalformedResult) || !errors.Is(err, ErrConnectivity) {
		t.Errorf("relay() = %v, %v; want malformed connectivity error", res, err)
	}
}

func TestClientRun_ForwardsStdin(t *testing.T) {
	tr := &fakeTransport{result: request.Completed("r1", 0, nil, nil)}
	code, _, _ := runClient(t, tr, strings.NewReader("clipboard"), "xclip -sel clip")
	if code != 0 {
		t.Fatalf("Run() = %d", code)
	}
	if string(tr.stdin) != "clipboard" {
		t.Errorf("forwarded stdin = %q", tr.stdin)
	}
}

func TestClientRun_StdinOverLimit(t *testing.T) {
	tr := &fakeTransport{result: request.Completed("r1", 0, nil, nil)}
	code, _, stderr := runClient(t, tr, strings.NewReader(strings.Repeat("x", 17)), "cat")
	if code != request.ExitExecutionFailed {
		t.Errorf("Run() = %d, want %d", code, request.ExitExecutionFailed)
	}
	if !strings.Contains(stderr, "16 byte limit") {
		t.Errorf("stderr = %q", stderr)
	}
	if tr.payload != "" {
		t.Error("oversized stdin must not reach the home host")
	}
}

func TestClientRun_EmptyCommand(t *testing.T) {
	tr := &fakeTransport{}
	code, _, _ := runClient(t, tr, nil, "  ")
	if code != request.ExitExecutionFailed || tr.payload != "" {
		t.Errorf("Run(empty) = %d, payload %q", code, tr.payload)
	}
}

func TestConnectivityError(t *testing.T) {
	inner := errors.New("no route to host")
	err := error(&ConnectivityError{Op: "dial", Err: inner})
	if !errors.Is(err, ErrConnectivity) || !errors.Is(err, inner) {
		t.Errorf("errors.Is failed for %v", err)
	}
	if err.Error() != "dial: no route to host" {
		t.Errorf("Error() = %q", err.Error())
	}
}
