// Package relay is the remote-side half of backchannel: it sends one command
// to the home host over SSH, waits for the result frame and turns it into
// output and an exit code.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xdg/backchannel/internal/clog"
	"github.com/xdg/backchannel/internal/request"
	"github.com/xdg/backchannel/internal/term"
)

// Client relays commands through a Transport.
type Client struct {
	Transport Transport

	// Stdin is forwarded to the command when non-nil, up to StdinLimit bytes
	// (0 means unlimited).
	Stdin      io.Reader
	StdinLimit int

	Stdout io.Writer
	Stderr io.Writer
}

// Run relays command and returns the exit code the caller should exit with:
// the command's own code when it completed, otherwise a reserved code.
func (c *Client) Run(ctx context.Context, command string) int {
	if strings.TrimSpace(command) == "" {
		c.diag("no command given")
		return request.ExitExecutionFailed
	}

	stdin, err := c.readStdin()
	if err != nil {
		c.diag("%v", err)
		return request.ExitExecutionFailed
	}

	res, err := c.relay(ctx, command, stdin)
	if err != nil {
		clog.Warn("relay %q: %v", command, err)
		c.diag("%v", err)
		return request.ExitConnectivity
	}

	_, _ = c.Stdout.Write(res.Stdout)
	_, _ = c.Stderr.Write(res.Stderr)

	switch res.Outcome {
	case request.OutcomeCompleted:
		if res.StdoutTruncated {
			c.diag("stdout was truncated on the home host")
		}
		if res.StderrTruncated {
			c.diag("stderr was truncated on the home host")
		}
		if code := request.ExitCode(res); request.Reserved(code) {
			c.diag("command completed with exit status %d, which is also a reserved backchannel code", code)
		}
	case request.OutcomeDenied:
		c.diag("%s", orDefault(res.Diagnostic, "denied by the home host user"))
	case request.OutcomeTimedOut:
		c.diag("%s", orDefault(res.Diagnostic, "no response from the home host user within the confirmation window"))
	default:
		c.diag("%s", orDefault(res.Diagnostic, "execution failed on the home host"))
	}
	code := request.ExitCode(res)
	clog.Request(res.RequestID).Debug("relayed: %s, exit %d", res.Outcome, code)
	return code
}

// relay runs one session and decodes its frame. Any failure here means no
// trustworthy result exists.
func (c *Client) relay(ctx context.Context, command string, stdin []byte) (*request.Result, error) {
	var in io.Reader
	if stdin != nil {
		in = bytes.NewReader(stdin)
	}
	var out bytes.Buffer
	if err := c.Transport.Exec(ctx, command, in, &out, c.Stderr); err != nil {
		return nil, err
	}
	res, err := request.DecodeResult(&out)
	if err != nil {
		return nil, &ConnectivityError{Op: "read result", Err: fmt.Errorf("%w: %w", ErrMalformedResult, err)}
	}
	return res, nil
}

func (c *Client) readStdin() ([]byte, error) {
	if c.Stdin == nil {
		return nil, nil
	}
	if c.StdinLimit <= 0 {
		data, err := io.ReadAll(c.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(c.Stdin, int64(c.StdinLimit)+1))
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	if len(data) > c.StdinLimit {
		return nil, fmt.Errorf("stdin exceeds the %d byte limit", c.StdinLimit)
	}
	return data, nil
}

func (c *Client) diag(format string, args ...any) {
	term.Diag(c.Stderr, format, args...)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
