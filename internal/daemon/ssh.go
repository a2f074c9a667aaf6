package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	gossh "golang.org/x/crypto/ssh"

	"github.com/xdg/backchannel/internal/clog"
	"github.com/xdg/backchannel/internal/request"
	"github.com/xdg/backchannel/internal/term"
)

// SSHServer is an embedded SSH listener that serves only the relay entry
// point. It enforces what a forced-command authorized_keys entry would:
// every exec session is a relay request, and shells, ptys and forwarding
// are refused.
type SSHServer struct {
	receiver   Receiver
	stdinLimit int
	allowed    []gossh.PublicKey
	srv        *ssh.Server
}

// NewSSHServer creates an SSH server on addr using the host key at
// hostKeyPath (generated if missing). Only clients presenting one of allowed
// may authenticate.
func NewSSHServer(d *Daemon, addr, hostKeyPath string, allowed []gossh.PublicKey) (*SSHServer, error) {
	if len(allowed) == 0 {
		return nil, errors.New("ssh listener: no authorized keys")
	}
	s := &SSHServer{receiver: d, stdinLimit: d.StdinLimit(), allowed: allowed}

	srv, err := wish.NewServer(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(hostKeyPath),
		wish.WithPublicKeyAuth(s.authorize),
		wish.WithMiddleware(s.relayMiddleware, logMiddleware),
		restrictSessions,
	)
	if err != nil {
		return nil, fmt.Errorf("ssh listener: %w", err)
	}
	s.srv = srv
	return s, nil
}

// restrictSessions refuses ptys and port forwarding. Agent and X11
// forwarding have no handlers and are never granted.
func restrictSessions(srv *ssh.Server) error {
	srv.PtyCallback = func(ssh.Context, ssh.Pty) bool { return false }
	srv.LocalPortForwardingCallback = func(ssh.Context, string, uint32) bool { return false }
	srv.ReversePortForwardingCallback = func(ssh.Context, string, uint32) bool { return false }
	return nil
}

func (s *SSHServer) authorize(ctx ssh.Context, key ssh.PublicKey) bool {
	presented := key.Marshal()
	for _, k := range s.allowed {
		if bytes.Equal(presented, k.Marshal()) {
			return true
		}
	}
	clog.Warn("ssh: rejected key %s for %s from %s", gossh.FingerprintSHA256(key), ctx.User(), ctx.RemoteAddr())
	return false
}

// logMiddleware logs the start and end of every session.
func logMiddleware(next ssh.Handler) ssh.Handler {
	return func(sess ssh.Session) {
		clog.Debug("ssh: session from %s user=%s", sess.RemoteAddr(), sess.User())
		next(sess)
		clog.Debug("ssh: session from %s closed", sess.RemoteAddr())
	}
}

// relayMiddleware terminates the chain: the raw exec command is the relay
// payload and the session's exit status is the mapped result code.
func (s *SSHServer) relayMiddleware(ssh.Handler) ssh.Handler {
	return func(sess ssh.Session) {
		command := sess.RawCommand()
		if command == "" {
			term.Diag(sess.Stderr(), "interactive sessions are not permitted")
			_ = sess.Exit(request.ExitExecutionFailed)
			return
		}

		stdin, err := readLimited(sess, s.stdinLimit)
		if err != nil {
			term.Diag(sess.Stderr(), "failed to read stdin: %v", err)
			_ = sess.Exit(request.ExitConnectivity)
			return
		}

		res := s.receiver.Receive(sess.Context(), Submission{
			Command: command,
			Origin:  originOf(sess.RemoteAddr()),
			Stdin:   stdin,
		})
		if err := request.EncodeResult(sess, res); err != nil {
			clog.Debug("ssh: write result: %v", err)
		}
		_ = sess.Exit(request.ExitCode(res))
	}
}

// readLimited reads r to EOF, keeping at most limit+1 bytes so an oversized
// payload is still detectable. A limit <= 0 keeps everything.
func readLimited(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	// Drain the rest so the client is not blocked writing.
	_, _ = io.Copy(io.Discard, r)
	return data, nil
}

func originOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// Serve accepts SSH connections on ln until Shutdown.
func (s *SSHServer) Serve(ln net.Listener) error {
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address.
func (s *SSHServer) ListenAndServe() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes the listener and waits for sessions to end or ctx to expire.
func (s *SSHServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
