package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/xdg/backchannel/internal/clog"
	"github.com/xdg/backchannel/internal/config"
)

// Transport opens one session to the home host, runs payload as the exec
// request and streams the session's output. A non-nil error means the
// session could not be established or broke; a remote exit status is not an
// error.
type Transport interface {
	Exec(ctx context.Context, payload string, stdin io.Reader, stdout, stderr io.Writer) error
}

// SSHTransport is a Transport over golang.org/x/crypto/ssh.
type SSHTransport struct {
	Target          Target
	Signers         []ssh.Signer
	HostKeyCallback ssh.HostKeyCallback
	Timeout         time.Duration
}

// NewSSHTransport builds a transport for target from the relay settings:
// identity file (plus any ssh-agent keys), known_hosts verification and
// connect timeout.
func NewSSHTransport(cfg config.RelayConfig, target Target) (*SSHTransport, error) {
	signers, err := LoadSigners(cfg.Identity)
	if err != nil {
		return nil, &ConnectivityError{Op: "load identity", Err: err}
	}
	callback, err := HostKeyCallback(cfg)
	if err != nil {
		return nil, &ConnectivityError{Op: "load known hosts", Err: err}
	}
	return &SSHTransport{
		Target:          target,
		Signers:         signers,
		HostKeyCallback: callback,
		Timeout:         cfg.DialTimeout(),
	}, nil
}

// HostKeyCallback verifies against cfg.KnownHosts unless host key checking is
// explicitly disabled.
func HostKeyCallback(cfg config.RelayConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		clog.Warn("host key checking disabled (relay.insecure_ignore_host_key)")
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // opt-in via config
	}
	if cfg.KnownHosts == "" {
		return nil, errors.New("relay.known_hosts is not set")
	}
	callback, err := knownhosts.New(cfg.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("%w (connect once with ssh to record the home host key)", err)
	}
	return callback, nil
}

// LoadSigners returns the ssh-agent's keys (when $SSH_AUTH_SOCK is set)
// followed by the key in keyPath. A missing key file is skipped as long as
// the agent supplied something.
func LoadSigners(keyPath string) ([]ssh.Signer, error) {
	var signers []ssh.Signer

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			agentSigners, err := agent.NewClient(conn).Signers()
			if err == nil {
				signers = append(signers, agentSigners...)
			} else {
				clog.Debug("ssh-agent: %v", err)
			}
		}
	}

	if keyPath != "" {
		data, err := os.ReadFile(keyPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			clog.Debug("identity %s not found", keyPath)
		case err != nil:
			return nil, fmt.Errorf("read key %q: %w", keyPath, err)
		default:
			signer, err := ssh.ParsePrivateKey(data)
			if err != nil {
				var passErr *ssh.PassphraseMissingError
				if !errors.As(err, &passErr) {
					return nil, fmt.Errorf("parse key %q: %w", keyPath, err)
				}
				if len(signers) == 0 {
					return nil, fmt.Errorf("key %q is passphrase protected; add it to ssh-agent", keyPath)
				}
				clog.Debug("identity %s is passphrase protected, using agent keys only", keyPath)
			} else {
				signers = append(signers, signer)
			}
		}
	}

	if len(signers) == 0 {
		return nil, fmt.Errorf("no SSH private key found (tried %q and ssh-agent)", keyPath)
	}
	return signers, nil
}

// Exec implements Transport.
func (t *SSHTransport) Exec(ctx context.Context, payload string, stdin io.Reader, stdout, stderr io.Writer) error {
	client, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	sess, err := client.NewSession()
	if err != nil {
		return &ConnectivityError{Op: "open session", Err: err}
	}
	defer sess.Close()

	sess.Stdin = stdin
	sess.Stdout = stdout
	sess.Stderr = stderr

	err = sess.Run(payload)
	if ctx.Err() != nil {
		return &ConnectivityError{Op: "session", Err: ctx.Err()}
	}
	var exitErr *ssh.ExitError
	if err == nil || errors.As(err, &exitErr) {
		return nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		// Let the frame decide; the session closed cleanly without a status.
		return nil
	}
	return &ConnectivityError{Op: "session", Err: err}
}

func (t *SSHTransport) dial(ctx context.Context) (*ssh.Client, error) {
	addr := t.Target.Addr()
	dialer := &net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectivityError{Op: "dial " + addr, Err: err}
	}

	clientConfig := &ssh.ClientConfig{
		User:            t.Target.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(t.Signers...)},
		HostKeyCallback: t.HostKeyCallback,
		Timeout:         t.Timeout,
	}
	if t.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(t.Timeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return nil, &ConnectivityError{Op: "ssh handshake with " + addr, Err: err}
	}
	_ = conn.SetDeadline(time.Time{})
	clog.Debug("connected to %s as %s", addr, t.Target.User)
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
