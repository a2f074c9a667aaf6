package daemon

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gossh "golang.org/x/crypto/ssh"

	"github.com/xdg/backchannel/internal/prompt"
	"github.com/xdg/backchannel/internal/request"
)

func newSigner(t *testing.T) gossh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := gossh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

// startSSHServer serves td on a loopback port and returns its address and
// the signer a client must use.
func startSSHServer(t *testing.T, td *testDaemon) (string, gossh.Signer) {
	t.Helper()
	signer := newSigner(t)
	hostKey := filepath.Join(t.TempDir(), "host_ed25519")

	srv, err := NewSSHServer(td.Daemon, "127.0.0.1:0", hostKey, []gossh.PublicKey{signer.PublicKey()})
	if err != nil {
		t.Fatalf("NewSSHServer() error = %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return ln.Addr().String(), signer
}

func dialSSH(t *testing.T, addr string, signer gossh.Signer) *gossh.Client {
	t.Helper()
	client, err := gossh.Dial("tcp", addr, &gossh.ClientConfig{
		User:            "relay",
		Auth:            []gossh.AuthMethod{gossh.PublicKeys(signer)},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(), //nolint:gosec // test server
		Timeout:         5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func exitStatus(err error) int {
	var exitErr *gossh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus()
	}
	if err == nil {
		return 0
	}
	return -1
}

func TestSSHServer_ExecRelaysRequest(t *testing.T) {
	td := newTestDaemon(t, prompt.NewMockConfirmer(true), time.Second)
	td.exec.resp.ExitCode = 3
	addr, signer := startSSHServer(t, td)
	client := dialSSH(t, addr, signer)

	sess, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	var stdout bytes.Buffer
	sess.Stdout = &stdout
	sess.Stdin = strings.NewReader("payload")

	err = sess.Run("ls -la ~/Downloads")
	if got := exitStatus(err); got != 3 {
		t.Errorf("exit status = %d (err %v), want 3", got, err)
	}

	res, err := request.DecodeResult(&stdout)
	if err != nil {
		t.Fatalf("DecodeResult() error = %v", err)
	}
	if res.Outcome != request.OutcomeCompleted || string(res.Stdout) != "hi\n" {
		t.Errorf("result = %+v", res)
	}

	calls := td.exec.Calls()
	if len(calls) != 1 || calls[0].Command != "ls -la ~/Downloads" || string(calls[0].Stdin) != "payload" {
		t.Errorf("executor calls = %+v", calls)
	}
	if reqs := td.confirmer.Calls(); len(reqs) != 1 || reqs[0].Origin != "127.0.0.1" {
		t.Errorf("prompts = %+v, want one from 127.0.0.1", reqs)
	}
}

func TestSSHServer_DeniedExitCode(t *testing.T) {
	td := newTestDaemon(t, prompt.NewMockConfirmer(false), time.Second)
	addr, signer := startSSHServer(t, td)

	sess, err := dialSSH(t, addr, signer).NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	if got := exitStatus(sess.Run("rm -rf /tmp/x")); got != request.ExitDenied {
		t.Errorf("exit status = %d, want %d", got, request.ExitDenied)
	}
	if len(td.exec.Calls()) != 0 {
		t.Error("denied request was executed")
	}
}

func TestSSHServer_ShellRefused(t *testing.T) {
	td := newTestDaemon(t, prompt.NewMockConfirmer(), time.Second)
	addr, signer := startSSHServer(t, td)

	sess, err := dialSSH(t, addr, signer).NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	var stderr bytes.Buffer
	sess.Stderr = &stderr
	if err := sess.Shell(); err != nil {
		t.Fatalf("Shell() error = %v", err)
	}
	if got := exitStatus(sess.Wait()); got != request.ExitExecutionFailed {
		t.Errorf("exit status = %d, want %d", got, request.ExitExecutionFailed)
	}
	if !strings.Contains(stderr.String(), "not permitted") {
		t.Errorf("stderr = %q", stderr.String())
	}
	if len(td.confirmer.Calls()) != 0 {
		t.Error("interactive session reached the confirmation prompt")
	}
}

func TestSSHServer_PtyRefused(t *testing.T) {
	td := newTestDaemon(t, prompt.NewMockConfirmer(), time.Second)
	addr, signer := startSSHServer(t, td)

	sess, err := dialSSH(t, addr, signer).NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	if err := sess.RequestPty("xterm", 24, 80, gossh.TerminalModes{}); err == nil {
		t.Error("RequestPty() succeeded, want refusal")
	}
}

func TestSSHServer_ForwardingRefused(t *testing.T) {
	td := newTestDaemon(t, prompt.NewMockConfirmer(), time.Second)
	addr, signer := startSSHServer(t, td)
	client := dialSSH(t, addr, signer)

	if conn, err := client.Dial("tcp", addr); err == nil {
		conn.Close()
		t.Error("direct-tcpip succeeded, want refusal")
	}
	if ln, err := client.Listen("tcp", "127.0.0.1:0"); err == nil {
		ln.Close()
		t.Error("tcpip-forward succeeded, want refusal")
	}
}

func TestSSHServer_UnknownKeyRejected(t *testing.T) {
	td := newTestDaemon(t, prompt.NewMockConfirmer(), time.Second)
	addr, _ := startSSHServer(t, td)

	_, err := gossh.Dial("tcp", addr, &gossh.ClientConfig{
		User:            "relay",
		Auth:            []gossh.AuthMethod{gossh.PublicKeys(newSigner(t))},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(), //nolint:gosec // test server
		Timeout:         5 * time.Second,
	})
	if err == nil {
		t.Fatal("Dial() with an unknown key succeeded")
	}
}

func TestNewSSHServer_RequiresKeys(t *testing.T) {
	td := newTestDaemon(t, prompt.NewMockConfirmer(), time.Second)
	if _, err := NewSSHServer(td.Daemon, "127.0.0.1:0", filepath.Join(t.TempDir(), "k"), nil); err == nil {
		t.Error("NewSSHServer() without keys should fail")
	}
}

func TestReadLimited(t *testing.T) {
	data, err := readLimited(strings.NewReader("0123456789"), 4)
	if err != nil || string(data) != "01234" {
		t.Errorf("readLimited(limit 4) = %q, %v; want one byte over the limit", data, err)
	}
	data, err = readLimited(strings.NewReader("0123456789"), 0)
	if err != nil || string(data) != "0123456789" {
		t.Errorf("readLimited(unlimited) = %q, %v", data, err)
	}
}

func TestOriginOf(t *testing.T) {
	if got := originOf(&net.TCPAddr{IP: net.ParseIP("10.0.0.9"), Port: 5555}); got != "10.0.0.9" {
		t.Errorf("originOf(tcp) = %q", got)
	}
	if got := originOf(nil); got != "" {
		t.Errorf("originOf(nil) = %q", got)
	}
}
