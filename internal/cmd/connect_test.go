package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xdg/backchannel/internal/approval"
	"github.com/xdg/backchannel/internal/clog"
	"github.com/xdg/backchannel/internal/config"
	"github.com/xdg/backchannel/internal/daemon"
	"github.com/xdg/backchannel/internal/executor"
	"github.com/xdg/backchannel/internal/prompt"
	"github.com/xdg/backchannel/internal/request"
)

// startTestDaemon serves a daemon on a temp socket and returns a config
// pointing at it.
func startTestDaemon(t *testing.T, confirmer prompt.Confirmer) *config.Config {
	t.Helper()
	clog.Discard()
	t.Cleanup(clog.Reset)

	cfg := config.Default()
	cfg.Daemon.Socket = filepath.Join(shortTempDir(t), "d.sock")
	cfg.Daemon.StdinLimit = 64

	gate := approval.NewGate(confirmer, time.Second)
	t.Cleanup(gate.Close)
	d := daemon.New(gate, executor.NewShellExecutor("/bin/sh", 4096), daemon.WithStdinLimit(cfg.Daemon.StdinLimit))
	srv := daemon.NewSocketServer(cfg.Daemon.Socket, d, cfg.Daemon.StdinLimit)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return cfg
}

func sshEnv(command string) func(string) string {
	env := map[string]string{
		"SSH_ORIGINAL_COMMAND": command,
		"SSH_CLIENT":           "10.9.8.7 51515 22",
	}
	return func(k string) string { return env[k] }
}

func TestRelayToDaemon_Approved(t *testing.T) {
	confirmer := prompt.NewMockConfirmer(true)
	cfg := startTestDaemon(t, confirmer)

	var stdout, stderr bytes.Buffer
	code := relayToDaemon(context.Background(), cfg, sshEnv("tr a-z A-Z"), strings.NewReader("abc"), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("relayToDaemon() = %d, stderr %q", code, stderr.String())
	}

	res, err := request.DecodeResult(&stdout)
	if err != nil {
		t.Fatalf("DecodeResult() error = %v", err)
	}
	if string(res.Stdout) != "ABC" {
		t.Errorf("Stdout = %q, want ABC", res.Stdout)
	}
	if calls := confirmer.Calls(); len(calls) != 1 || calls[0].Origin != "10.9.8.7" || calls[0].Command != "tr a-z A-Z" {
		t.Errorf("prompts = %+v", calls)
	}
}

func TestRelayToDaemon_Denied(t *testing.T) {
	cfg := startTestDaemon(t, prompt.NewMockConfirmer(false))

	var stdout, stderr bytes.Buffer
	code := relayToDaemon(context.Background(), cfg, sshEnv("rm -rf ~"), nil, &stdout, &stderr)
	if code != request.ExitDenied {
		t.Errorf("relayToDaemon() = %d, want %d", code, request.ExitDenied)
	}
	if !strings.Contains(stdout.String(), "backchannel-result ") {
		t.Errorf("stdout = %q, want a result frame", stdout.String())
	}
}

func TestRelayToDaemon_StdinOverLimit(t *testing.T) {
	confirmer := prompt.NewMockConfirmer(true)
	cfg := startTestDaemon(t, confirmer)

	var stdout, stderr bytes.Buffer
	code := relayToDaemon(context.Background(), cfg, sshEnv("cat"), strings.NewReader(strings.Repeat("x", 1000)), &stdout, &stderr)
	if code != request.ExitExecutionFailed {
		t.Errorf("relayToDaemon() = %d, want %d", code, request.ExitExecutionFailed)
	}
	if len(confirmer.Calls()) != 0 {
		t.Error("oversized request reached the prompt")
	}
}

func TestRelayToDaemon_Interactive(t *testing.T) {
	cfg := config.Default()
	var stdout, stderr bytes.Buffer
	code := relayToDaemon(context.Background(), cfg, sshEnv(""), nil, &stdout, &stderr)
	if code != request.ExitExecutionFailed {
		t.Errorf("relayToDaemon() = %d, want %d", code, request.ExitExecutionFailed)
	}
	if !strings.Contains(stderr.String(), "not permitted") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRelayToDaemon_DaemonNotRunning(t *testing.T) {
	clog.Discard()
	defer clog.Reset()

	cfg := config.Default()
	cfg.Daemon.Socket = filepath.Join(shortTempDir(t), "missing.sock")
	var stdout, stderr bytes.Buffer
	code := relayToDaemon(context.Background(), cfg, sshEnv("ls"), nil, &stdout, &stderr)
	if code != request.ExitConnectivity {
		t.Errorf("relayToDaemon() = %d, want %d", code, request.ExitConnectivity)
	}
	if !strings.Contains(stderr.String(), "not running") {
		t.Errorf("stderr = %q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout = %q, want no frame", stdout.String())
	}
}

func TestReadStdin(t *testing.T) {
	tests := []struct {
		name  string
		input string
		limit int
		want  string
	}{
		{"under limit", "abc", 10, "abc"},
		{"over limit keeps one extra byte", "abcdefgh", 4, "abcde"},
		{"unlimited", "abcdefgh", 0, "abcdefgh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readStdin(strings.NewReader(tt.input), tt.limit)
			if err != nil || string(got) != tt.want {
				t.Errorf("readStdin() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
	if got, err := readStdin(nil, 10); got != nil || err != nil {
		t.Errorf("readStdin(nil) = %q, %v", got, err)
	}
}
