package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Valid(t *testing.T) {
	data := []byte(`
daemon:
  confirmation_timeout: 45s
  prompt: zenity
  ssh_listen: 127.0.0.1:2222
relay:
  host: home.example.com
  port: 2200
  insecure_ignore_host_key: true
log:
  level: debug
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Daemon.ConfirmationWindow() != 45*time.Second {
		t.Errorf("ConfirmationWindow() = %v", cfg.Daemon.ConfirmationWindow())
	}
	if cfg.Daemon.Prompt != "zenity" || cfg.Daemon.SSHListen != "127.0.0.1:2222" {
		t.Errorf("daemon = %+v", cfg.Daemon)
	}
	if cfg.Relay.Host != "home.example.com" || cfg.Relay.Port != 2200 || !cfg.Relay.InsecureIgnoreHostKey {
		t.Errorf("relay = %+v", cfg.Relay)
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if cfg.Daemon.Socket != "" {
		t.Errorf("empty input should give zero config, got %+v", cfg)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"unknown field", "daemon:\n  sockett: /tmp/x\n", "sockett"},
		{"type mismatch", "relay:\n  port: twenty\n", "decode YAML"},
		{"malformed", "daemon: [\n", "decode YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"empty", Config{}, ""},
		{"defaults", *Default(), ""},
		{"bad confirmation timeout", Config{Daemon: DaemonConfig{ConfirmationTimeout: "soon"}}, "daemon.confirmation_timeout: invalid duration"},
		{"zero execution timeout", Config{Daemon: DaemonConfig{ExecutionTimeout: "0s"}}, "daemon.execution_timeout: must be positive"},
		{"negative output limit", Config{Daemon: DaemonConfig{OutputLimit: -1}}, "daemon.output_limit"},
		{"negative stdin limit", Config{Daemon: DaemonConfig{StdinLimit: -5}}, "daemon.stdin_limit"},
		{"bad prompt", Config{Daemon: DaemonConfig{Prompt: "carrier-pigeon"}}, "daemon.prompt"},
		{"ssh listen no port", Config{Daemon: DaemonConfig{SSHListen: "localhost"}}, "daemon.ssh_listen: invalid format"},
		{"status listen port range", Config{Daemon: DaemonConfig{StatusListen: ":70000"}}, "daemon.status_listen: invalid port number 70000"},
		{"relay port", Config{Relay: RelayConfig{Port: 65536}}, "relay.port"},
		{"relay connect timeout", Config{Relay: RelayConfig{ConnectTimeout: "-1s"}}, "relay.connect_timeout"},
		{"log level", Config{Log: LogConfig{Level: "verbose"}}, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingUsesDefaultsWithoutWriting(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "cfg"))

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Daemon.ConfirmationWindow() != 30*time.Second {
		t.Errorf("ConfirmationWindow() = %v, want 30s", cfg.Daemon.ConfirmationWindow())
	}
	if cfg.Relay.Identity != filepath.Join(home, ".ssh", "id_backchannel") {
		t.Errorf("Relay.Identity = %q, want expanded default", cfg.Relay.Identity)
	}
	if _, err := os.Stat(Path()); !os.IsNotExist(err) {
		t.Errorf("Load() must not create %s (stat err %v)", Path(), err)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "config.yaml")
	content := "daemon:\n  execution_timeout: 1m\n  socket: ~/run/bc.sock\nrelay:\n  user: alice\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Daemon.ExecutionLimit() != time.Minute {
		t.Errorf("ExecutionLimit() = %v, want 1m", cfg.Daemon.ExecutionLimit())
	}
	if cfg.Daemon.Socket != filepath.Join(home, "run", "bc.sock") {
		t.Errorf("Daemon.Socket = %q", cfg.Daemon.Socket)
	}
	if cfg.Daemon.OutputLimit != DefaultOutputLimit || cfg.Daemon.Prompt != "auto" {
		t.Errorf("defaults not applied: %+v", cfg.Daemon)
	}
	if cfg.Relay.User != "alice" || cfg.Relay.Port != DefaultSSHPort {
		t.Errorf("relay = %+v", cfg.Relay)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "log.level") {
		t.Errorf("Load() error = %v, want log.level validation error", err)
	}
}

func TestDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := Dir(); got != "/custom/config/backchannel/" {
		t.Errorf("Dir() = %q", got)
	}
	if got := Path(); got != "/custom/config/backchannel/config.yaml" {
		t.Errorf("Path() = %q", got)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/someone")
	if got := Dir(); got != "/home/someone/.config/backchannel/" {
		t.Errorf("Dir() default = %q", got)
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/someone")
	tests := map[string]string{
		"~":           "/home/someone",
		"~/x/y":       "/home/someone/x/y",
		"/abs/~/path": "/abs/~/path",
		"~other/x":    "~other/x",
		"":            "",
	}
	for in, want := range tests {
		if got := ExpandHome(in); got != want {
			t.Errorf("ExpandHome(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	data, err := Marshal(Default())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse(Marshal(Default())) error = %v", err)
	}
	if cfg.Daemon.Prompt != "auto" || cfg.Relay.Port != DefaultSSHPort {
		t.Errorf("round trip lost values: %+v", cfg)
	}
}
