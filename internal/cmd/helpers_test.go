package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xdg/backchannel/internal/clog"
	"github.com/xdg/backchannel/internal/term"
)

// shortTempDir creates a temp directory short enough for Unix socket paths.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "bc")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// writeTestConfig writes a config file whose paths all live in temp
// directories and returns its path and the socket path.
func writeTestConfig(t *testing.T, extra string) (cfgPath, socket string) {
	t.Helper()
	dir := t.TempDir()
	socket = filepath.Join(shortTempDir(t), "d.sock")
	content := fmt.Sprintf(`daemon:
  socket: %s
  confirmation_timeout: 2s
  shell: /bin/sh
  authorized_keys: %s
log:
  file: %s
  audit: %s
`, socket, filepath.Join(dir, "authorized_keys"), filepath.Join(dir, "backchannel.log"), filepath.Join(dir, "audit.log"))
	content += extra

	cfgPath = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath, socket
}

// executeCommand runs the root command with args and returns everything it
// printed. Flag variables are reset afterwards.
func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	term.SetOutput(&out)
	term.SetErrOutput(&out)
	t.Cleanup(func() {
		term.Reset()
		clog.Reset()
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		configPath, debug, silent = "", false, false
		runFlags.host, runFlags.port, runFlags.user, runFlags.identity = "", 0, "", ""
		authorizeFlags.key, authorizeFlags.authorizedKeys, authorizeFlags.entryPoint, authorizeFlags.yes = "", "", "", false
	})

	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}
