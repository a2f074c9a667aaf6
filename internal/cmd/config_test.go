package cmd

import (
	"strings"
	"testing"
)

func TestConfigShow(t *testing.T) {
	cfgPath, socket := writeTestConfig(t, "")
	out, err := executeCommand(t, "", "--config", cfgPath, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	for _, want := range []string{"socket: " + socket, "confirmation_timeout: 2s", "stdin_limit: 1048576"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	out, err := executeCommand(t, "", "config", "path")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "/xdg/backchannel/config.yaml" {
		t.Errorf("config path = %q", out)
	}
}
