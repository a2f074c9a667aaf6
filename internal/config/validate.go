package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// validLogLevels defines the allowed log level values.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validPrompts defines the allowed confirmation prompt backends.
var validPrompts = map[string]bool{
	"auto":     true,
	"terminal": true,
	"stdin":    true,
	"zenity":   true,
}

// Validate checks that all fields of a parsed Config contain valid values.
// Empty fields are valid; defaults fill them in.
//
// Returns nil if the config is valid, or an error with a clear message
// indicating which field is invalid.
func Validate(cfg *Config) error {
	d := cfg.Daemon
	if err := validatePositiveDuration(d.ConfirmationTimeout, "daemon.confirmation_timeout"); err != nil {
		return err
	}
	if err := validatePositiveDuration(d.ExecutionTimeout, "daemon.execution_timeout"); err != nil {
		return err
	}
	if d.OutputLimit < 0 {
		return fmt.Errorf("daemon.output_limit: must be non-negative, got %d", d.OutputLimit)
	}
	if d.StdinLimit < 0 {
		return fmt.Errorf("daemon.stdin_limit: must be non-negative, got %d", d.StdinLimit)
	}
	if d.Prompt != "" && !validPrompts[d.Prompt] {
		return fmt.Errorf("daemon.prompt: invalid value %q, must be one of: auto, terminal, stdin, zenity", d.Prompt)
	}
	if d.SSHListen != "" {
		if err := validateListenAddr(d.SSHListen, "daemon.ssh_listen"); err != nil {
			return err
		}
	}
	if d.StatusListen != "" {
		if err := validateListenAddr(d.StatusListen, "daemon.status_listen"); err != nil {
			return err
		}
	}

	r := cfg.Relay
	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("relay.port: invalid port number %d, must be 1-65535", r.Port)
	}
	if err := validatePositiveDuration(r.ConnectTimeout, "relay.connect_timeout"); err != nil {
		return err
	}
	if r.StdinLimit < 0 {
		return fmt.Errorf("relay.stdin_limit: must be non-negative, got %d", r.StdinLimit)
	}

	if cfg.Log.Level != "" && !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("log.level: invalid value %q, must be one of: debug, info, warn, error", cfg.Log.Level)
	}

	return nil
}

// validateListenAddr validates a listen address in the format ":port" or "host:port".
// Port must be in the range 1-65535.
func validateListenAddr(addr, field string) error {
	colonIdx := strings.LastIndex(addr, ":")
	if colonIdx == -1 {
		return fmt.Errorf("%s: invalid format %q, expected host:port or :port", field, addr)
	}

	portStr := addr[colonIdx+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("%s: invalid port %q in %q", field, portStr, addr)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s: invalid port number %d, must be 1-65535", field, port)
	}

	return nil
}

// validatePositiveDuration validates that a non-empty duration string parses
// and is greater than zero.
func validatePositiveDuration(d, field string) error {
	if d == "" {
		return nil
	}
	parsed, err := time.ParseDuration(d)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", field, d)
	}
	if parsed <= 0 {
		return fmt.Errorf("%s: must be positive, got %q", field, d)
	}
	return nil
}
