// Package config provides configuration types for backchannel. A single
// YAML file holds the home-side daemon settings, the remote-side relay
// settings and logging.
package config

import "time"

// Config represents the backchannel configuration file.
// It is typically stored at ~/.config/backchannel/config.yaml.
type Config struct {
	Daemon DaemonConfig `yaml:"daemon,omitempty"`
	Relay  RelayConfig  `yaml:"relay,omitempty"`
	Log    LogConfig    `yaml:"log,omitempty"`
}

// DaemonConfig contains settings for the confirmation daemon on the home host.
type DaemonConfig struct {
	Socket              string `yaml:"socket,omitempty"`
	ConfirmationTimeout string `yaml:"confirmation_timeout,omitempty"`
	ExecutionTimeout    string `yaml:"execution_timeout,omitempty"`
	OutputLimit         int    `yaml:"output_limit,omitempty"`
	StdinLimit          int    `yaml:"stdin_limit,omitempty"`
	Shell               string `yaml:"shell,omitempty"`
	// Prompt selects the confirmation backend: auto, terminal, stdin or zenity.
	Prompt string `yaml:"prompt,omitempty"`

	// SSHListen enables the embedded SSH listener when non-empty.
	SSHListen      string `yaml:"ssh_listen,omitempty"`
	HostKey        string `yaml:"host_key,omitempty"`
	AuthorizedKeys string `yaml:"authorized_keys,omitempty"`

	// StatusListen enables the status and metrics HTTP server when non-empty.
	StatusListen string `yaml:"status_listen,omitempty"`
}

// RelayConfig contains settings for the relay client on the remote host.
type RelayConfig struct {
	Host                  string `yaml:"host,omitempty"`
	Port                  int    `yaml:"port,omitempty"`
	User                  string `yaml:"user,omitempty"`
	Identity              string `yaml:"identity,omitempty"`
	KnownHosts            string `yaml:"known_hosts,omitempty"`
	InsecureIgnoreHostKey bool   `yaml:"insecure_ignore_host_key,omitempty"`
	ConnectTimeout        string `yaml:"connect_timeout,omitempty"`
	StdinLimit            int    `yaml:"stdin_limit,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	File  string `yaml:"file,omitempty"`
	Level string `yaml:"level,omitempty"`
	Audit string `yaml:"audit,omitempty"`
}

// ConfirmationWindow returns the parsed confirmation timeout.
func (d DaemonConfig) ConfirmationWindow() time.Duration {
	return parseDuration(d.ConfirmationTimeout, defaultConfirmationTimeout)
}

// ExecutionLimit returns the parsed execution timeout.
func (d DaemonConfig) ExecutionLimit() time.Duration {
	return parseDuration(d.ExecutionTimeout, defaultExecutionTimeout)
}

// DialTimeout returns the parsed SSH connect timeout.
func (r RelayConfig) DialTimeout() time.Duration {
	return parseDuration(r.ConnectTimeout, defaultConnectTimeout)
}

// parseDuration returns fallback for empty or invalid values; Validate
// rejects invalid values before they get here.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
