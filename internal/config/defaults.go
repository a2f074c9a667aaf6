package config

import "time"

const (
	defaultConfirmationTimeout = 30 * time.Second
	defaultExecutionTimeout    = 5 * time.Minute
	defaultConnectTimeout      = 10 * time.Second

	// DefaultOutputLimit caps captured stdout and stderr, each.
	DefaultOutputLimit = 1 << 20
	// DefaultStdinLimit caps forwarded stdin.
	DefaultStdinLimit = 1 << 20
	// DefaultSSHPort is the home host's SSH port.
	DefaultSSHPort = 22
)

// Default returns a Config with all defaults populated. The SSH listener and
// status server are off unless configured.
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			Socket:              "~/.local/share/backchannel/daemon.sock",
			ConfirmationTimeout: defaultConfirmationTimeout.String(),
			ExecutionTimeout:    defaultExecutionTimeout.String(),
			OutputLimit:         DefaultOutputLimit,
			StdinLimit:          DefaultStdinLimit,
			Prompt:              "auto",
			HostKey:             "~/.local/share/backchannel/ssh_host_ed25519_key",
			AuthorizedKeys:      "~/.ssh/authorized_keys",
		},
		Relay: RelayConfig{
			Port:           DefaultSSHPort,
			Identity:       "~/.ssh/id_backchannel",
			KnownHosts:     "~/.ssh/known_hosts",
			ConnectTimeout: defaultConnectTimeout.String(),
			StdinLimit:     DefaultStdinLimit,
		},
		Log: LogConfig{
			File:  "~/.local/state/backchannel/backchannel.log",
			Level: "info",
			Audit: "~/.local/state/backchannel/audit.log",
		},
	}
}

// applyDefaults fills every zero-valued field of cfg from Default().
func applyDefaults(cfg *Config) {
	def := Default()

	setString(&cfg.Daemon.Socket, def.Daemon.Socket)
	setString(&cfg.Daemon.ConfirmationTimeout, def.Daemon.ConfirmationTimeout)
	setString(&cfg.Daemon.ExecutionTimeout, def.Daemon.ExecutionTimeout)
	setInt(&cfg.Daemon.OutputLimit, def.Daemon.OutputLimit)
	setInt(&cfg.Daemon.StdinLimit, def.Daemon.StdinLimit)
	setString(&cfg.Daemon.Prompt, def.Daemon.Prompt)
	setString(&cfg.Daemon.HostKey, def.Daemon.HostKey)
	setString(&cfg.Daemon.AuthorizedKeys, def.Daemon.AuthorizedKeys)

	setInt(&cfg.Relay.Port, def.Relay.Port)
	setString(&cfg.Relay.Identity, def.Relay.Identity)
	setString(&cfg.Relay.KnownHosts, def.Relay.KnownHosts)
	setString(&cfg.Relay.ConnectTimeout, def.Relay.ConnectTimeout)
	setInt(&cfg.Relay.StdinLimit, def.Relay.StdinLimit)

	setString(&cfg.Log.File, def.Log.File)
	setString(&cfg.Log.Level, def.Log.Level)
	setString(&cfg.Log.Audit, def.Log.Audit)
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}
