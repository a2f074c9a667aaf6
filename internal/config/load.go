package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/xdg/backchannel/internal/clog"
)

// Load loads the configuration from path, or from Path() when path is empty.
// If the file doesn't exist, it returns Default(); the file is never created.
// Fields missing from the file take their default values.
// All paths containing ~ are expanded to the actual home directory.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}
	clog.Debug("config: loading from %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			clog.Debug("config: %s not found, using defaults", path)
			cfg := Default()
			expandPaths(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	applyDefaults(cfg)
	expandPaths(cfg)
	return cfg, nil
}

// expandPaths expands ~ to the home directory in all path fields.
func expandPaths(cfg *Config) {
	for _, p := range []*string{
		&cfg.Daemon.Socket,
		&cfg.Daemon.Shell,
		&cfg.Daemon.HostKey,
		&cfg.Daemon.AuthorizedKeys,
		&cfg.Relay.Identity,
		&cfg.Relay.KnownHosts,
		&cfg.Log.File,
		&cfg.Log.Audit,
	} {
		*p = ExpandHome(*p)
	}
}
