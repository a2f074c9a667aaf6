package relay

import (
	"errors"
	"fmt"
	"os/user"
	"strings"

	"github.com/xdg/backchannel/internal/config"
)

// Target is the home host account the relay connects to.
type Target struct {
	Host string
	Port int
	User string
}

// Addr returns host:port.
func (t Target) Addr() string {
	return joinHostPort(t.Host, t.Port)
}

// ResolveTarget picks the home host from cfg, falling back to the machine the
// current SSH session came from (first field of SSH_CLIENT). The user falls
// back to the local user name. getenv is usually os.Getenv.
func ResolveTarget(cfg config.RelayConfig, getenv func(string) string) (Target, error) {
	t := Target{Host: cfg.Host, Port: cfg.Port, User: cfg.User}

	if t.Host == "" {
		if fields := strings.Fields(getenv("SSH_CLIENT")); len(fields) > 0 {
			t.Host = fields[0]
		}
	}
	if t.Host == "" {
		return Target{}, errors.New("no home host: set relay.host or --host, or run inside an SSH session")
	}

	if t.Port == 0 {
		t.Port = config.DefaultSSHPort
	}

	if t.User == "" {
		u, err := user.Current()
		if err != nil {
			return Target{}, fmt.Errorf("determine user: %w", err)
		}
		t.User = u.Username
	}
	return t, nil
}
