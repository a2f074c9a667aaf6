package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/xdg/backchannel/internal/clog"
	"github.com/xdg/backchannel/internal/request"
)

// ErrDaemonUnavailable is returned when the daemon socket cannot be reached.
var ErrDaemonUnavailable = errors.New("confirmation daemon is not running")

// Client talks to the daemon over its Unix socket.
type Client struct {
	socketPath string
}

// NewClient creates a client for the daemon listening on socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Relay sends req to the daemon and waits for its result. It opens a new
// connection per request. Canceling ctx closes the connection, which the
// daemon treats as the caller going away.
func (c *Client) Relay(ctx context.Context, req SocketRequest) (*request.Result, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrDaemonUnavailable, c.socketPath, err)
	}
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			clog.Warn("failed to close daemon connection: %v", err)
		}
	}()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	res, err := request.DecodeResult(conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	return res, nil
}
