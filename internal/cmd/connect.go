package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xdg/backchannel/internal/clog"
	"github.com/xdg/backchannel/internal/config"
	"github.com/xdg/backchannel/internal/daemon"
	"github.com/xdg/backchannel/internal/request"
	"github.com/xdg/backchannel/internal/term"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Forced-command entry point (internal)",
	Long: `Relay the command of the current SSH session to the confirmation daemon.

sshd runs this command for the key installed by 'backchannel authorize'. The
requested command is read from SSH_ORIGINAL_COMMAND and stdin is forwarded.
The result frame is written to stdout and the exit status is the relayed
command's own, or one of the reserved codes 120-123.`,
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return noResult(cmd.ErrOrStderr(), "%v", err)
		}
		if err := setupLogging(cfg, false); err != nil {
			return noResult(cmd.ErrOrStderr(), "%v", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer stop()

		return exitWith(relayToDaemon(ctx, cfg, os.Getenv, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()))
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

// relayToDaemon forwards the SSH session's command to the local daemon and
// writes the result frame to stdout. It returns the exit code for the session.
func relayToDaemon(ctx context.Context, cfg *config.Config, getenv func(string) string, stdin io.Reader, stdout, stderr io.Writer) int {
	command := getenv("SSH_ORIGINAL_COMMAND")
	if command == "" {
		term.Diag(stderr, "interactive sessions are not permitted")
		return request.ExitExecutionFailed
	}

	var origin string
	if fields := strings.Fields(getenv("SSH_CLIENT")); len(fields) > 0 {
		origin = fields[0]
	}

	data, err := readStdin(stdin, cfg.Daemon.StdinLimit)
	if err != nil {
		term.Diag(stderr, "read stdin: %v", err)
		return request.ExitConnectivity
	}

	res, err := daemon.NewClient(cfg.Daemon.Socket).Relay(ctx, daemon.SocketRequest{
		Command: command,
		Origin:  origin,
		Stdin:   data,
	})
	if err != nil {
		clog.Warn("connect: %v", err)
		if errors.Is(err, daemon.ErrDaemonUnavailable) {
			term.Diag(stderr, "the confirmation daemon is not running on the home host")
		} else {
			term.Diag(stderr, "%v", err)
		}
		return request.ExitConnectivity
	}

	if err := request.EncodeResult(stdout, res); err != nil {
		clog.Warn("connect: write result: %v", err)
		return request.ExitConnectivity
	}
	return request.ExitCode(res)
}

// readStdin reads r to EOF keeping at most limit+1 bytes, so the daemon can
// still tell that the payload was too large. A limit <= 0 keeps everything.
func readStdin(r io.Reader, limit int) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	_, _ = io.Copy(io.Discard, r)
	return data, nil
}
