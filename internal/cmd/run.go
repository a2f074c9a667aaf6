package cmd

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	goterm "golang.org/x/term"

	"github.com/xdg/backchannel/internal/config"
	"github.com/xdg/backchannel/internal/relay"
)

var runFlags struct {
	host     string
	port     int
	user     string
	identity string
}

var runCmd = &cobra.Command{
	Use:   "run [flags] [--] <command> [args...]",
	Short: "Run a command on the home host after confirmation",
	Long: `Send a command to the home host and wait for the user there to approve it.

The words are joined with spaces and passed to the home host's shell verbatim,
so quote anything the remote shell should not expand. Stdin is forwarded when
it is not a terminal.

The exit status is the command's own when it ran. Otherwise:
  120  denied by the home host user
  121  no answer within the confirmation window
  122  the command could not be run
  123  the home host could not be reached`,
	Example: `  backchannel run -- open https://example.com
  git diff | backchannel run xclip -selection clipboard`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return noResult(cmd.ErrOrStderr(), "%v", err)
		}
		if err := setupLogging(cfg, false); err != nil {
			return noResult(cmd.ErrOrStderr(), "%v", err)
		}
		applyRunFlags(&cfg.Relay)

		target, err := relay.ResolveTarget(cfg.Relay, os.Getenv)
		if err != nil {
			return noResult(cmd.ErrOrStderr(), "%v", err)
		}
		transport, err := relay.NewSSHTransport(cfg.Relay, target)
		if err != nil {
			if errors.Is(err, relay.ErrConnectivity) {
				return noResult(cmd.ErrOrStderr(), "%v", err)
			}
			return err
		}

		client := &relay.Client{
			Transport:  transport,
			StdinLimit: cfg.Relay.StdinLimit,
			Stdout:     cmd.OutOrStdout(),
			Stderr:     cmd.ErrOrStderr(),
		}
		if forwardStdin(cmd.InOrStdin()) {
			client.Stdin = cmd.InOrStdin()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return exitWith(client.Run(ctx, strings.Join(args, " ")))
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.host, "host", "", "home host (default: relay.host or the SSH_CLIENT address)")
	runCmd.Flags().IntVarP(&runFlags.port, "port", "p", 0, "home host SSH port")
	runCmd.Flags().StringVarP(&runFlags.user, "user", "u", "", "home host user")
	runCmd.Flags().StringVarP(&runFlags.identity, "identity", "i", "", "private key for the restricted account")
	// Everything after the first word belongs to the command.
	runCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(runCmd)
}

func applyRunFlags(rc *config.RelayConfig) {
	if runFlags.host != "" {
		rc.Host = runFlags.host
	}
	if runFlags.port != 0 {
		rc.Port = runFlags.port
	}
	if runFlags.user != "" {
		rc.User = runFlags.user
	}
	if runFlags.identity != "" {
		rc.Identity = config.ExpandHome(runFlags.identity)
	}
}

// forwardStdin reports whether in carries piped data. An interactive
// terminal is never forwarded.
func forwardStdin(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return in != nil
	}
	return !goterm.IsTerminal(int(f.Fd()))
}
