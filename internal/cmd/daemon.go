package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xdg/backchannel/internal/approval"
	"github.com/xdg/backchannel/internal/audit"
	"github.com/xdg/backchannel/internal/authkeys"
	"github.com/xdg/backchannel/internal/clog"
	"github.com/xdg/backchannel/internal/config"
	"github.com/xdg/backchannel/internal/daemon"
	"github.com/xdg/backchannel/internal/executor"
	"github.com/xdg/backchannel/internal/prompt"
	"github.com/xdg/backchannel/internal/term"
)

// shutdownTimeout bounds graceful shutdown of the network listeners.
const shutdownTimeout = 5 * time.Second

var daemonBackground bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the confirmation daemon on the home host",
	Long: `Manage the confirmation daemon that runs on the home host.

The daemon receives relayed commands on a Unix socket (and optionally on its
own SSH listener), asks the user to confirm each one and runs approved
commands with the user's shell.`,
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	Long: `Run the confirmation daemon in the foreground until interrupted.

With the terminal prompt, confirmations are asked in this terminal.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	Long: `Start the confirmation daemon as a background process.

A background daemon has no terminal, so it confirms with a desktop dialog
(zenity). Use 'daemon run' to confirm in a terminal instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		childArgs := []string{"daemon", "run", "--background"}
		if configPath != "" {
			childArgs = append(childArgs, "--config", configPath)
		}
		if debug {
			childArgs = append(childArgs, "--debug")
		}

		state, err := daemon.Spawn(childArgs)
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			term.Printf("Daemon is already running (PID %d)\n", state.PID)
			return nil
		}
		if err != nil {
			return err
		}
		term.Printf("Daemon started (PID %d)\n", state.PID)
		term.Printf("Socket: %s\n", state.SocketPath)
		return nil
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := daemon.Terminate()
		if err != nil {
			return fmt.Errorf("failed to stop daemon: %w", err)
		}
		if state == nil {
			term.Println("Daemon is not running")
			return nil
		}
		term.Printf("Daemon stopped (PID %d)\n", state.PID)
		return nil
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := daemon.LoadState()
		if err != nil {
			return fmt.Errorf("failed to read daemon state: %w", err)
		}
		switch {
		case state == nil:
			term.Println("Status: not running")
			return nil
		case !daemon.IsRunning(state):
			term.Println("Status: not running (stale state)")
			return nil
		}

		term.Println("Status: running")
		term.Printf("PID: %d\n", state.PID)
		term.Printf("Uptime: %s\n", time.Since(state.StartedAt).Round(time.Second))
		term.Printf("Socket: %s\n", state.SocketPath)
		if state.SSHListen != "" {
			term.Printf("SSH listener: %s\n", state.SSHListen)
		}
		if state.StatusListen != "" {
			term.Printf("Status server: http://%s/requests\n", state.StatusListen)
		}
		return nil
	},
}

func init() {
	daemonRunCmd.Flags().BoolVar(&daemonBackground, "background", false, "run without a terminal (set by 'daemon start')")
	_ = daemonRunCmd.Flags().MarkHidden("background")

	daemonCmd.AddCommand(daemonRunCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := setupLogging(cfg, daemonBackground); err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer clog.Close()

	if err := daemon.CleanupStaleState(); err != nil {
		clog.Warn("failed to clean up stale state: %v", err)
	}
	if state, _ := daemon.LoadState(); daemon.IsRunning(state) {
		return fmt.Errorf("daemon is already running (PID %d)", state.PID)
	}

	confirmer, err := prompt.Select(cfg.Daemon.Prompt, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defer func() {
		if err := daemon.RemoveState(); err != nil {
			clog.Warn("%v", err)
		}
	}()
	return serveDaemon(ctx, cfg, confirmer, func(state *daemon.State) {
		if err := daemon.SaveState(state); err != nil {
			clog.Warn("failed to save daemon state: %v", err)
		}
		term.Printf("Listening on %s\n", state.SocketPath)
	})
}

// serveDaemon wires the gate, executor and listeners from cfg, calls ready
// once everything listens and blocks until ctx is done.
func serveDaemon(ctx context.Context, cfg *config.Config, confirmer prompt.Confirmer, ready func(*daemon.State)) error {
	gate := approval.NewGate(confirmer, cfg.Daemon.ConfirmationWindow())
	defer gate.Close()

	auditFile, err := clog.OpenLogFile(cfg.Log.Audit)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer auditFile.Close()

	metrics := daemon.NewMetrics(gate.Len)
	d := daemon.New(gate,
		executor.NewShellExecutor(cfg.Daemon.Shell, cfg.Daemon.OutputLimit),
		daemon.WithExecutionTimeout(cfg.Daemon.ExecutionLimit()),
		daemon.WithStdinLimit(cfg.Daemon.StdinLimit),
		daemon.WithAudit(audit.NewLogger(auditFile)),
		daemon.WithMetrics(metrics),
	)

	sock := daemon.NewSocketServer(cfg.Daemon.Socket, d, cfg.Daemon.StdinLimit)
	if err := sock.Start(); err != nil {
		return fmt.Errorf("failed to start socket server: %w", err)
	}
	defer func() {
		if err := sock.Stop(); err != nil {
			clog.Warn("socket server: %v", err)
		}
	}()
	state := &daemon.State{PID: os.Getpid(), SocketPath: sock.SocketPath(), StartedAt: time.Now()}

	if cfg.Daemon.SSHListen != "" {
		addr, shutdown, err := startSSHListener(cfg, d)
		if err != nil {
			return err
		}
		defer shutdown()
		state.SSHListen = addr
	}

	if cfg.Daemon.StatusListen != "" {
		ln, err := net.Listen("tcp", cfg.Daemon.StatusListen)
		if err != nil {
			return fmt.Errorf("failed to listen for status on %s: %w", cfg.Daemon.StatusListen, err)
		}
		status := daemon.NewStatusServer(d, metrics)
		go func() {
			if err := status.Serve(ln); err != nil {
				clog.Error("status server: %v", err)
			}
		}()
		defer shutdownWithTimeout("status server", status.Shutdown)
		state.StatusListen = ln.Addr().String()
		clog.Info("status server listening on %s", state.StatusListen)
	}

	clog.Info("daemon started (pid %d), socket %s, confirmation window %s",
		state.PID, state.SocketPath, gate.Timeout())
	if ready != nil {
		ready(state)
	}

	<-ctx.Done()
	clog.Info("daemon shutting down")
	// Resolve undecided requests before the listeners drain their sessions.
	gate.Close()
	return nil
}

func startSSHListener(cfg *config.Config, d *daemon.Daemon) (string, func(), error) {
	keys, err := authkeys.LoadAllowed(cfg.Daemon.AuthorizedKeys)
	if err != nil {
		return "", nil, fmt.Errorf("ssh listener: %w", err)
	}
	srv, err := daemon.NewSSHServer(d, cfg.Daemon.SSHListen, cfg.Daemon.HostKey, keys)
	if err != nil {
		return "", nil, err
	}
	ln, err := net.Listen("tcp", cfg.Daemon.SSHListen)
	if err != nil {
		return "", nil, fmt.Errorf("ssh listener: %w", err)
	}
	go func() {
		if err := srv.Serve(ln); err != nil {
			clog.Error("ssh listener: %v", err)
		}
	}()
	clog.Info("ssh listener on %s accepting %d key(s)", ln.Addr(), len(keys))
	return ln.Addr().String(), func() { shutdownWithTimeout("ssh listener", srv.Shutdown) }, nil
}

func shutdownWithTimeout(name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		clog.Warn("%s shutdown: %v", name, err)
	}
}
