// Package cmd implements the CLI commands for backchannel.
package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/xdg/backchannel/internal/clog"
	"github.com/xdg/backchannel/internal/config"
	"github.com/xdg/backchannel/internal/term"
	"github.com/xdg/backchannel/internal/version"
)

var (
	configPath string
	debug      bool
	silent     bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "backchannel",
	Short: "Run commands on your home machine from a remote SSH session",
	Long: `Backchannel lets a shell on a remote host run a command back on the
machine you connected from. Every command is shown to you on the home machine
and runs only after you approve it.

On the home machine, run 'backchannel daemon start' and install a restricted
key with 'backchannel authorize'. On the remote host, run
'backchannel run -- <command>'.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		term.SetSilent(silent)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.Path()+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&silent, "silent", false, "suppress informational output")
}

// Execute runs the root command and returns any error. Errors other than
// exit codes are printed here.
func Execute() error {
	err := rootCmd.Execute()
	var exitErr *ExitCodeError
	if err != nil && !errors.As(err, &exitErr) {
		term.Error("%v", err)
	}
	return err
}

// loadConfig loads the configuration selected by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging configures clog from cfg. --debug overrides the configured
// level.
func setupLogging(cfg *config.Config, daemonMode bool) error {
	level := clog.LevelInfo
	if cfg.Log.Level != "" {
		var err error
		if level, err = clog.ParseLevel(cfg.Log.Level); err != nil {
			return err
		}
	}
	if debug {
		level = clog.LevelDebug
	}
	if err := clog.Configure(cfg.Log.File, level, daemonMode); err != nil {
		return err
	}
	clog.RedirectStdLog(clog.LevelInfo)
	return nil
}
