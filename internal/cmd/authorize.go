package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/xdg/backchannel/internal/authkeys"
	"github.com/xdg/backchannel/internal/config"
	"github.com/xdg/backchannel/internal/prompt"
	"github.com/xdg/backchannel/internal/term"
)

var authorizeFlags struct {
	key            string
	authorizedKeys string
	entryPoint     string
	yes            bool
}

// newYesNoPrompter is replaced in tests.
var newYesNoPrompter = func(in io.Reader, out io.Writer) prompt.YesNoPrompter {
	return prompt.NewStdinYesNoPrompter(in, out)
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize --key <public-key-file>",
	Short: "Install a restricted key that can only reach backchannel",
	Long: `Install a public key into authorized_keys on the home host, restricted to
the backchannel entry point: the key cannot open a shell, allocate a pty or
forward ports, and every session runs 'backchannel connect'.

Previous backchannel entries are replaced. Generate the key pair yourself,
e.g. ssh-keygen -t ed25519 -f ~/.ssh/id_backchannel, and copy the private key
to the remote host.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		pub, err := os.ReadFile(config.ExpandHome(authorizeFlags.key))
		if err != nil {
			return fmt.Errorf("failed to read public key: %w", err)
		}

		entryPoint := authorizeFlags.entryPoint
		if entryPoint == "" {
			entryPoint, err = defaultEntryPoint()
			if err != nil {
				return err
			}
		}
		entry, err := authkeys.ForcedEntry(entryPoint, string(pub))
		if err != nil {
			return err
		}

		path := cfg.Daemon.AuthorizedKeys
		if authorizeFlags.authorizedKeys != "" {
			path = config.ExpandHome(authorizeFlags.authorizedKeys)
		}

		term.Printf("Entry:\n  %s\n", entry)
		if !authorizeFlags.yes {
			ok, err := newYesNoPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).
				PromptYesNo(fmt.Sprintf("Install into %s?", path), false)
			if err != nil {
				return err
			}
			if !ok {
				term.Println("Aborted")
				return nil
			}
		}

		if err := authkeys.Install(path, entry); err != nil {
			return err
		}
		term.Printf("Installed restricted key in %s\n", path)
		return nil
	},
}

func init() {
	authorizeCmd.Flags().StringVar(&authorizeFlags.key, "key", "", "public key file to authorize")
	authorizeCmd.Flags().StringVar(&authorizeFlags.authorizedKeys, "authorized-keys", "", "authorized_keys file (default daemon.authorized_keys)")
	authorizeCmd.Flags().StringVar(&authorizeFlags.entryPoint, "entry-point", "", `forced command (default "<this binary> connect")`)
	authorizeCmd.Flags().BoolVarP(&authorizeFlags.yes, "yes", "y", false, "do not ask for confirmation")
	_ = authorizeCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(authorizeCmd)
}

func defaultEntryPoint() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("get executable path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe + " connect", nil
}
