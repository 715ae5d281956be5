package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"openswe/pkg/config"
)

var secretNamePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

func newSecretsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted secrets file",
		Long: `Secrets such as AZURE_AI_API_KEY are stored encrypted under OPENSWE_HOME and
take precedence over the environment. The password comes from OPENSWE_PASSWORD
or an interactive prompt.`,
	}
	cmd.AddCommand(newSecretsSetCmd(root), newSecretsListCmd(root))
	return cmd
}

func newSecretsSetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <NAME>",
		Short: "Store a secret; the value is read from the terminal or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !secretNamePattern.MatchString(name) {
				return fmt.Errorf("invalid secret name %q (use upper case letters, digits and underscores)", name)
			}

			password, err := root.secretsPassword(cmd)
			if err != nil {
				return err
			}
			value, err := readSecretValue(cmd, name)
			if err != nil {
				return err
			}
			if err := config.StoreSecret(root.cfg.Home, password, name, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in %s\n", name, config.SecretsPath(root.cfg.Home))
			return nil
		},
	}
}

func newSecretsListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret names (values are never printed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if !config.SecretsFileExists(root.cfg.Home) {
				fmt.Fprintln(out, "No secrets file yet. Add one with: openswe secrets set <NAME>")
				return nil
			}
			if root.password == "" {
				password, err := root.secretsPassword(cmd)
				if err != nil {
					return err
				}
				if err := config.LoadSecrets(root.cfg.Home, password); err != nil {
					return err
				}
			}
			for _, name := range config.SecretNames() {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}

// secretsPassword reuses the password that unlocked the file during setup.
func (o *rootOptions) secretsPassword(cmd *cobra.Command) (string, error) {
	if o.password != "" {
		return o.password, nil
	}
	password, err := readPassword(cmd, "Secrets password: ")
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	o.password = password
	return password, nil
}

// readSecretValue prompts without echo on a terminal, otherwise reads one line
// from stdin.
func readSecretValue(cmd *cobra.Command, name string) (string, error) {
	var value string
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Value for %s: ", name)
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		value = string(raw)
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		value = line
	}

	value = strings.TrimRight(value, "\r\n")
	if value == "" {
		return "", fmt.Errorf("empty value for %s", name)
	}
	return value, nil
}
