package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"openswe/pkg/config"
	"openswe/pkg/logx"
	"openswe/pkg/version"
)

// rootOptions is shared by every subcommand. cfg and password are filled in
// before any subcommand runs.
type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	password   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "openswe",
		Short: "Plan and write code with a manager, planner and programmer agent",
		Long: `openswe routes a coding request between three model-backed agents:
the manager decides what happens next, the planner writes a step-by-step plan,
and the programmer produces the code and writes the files it lists.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
	}
	cmd.SetVersionTemplate(version.String() + "\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file (default ./openswe.yaml when present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN or ERROR (overrides LOG_LEVEL)")

	cmd.AddCommand(
		newRunCmd(opts),
		newMCPCmd(opts),
		newHistoryCmd(opts),
		newSecretsCmd(opts),
	)
	return cmd
}

// setup resolves configuration, unlocks the secrets file when possible, and
// configures logging. Logs always go to stderr so stdout stays free for
// results and the MCP protocol.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	logx.SetOutput(cmd.ErrOrStderr())
	logger := logx.NewLogger("cli")

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	if config.SecretsFileExists(cfg.Home) {
		password, err := readPassword(cmd, "Secrets password: ")
		switch {
		case err != nil:
			logger.Warn("secrets file not unlocked: %v", err)
		default:
			if err := config.LoadSecrets(cfg.Home, password); err != nil {
				return fmt.Errorf("failed to unlock secrets: %w", err)
			}
			o.password = password
			// Secrets take precedence over the environment, so resolve again.
			if cfg, err = config.Load(o.configPath); err != nil {
				return err
			}
		}
	}

	levelName := cfg.LogLevel
	if o.logLevel != "" {
		levelName = o.logLevel
	}
	level, ok := logx.ParseLevel(levelName)
	if !ok {
		return fmt.Errorf("unknown log level %q", levelName)
	}
	logx.SetLevel(level)

	if err := logx.EnableFileLogging(cfg.LogsDir()); err != nil {
		return err
	}

	o.cfg = cfg
	logger.Debug("provider=%s routing=%s max_iterations=%d home=%s", cfg.Provider, cfg.RoutingMode, cfg.MaxIterations, cfg.Home)
	return nil
}

// readPassword returns OPENSWE_PASSWORD, or prompts for it when stdin is a
// terminal.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	if password := os.Getenv(config.EnvPassword); password != "" {
		return password, nil
	}
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", fmt.Errorf("%s is not set and stdin is not a terminal", config.EnvPassword)
	}

	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	raw, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(raw), nil
}
