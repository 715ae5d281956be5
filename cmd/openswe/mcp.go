package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"openswe/pkg/logx"
	"openswe/pkg/mcpserver"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve run_code_agent and create_repo to an MCP client over stdio",
		Long: `Starts a Model Context Protocol server on stdin/stdout. Each request is one
line of JSON-RPC 2.0. Logs are written to stderr and the log file only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			w, err := newWiring(ctx, root.cfg, wiringOptions{})
			if err != nil {
				return err
			}
			defer func() {
				if err := w.Close(); err != nil {
					w.logger.Warn("failed to close server resources: %v", err)
				}
			}()

			if metricsAddr != "" {
				stop := w.serveMetrics(metricsAddr)
				defer stop()
			}

			server := mcpserver.NewServer(w.orchestrator, logx.NewLogger("mcp"))
			err = server.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}
