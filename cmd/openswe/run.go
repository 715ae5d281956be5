package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"openswe/pkg/config"
	"openswe/pkg/display"
	"openswe/pkg/state"
)

type runOptions struct {
	stream        bool
	routing       string
	maxIterations int
	outputRoot    string
	metricsAddr   string
	metricsFile   string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [flags] <request...>",
		Short: "Run the coding workflow for a request",
		Example: `  openswe run "Create a Python function to calculate fibonacci numbers"
  openswe run --routing supervisor --max-iterations 6 "Build a CLI todo app"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.apply(cmd, root.cfg)
			return runRequest(cmd, root.cfg, opts, joinRequest(args))
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.stream, "stream", true, "Stream model output and show a live reasoning preview")
	flags.StringVar(&opts.routing, "routing", "", "Routing mode: direct or supervisor (overrides ROUTING_MODE)")
	flags.IntVar(&opts.maxIterations, "max-iterations", 0, "Maximum number of steps (overrides MAX_ITERATIONS)")
	flags.StringVarP(&opts.outputRoot, "output", "o", "", "Directory that receives generated projects (overrides OUTPUT_ROOT)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the run is active")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write a Prometheus text snapshot here after the run")
	return cmd
}

// apply copies explicitly set flags over the resolved configuration.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("routing") {
		cfg.RoutingMode = strings.ToLower(strings.TrimSpace(o.routing))
	}
	if flags.Changed("max-iterations") {
		cfg.MaxIterations = o.maxIterations
	}
	if flags.Changed("output") {
		cfg.OutputRoot = o.outputRoot
	}
}

// joinRequest rebuilds a request typed without quotes.
func joinRequest(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runRequest(cmd *cobra.Command, cfg *config.Config, opts *runOptions, request string) error {
	if request == "" {
		return fmt.Errorf("request must not be empty")
	}

	console := display.NewConsole(cmd.OutOrStdout())
	w, err := newWiring(cmd.Context(), cfg, wiringOptions{Console: console, Stream: opts.stream})
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			w.logger.Warn("failed to close run resources: %v", err)
		}
	}()

	if opts.metricsAddr != "" {
		stop := w.serveMetrics(opts.metricsAddr)
		defer stop()
	}

	console.Banner()
	console.Request(request)

	final := w.orchestrator.Run(cmd.Context(), request)
	console.Summary(&final, w.usage.Snapshot())

	if opts.metricsFile != "" {
		if err := w.writeMetricsFile(opts.metricsFile); err != nil {
			w.logger.Warn("%v", err)
		}
	}

	if final.Status == state.StatusError {
		return &exitError{code: 1}
	}
	return nil
}
