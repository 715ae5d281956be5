package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"openswe/pkg/agent"
	"openswe/pkg/agent/middleware/metrics"
	"openswe/pkg/config"
	"openswe/pkg/display"
	"openswe/pkg/eventlog"
	"openswe/pkg/logx"
	"openswe/pkg/manifest"
	"openswe/pkg/persistence"
	"openswe/pkg/templates"
	"openswe/pkg/workflow"
)

// wiringOptions selects the interactive parts of a workflow.
type wiringOptions struct {
	Console *display.Console // nil keeps stdout untouched
	Stream  bool             // live reasoning preview; needs Console
}

// wiring is a ready-to-run workflow and the resources behind it.
type wiring struct {
	orchestrator *workflow.Orchestrator
	registry     *prometheus.Registry
	usage        *metrics.UsageRecorder
	db           *sql.DB
	events       *eventlog.Writer
	logger       *logx.Logger
}

// newWiring validates cfg and builds clients, steps, sinks and the
// orchestrator. Configuration errors surface here, before any step runs.
func newWiring(ctx context.Context, cfg *config.Config, opts wiringOptions) (*wiring, error) {
	mode, err := workflow.ParseRoutingMode(cfg.RoutingMode)
	if err != nil {
		return nil, err
	}

	w := &wiring{
		registry: prometheus.NewRegistry(),
		usage:    metrics.NewUsageRecorder(),
		logger:   logx.NewLogger("cli"),
	}

	clients, err := agent.NewRoleClients(cfg, agent.FactoryOptions{
		Recorder: metrics.Multi(metrics.NewPrometheusRecorder(w.registry), w.usage),
		Logger:   logx.NewLogger("llm"),
	})
	if err != nil {
		return nil, err
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, err
	}

	stepOpts := workflow.StepOptions{
		Renderer:  renderer,
		Writer:    manifest.NewWriter(cfg.OutputRoot),
		MaxTokens: cfg.MaxTokens,
	}
	if opts.Console != nil && opts.Stream {
		stepOpts.Observe = opts.Console.Observer()
	}
	steps, err := workflow.NewSteps(clients, stepOpts)
	if err != nil {
		return nil, err
	}

	if w.db, err = persistence.Open(cfg.HistoryPath()); err != nil {
		return nil, err
	}
	if n, err := persistence.MarkInterruptedRuns(ctx, w.db); err != nil {
		w.logger.Warn("failed to mark interrupted runs: %v", err)
	} else if n > 0 {
		w.logger.Info("marked %d interrupted run(s) as failed", n)
	}

	if w.events, err = eventlog.NewWriter(cfg.EventsDir()); err != nil {
		_ = w.db.Close()
		return nil, err
	}

	sinks := []workflow.EventSink{persistence.NewRecorder(w.db, mode), w.events}
	if opts.Console != nil {
		sinks = append(sinks, opts.Console)
	}

	w.orchestrator, err = workflow.New(steps, workflow.Config{
		Events:        workflow.MultiSink(sinks...),
		Mode:          mode,
		MaxIterations: cfg.MaxIterations,
	})
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

// Close releases the event log and the history database.
func (w *wiring) Close() error {
	return errors.Join(w.events.Close(), w.db.Close())
}

// serveMetrics exposes the registry on addr at /metrics until the returned
// stop function is called.
func (w *wiring) serveMetrics(addr string) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(w.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	w.logger.Info("Serving metrics on http://%s/metrics", addr)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.logger.Error("metrics server error: %v", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			w.logger.Error("metrics server shutdown failed: %v", err)
		}
	}
}

// writeMetricsFile dumps the registry in the Prometheus text format.
func (w *wiring) writeMetricsFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file %s: %w", path, err)
	}
	if err := writeMetrics(f, w.registry); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close metrics file %s: %w", path, err)
	}
	return nil
}

func writeMetrics(out io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
