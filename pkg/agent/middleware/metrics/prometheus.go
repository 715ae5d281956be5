package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the LLM metrics on reg. A nil reg uses the
// default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openswe_llm_requests_total",
				Help: "Total number of LLM requests by role, model and status",
			},
			[]string{"role", "model", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openswe_llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"role", "model", "type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "openswe_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"role", "model"},
		),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (p *PrometheusRecorder) ObserveRequest(req Request) {
	status := statusSuccess
	if !req.Success {
		status = statusError
	}

	p.requestsTotal.WithLabelValues(req.Role, req.Model, status, req.ErrorType).Inc()

	if req.Success {
		p.tokensTotal.WithLabelValues(req.Role, req.Model, "prompt").Add(float64(req.PromptTokens))
		p.tokensTotal.WithLabelValues(req.Role, req.Model, "completion").Add(float64(req.CompletionTokens))
	}

	p.requestDuration.WithLabelValues(req.Role, req.Model).Observe(req.Duration.Seconds())
}
