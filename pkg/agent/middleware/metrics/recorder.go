// Package metrics provides metrics recording for LLM client operations.
package metrics

import (
	"time"
)

// Request describes one finished model call.
type Request struct {
	Role             string // manager, planner or programmer
	Model            string
	PromptTokens     int
	CompletionTokens int
	Success          bool
	ErrorType        string
	Duration         time.Duration
}

// Recorder defines the interface for recording LLM operation metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed LLM request.
	ObserveRequest(req Request)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(Request) {}

// Multi fans one observation out to several recorders.
func Multi(recorders ...Recorder) Recorder {
	return multiRecorder(recorders)
}

type multiRecorder []Recorder

func (m multiRecorder) ObserveRequest(req Request) {
	for _, r := range m {
		r.ObserveRequest(req)
	}
}
