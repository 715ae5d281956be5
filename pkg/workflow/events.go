package workflow

import (
	"context"
	"errors"
	"time"

	"openswe/pkg/state"
)

// EventType distinguishes run lifecycle events from per-tick events.
type EventType string

const (
	EventRunStarted  EventType = "run_started"
	EventStep        EventType = "step"
	EventRunFinished EventType = "run_finished"
)

// Event describes one point in a run. Step events carry the step that ran and the
// routing decision that followed; run_finished carries the final state.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	State     *state.State   `json:"state,omitempty"`
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id"`
	Step      state.StepName `json:"step,omitempty"`
	Decision  state.StepName `json:"decision,omitempty"`
	Status    state.Status   `json:"status"`
	Error     string         `json:"error,omitempty"`
	Iteration int            `json:"iteration"`
	Duration  time.Duration  `json:"duration_ns,omitempty"`
}

// EventSink receives run events. Errors are logged by the orchestrator and never
// change the outcome of a run.
type EventSink interface {
	HandleEvent(ctx context.Context, ev *Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev *Event) error

// HandleEvent calls f.
func (f EventSinkFunc) HandleEvent(ctx context.Context, ev *Event) error {
	return f(ctx, ev)
}

// MultiSink delivers every event to each non-nil sink in order.
func MultiSink(sinks ...EventSink) EventSink {
	var active []EventSink
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return multiSink(active)
}

type multiSink []EventSink

func (m multiSink) HandleEvent(ctx context.Context, ev *Event) error {
	var errs []error
	for _, s := range m {
		if err := s.HandleEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
