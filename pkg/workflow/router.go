// Package workflow runs the manager, planner and programmer steps as a small
// state machine over a shared state.State.
package workflow

import (
	"fmt"
	"strings"

	"openswe/pkg/state"
)

// RoutingMode selects how control moves between steps.
type RoutingMode string

const (
	// RoutingDirect follows the decision table: planner, then programmer, then stop.
	RoutingDirect RoutingMode = "direct"
	// RoutingSupervisor hands control back to the manager after every worker step.
	RoutingSupervisor RoutingMode = "supervisor"
)

// ParseRoutingMode maps a mode name to a RoutingMode. Empty means RoutingDirect.
func ParseRoutingMode(s string) (RoutingMode, error) {
	switch RoutingMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoutingDirect:
		return RoutingDirect, nil
	case RoutingSupervisor:
		return RoutingSupervisor, nil
	}
	return "", fmt.Errorf("unknown routing mode %q", s)
}

// ParseLabel normalises a manager reply and reports whether it is one of
// planner, programmer or complete. The normalised text is returned either way.
func ParseLabel(reply string) (state.StepName, bool) {
	label := strings.ToLower(strings.TrimSpace(reply))
	label = strings.Trim(label, "\"'`*")
	label = strings.TrimRight(label, ".!,;:")
	label = strings.TrimSpace(label)

	name := state.StepName(label)
	return name, isRouteLabel(name)
}

func isRouteLabel(name state.StepName) bool {
	switch name {
	case state.StepPlanner, state.StepProgrammer, state.LabelComplete:
		return true
	}
	return false
}

// Next decides the step after last. It is a pure function of its arguments.
//
//	iteration_count > max           -> terminate
//	manager gave a recognised label -> that label (complete -> terminate)
//	supervisor mode after a worker  -> manager
//	no plan                         -> planner
//	plan but no code                -> programmer
//	otherwise                       -> terminate
func Next(st *state.State, last state.StepName, maxIterations int, mode RoutingMode) state.StepName {
	if st.IterationCount > maxIterations {
		return state.StepTerminate
	}

	if last == state.StepManager && isRouteLabel(st.NextStep) {
		if st.NextStep == state.LabelComplete {
			return state.StepTerminate
		}
		return st.NextStep
	}

	if mode == RoutingSupervisor && (last == state.StepPlanner || last == state.StepProgrammer) {
		return state.StepManager
	}

	switch {
	case !st.HasPlan():
		return state.StepPlanner
	case !st.HasCode():
		return state.StepProgrammer
	default:
		return state.StepTerminate
	}
}
