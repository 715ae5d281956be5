package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"openswe/pkg/logx"
	"openswe/pkg/state"
)

// DefaultMaxIterations is the tick cap used when Config.MaxIterations is unset.
const DefaultMaxIterations = 10

// Step is one agent role. Run receives a private copy of the state and returns
// the updated value; on error the returned state is kept as the partial result.
type Step interface {
	Name() state.StepName
	Run(ctx context.Context, st state.State) (state.State, error)
}

// Config tunes an Orchestrator.
type Config struct {
	Events        EventSink    // optional
	Logger        *logx.Logger // optional; defaults to component "workflow"
	Mode          RoutingMode
	MaxIterations int
}

// Orchestrator owns the state of a run and dispatches one step per tick.
type Orchestrator struct {
	steps         map[state.StepName]Step
	events        EventSink
	logger        *logx.Logger
	mode          RoutingMode
	maxIterations int
}

// New builds an orchestrator over steps. A manager step is required because
// every run starts there; planner and programmer are required since the router
// can select them at any time.
func New(steps []Step, cfg Config) (*Orchestrator, error) {
	o := &Orchestrator{
		steps:         make(map[state.StepName]Step, len(steps)),
		events:        cfg.Events,
		logger:        cfg.Logger,
		mode:          cfg.Mode,
		maxIterations: cfg.MaxIterations,
	}
	if o.logger == nil {
		o.logger = logx.NewLogger("workflow")
	}
	if o.mode == "" {
		o.mode = RoutingDirect
	}
	if o.maxIterations <= 0 {
		o.maxIterations = DefaultMaxIterations
	}

	for _, s := range steps {
		if _, dup := o.steps[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate step %q", s.Name())
		}
		o.steps[s.Name()] = s
	}
	for _, required := range []state.StepName{state.StepManager, state.StepPlanner, state.StepProgrammer} {
		if _, ok := o.steps[required]; !ok {
			return nil, fmt.Errorf("missing %s step", required)
		}
	}
	return o, nil
}

// MaxIterations returns the tick cap.
func (o *Orchestrator) MaxIterations() int {
	return o.maxIterations
}

// Run drives a new run for request to its end and returns the final state.
// It never returns without a state: step failures are recorded in the state
// with status error.
func (o *Orchestrator) Run(ctx context.Context, request string) state.State {
	st := state.New(request)
	st.RunID = uuid.New().String()
	ctx = logx.WithComponent(ctx, "workflow")

	o.logger.Info("run %s started (mode=%s, max_iterations=%d)", st.RunID, o.mode, o.maxIterations)
	initial := st.Clone()
	o.emit(ctx, &Event{Type: EventRunStarted, RunID: st.RunID, Status: st.Status, State: &initial})

	current := state.StepManager
	for {
		if st.IterationCount >= o.maxIterations {
			o.logger.Warn("run %s reached the iteration cap (%d)", st.RunID, o.maxIterations)
			break
		}

		if err := ctx.Err(); err != nil {
			st.Fail(fmt.Sprintf("run cancelled: %v", err))
			o.logger.Error("run %s cancelled before %s: %v", st.RunID, current, err)
			break
		}

		next, done := o.tick(ctx, &st, current)
		if done {
			break
		}
		current = next
	}

	o.logger.Info("run %s finished: status=%s iterations=%d files=%d",
		st.RunID, st.Status, st.IterationCount, len(st.FilesCreated))
	final := st.Clone()
	o.emit(ctx, &Event{
		Type:      EventRunFinished,
		RunID:     st.RunID,
		Status:    st.Status,
		Error:     st.ErrorMessage,
		Iteration: st.IterationCount,
		State:     &final,
	})
	return st
}

// tick runs the step named current, routes, and reports the next step or that
// the run is over.
func (o *Orchestrator) tick(ctx context.Context, st *state.State, current state.StepName) (state.StepName, bool) {
	step := o.steps[current]
	logx.DebugFlow(ctx, "workflow", string(current), "start", fmt.Sprintf("iteration %d", st.IterationCount+1))

	start := time.Now()
	updated, err := step.Run(ctx, st.Clone())
	elapsed := time.Since(start)

	// The step's state is adopted even on failure so partial work survives.
	*st = updated
	st.IterationCount++

	if err != nil {
		st.Fail(err.Error())
		o.logger.Error("%s step failed: %v", current, err)
		o.emitStep(ctx, st, current, state.StepTerminate, elapsed)
		return state.StepTerminate, true
	}

	next := Next(st, current, o.maxIterations, o.mode)
	if st.Status == state.StatusComplete {
		next = state.StepTerminate
	}
	logx.DebugFlow(ctx, "workflow", string(current), "done", fmt.Sprintf("next=%s", next))

	if next == state.StepTerminate {
		if st.IterationCount <= o.maxIterations {
			st.Advance(state.StatusComplete)
		}
		o.emitStep(ctx, st, current, next, elapsed)
		return next, true
	}

	if _, ok := o.steps[next]; !ok {
		st.Fail(fmt.Sprintf("no step registered for %q", next))
		o.emitStep(ctx, st, current, state.StepTerminate, elapsed)
		return state.StepTerminate, true
	}

	o.emitStep(ctx, st, current, next, elapsed)
	return next, false
}

func (o *Orchestrator) emitStep(ctx context.Context, st *state.State, step, decision state.StepName, elapsed time.Duration) {
	o.emit(ctx, &Event{
		Type:      EventStep,
		RunID:     st.RunID,
		Step:      step,
		Decision:  decision,
		Status:    st.Status,
		Error:     st.ErrorMessage,
		Iteration: st.IterationCount,
		Duration:  elapsed,
	})
}

func (o *Orchestrator) emit(ctx context.Context, ev *Event) {
	if o.events == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	if err := o.events.HandleEvent(ctx, ev); err != nil {
		o.logger.Warn("event sink failed for %s: %v", ev.Type, err)
	}
}
