package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"openswe/pkg/workflow"
)

// Recorder is a workflow.EventSink that mirrors runs into the history database.
type Recorder struct {
	db   *sql.DB
	mode string
}

// NewRecorder returns a Recorder writing to db. mode is stored with each run.
func NewRecorder(db *sql.DB, mode workflow.RoutingMode) *Recorder {
	return &Recorder{db: db, mode: string(mode)}
}

// HandleEvent persists run start, each tick, and the final state. Writes are not
// tied to the run's cancellation so an aborted run is still recorded.
func (r *Recorder) HandleEvent(ctx context.Context, ev *workflow.Event) error {
	ctx = context.WithoutCancel(ctx)

	switch ev.Type {
	case workflow.EventRunStarted:
		if ev.State == nil {
			return fmt.Errorf("run_started event for %s carries no state", ev.RunID)
		}
		run := RunFromState(ev.State, r.mode)
		run.StartedAt = ev.Timestamp
		return CreateRun(ctx, r.db, run)

	case workflow.EventStep:
		return AppendStep(ctx, r.db, &StepRecord{
			RunID:     ev.RunID,
			Iteration: ev.Iteration,
			Step:      ev.Step,
			Decision:  ev.Decision,
			Status:    ev.Status,
			Duration:  ev.Duration,
			Error:     ev.Error,
			CreatedAt: ev.Timestamp,
		})

	case workflow.EventRunFinished:
		if ev.State == nil {
			return fmt.Errorf("run_finished event for %s carries no state", ev.RunID)
		}
		run := RunFromState(ev.State, r.mode)
		if !ev.Timestamp.IsZero() {
			ended := ev.Timestamp
			run.EndedAt = &ended
		}
		return FinishRun(ctx, r.db, run)
	}
	return nil
}
