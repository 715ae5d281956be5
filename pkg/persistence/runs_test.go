package persistence

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openswe/pkg/state"
	"openswe/pkg/workflow"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenCreatesCurrentSchema(t *testing.T) {
	db := openTestDB(t)

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestOpenMigratesVersionOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE runs (
		run_id TEXT PRIMARY KEY,
		request TEXT NOT NULL,
		status TEXT NOT NULL,
		plan TEXT,
		code_changes_json TEXT NOT NULL DEFAULT '[]',
		files_created_json TEXT NOT NULL DEFAULT '[]',
		iteration_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		ended_at DATETIME
	)`)
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO runs (run_id, request, status, started_at) VALUES ('old-run', 'legacy', 'complete', ?)`,
		time.Now().UTC().Format(timeLayout))
	require.NoError(t, err)
	_, err = GetSchemaVersion(raw)
	require.NoError(t, err)
	require.NoError(t, setSchemaVersion(raw, 1))
	require.NoError(t, raw.Close())

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	run, err := GetRun(context.Background(), db, "old-run")
	require.NoError(t, err)
	assert.Equal(t, "direct", run.RoutingMode)
	assert.Empty(t, run.Reasoning)
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	st := state.New("build a calculator")
	st.RunID = "3f2a9c1e-0000-4000-8000-000000000001"
	require.NoError(t, CreateRun(ctx, db, RunFromState(&st, "direct")))

	require.NoError(t, AppendStep(ctx, db, &StepRecord{
		RunID:     st.RunID,
		Iteration: 1,
		Step:      state.StepManager,
		Decision:  state.StepPlanner,
		Status:    state.StatusPlanning,
		Duration:  1500 * time.Millisecond,
	}))

	st.SetPlan("1. parse input")
	st.CodeChanges = []string{"print(1)"}
	st.AddFiles("agentic_code/calc/main.py")
	st.SetReasoning(state.StepPlanner, "think first")
	st.Status = state.StatusComplete
	st.IterationCount = 3
	require.NoError(t, FinishRun(ctx, db, RunFromState(&st, "direct")))

	run, err := GetRun(ctx, db, st.RunID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusComplete, run.Status)
	require.NotNil(t, run.Plan)
	assert.Equal(t, "1. parse input", *run.Plan)
	assert.Equal(t, []string{"print(1)"}, run.CodeChanges)
	assert.Equal(t, []string{"agentic_code/calc/main.py"}, run.FilesCreated)
	assert.Equal(t, "think first", run.Reasoning["planner"])
	assert.Equal(t, 3, run.IterationCount)
	assert.NotNil(t, run.EndedAt)
	assert.False(t, run.StartedAt.IsZero())

	steps, err := GetRunSteps(ctx, db, st.RunID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, state.StepManager, steps[0].Step)
	assert.Equal(t, state.StepPlanner, steps[0].Decision)
	assert.Equal(t, 1500*time.Millisecond, steps[0].Duration)
}

func TestGetRunByPrefix(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"abc-111", "abc-222", "def-333"} {
		st := state.New("r " + id)
		st.RunID = id
		require.NoError(t, CreateRun(ctx, db, RunFromState(&st, "direct")))
	}

	run, err := GetRun(ctx, db, "def")
	require.NoError(t, err)
	assert.Equal(t, "def-333", run.RunID)

	_, err = GetRun(ctx, db, "abc")
	assert.True(t, errors.Is(err, ErrAmbiguousRunID))

	_, err = GetRun(ctx, db, "zzz")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	_, err = GetRun(ctx, db, "%")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestListRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		st := state.New(id)
		st.RunID = id
		run := RunFromState(&st, "direct")
		run.StartedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, CreateRun(ctx, db, run))
	}

	runs, err := ListRuns(ctx, db, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].RunID)
	assert.Equal(t, "second", runs[1].RunID)

	all, err := ListRuns(ctx, db, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFinishUnknownRun(t *testing.T) {
	db := openTestDB(t)
	st := state.New("ghost")
	st.RunID = "ghost"
	err := FinishRun(context.Background(), db, RunFromState(&st, "direct"))
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestMarkInterruptedRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	st := state.New("crashed")
	st.RunID = "crashed"
	require.NoError(t, CreateRun(ctx, db, RunFromState(&st, "direct")))

	n, err := MarkInterruptedRuns(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	run, err := GetRun(ctx, db, "crashed")
	require.NoError(t, err)
	assert.Equal(t, state.StatusError, run.Status)
	assert.Equal(t, "run interrupted", run.ErrorMessage)

	n, err = MarkInterruptedRuns(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecorderHandlesRunEvents(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(db, workflow.RoutingSupervisor)

	ctx, cancel := context.WithCancel(context.Background())
	st := state.New("recorded")
	st.RunID = "rec-1"
	now := time.Now().UTC()

	require.NoError(t, rec.HandleEvent(ctx, &workflow.Event{
		Type: workflow.EventRunStarted, RunID: st.RunID, Status: st.Status, State: &st, Timestamp: now,
	}))
	require.NoError(t, rec.HandleEvent(ctx, &workflow.Event{
		Type: workflow.EventStep, RunID: st.RunID, Step: state.StepManager,
		Decision: state.StepPlanner, Status: state.StatusPlanning, Iteration: 1, Timestamp: now,
	}))

	// A cancelled run still records its end.
	cancel()
	final := st.Clone()
	final.Fail("run cancelled: context canceled")
	final.IterationCount = 1
	require.NoError(t, rec.HandleEvent(ctx, &workflow.Event{
		Type: workflow.EventRunFinished, RunID: st.RunID, Status: final.Status, State: &final, Timestamp: now,
	}))

	run, err := GetRun(context.Background(), db, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, state.StatusError, run.Status)
	assert.Equal(t, "supervisor", run.RoutingMode)
	assert.Equal(t, 1, run.IterationCount)
	require.NotNil(t, run.EndedAt)

	require.Error(t, rec.HandleEvent(context.Background(), &workflow.Event{Type: workflow.EventRunStarted, RunID: "x"}))
}
