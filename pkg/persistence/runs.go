package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"openswe/pkg/state"
)

var (
	// ErrRunNotFound is returned when no run matches the requested id.
	ErrRunNotFound = errors.New("run not found")
	// ErrAmbiguousRunID is returned when an id prefix matches more than one run.
	ErrAmbiguousRunID = errors.New("run id prefix is ambiguous")
)

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one persisted orchestration run.
//
//nolint:govet // field order follows the table layout.
type Run struct {
	RunID          string            `json:"run_id"`
	Request        string            `json:"request"`
	Status         state.Status      `json:"status"`
	Plan           *string           `json:"plan,omitempty"`
	CodeChanges    []string          `json:"code_changes"`
	FilesCreated   []string          `json:"files_created"`
	IterationCount int               `json:"iteration_count"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	RoutingMode    string            `json:"routing_mode"`
	Reasoning      map[string]string `json:"reasoning,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	EndedAt        *time.Time        `json:"ended_at,omitempty"`
}

// StepRecord is one tick of a run.
//
//nolint:govet // field order follows the table layout.
type StepRecord struct {
	RunID     string         `json:"run_id"`
	Iteration int            `json:"iteration"`
	Step      state.StepName `json:"step"`
	Decision  state.StepName `json:"decision"`
	Status    state.Status   `json:"status"`
	Duration  time.Duration  `json:"duration"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// RunFromState copies the persisted fields of st into a Run.
func RunFromState(st *state.State, mode string) *Run {
	run := &Run{
		RunID:          st.RunID,
		Request:        st.Request,
		Status:         st.Status,
		CodeChanges:    append([]string(nil), st.CodeChanges...),
		FilesCreated:   append([]string(nil), st.FilesCreated...),
		IterationCount: st.IterationCount,
		ErrorMessage:   st.ErrorMessage,
		RoutingMode:    mode,
	}
	if st.Plan != nil {
		plan := *st.Plan
		run.Plan = &plan
	}
	if len(st.Reasoning) > 0 {
		run.Reasoning = make(map[string]string, len(st.Reasoning))
		for k, v := range st.Reasoning {
			run.Reasoning[string(k)] = v
		}
	}
	return run
}

// CreateRun inserts a new run row.
func CreateRun(ctx context.Context, db *sql.DB, run *Run) error {
	codeJSON, filesJSON, reasoningJSON, err := encodeRunJSON(run)
	if err != nil {
		return err
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (run_id, request, status, plan, code_changes_json, files_created_json,
			iteration_count, error_message, started_at, routing_mode, reasoning_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.Request, string(run.Status), nullableString(run.Plan), codeJSON, filesJSON,
		run.IterationCount, run.ErrorMessage, run.StartedAt.UTC().Format(timeLayout), run.RoutingMode, reasoningJSON)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.RunID, err)
	}
	return nil
}

// FinishRun stores the final state of a run and stamps its end time.
func FinishRun(ctx context.Context, db *sql.DB, run *Run) error {
	codeJSON, filesJSON, reasoningJSON, err := encodeRunJSON(run)
	if err != nil {
		return err
	}
	if run.EndedAt == nil {
		now := time.Now().UTC()
		run.EndedAt = &now
	}

	result, err := db.ExecContext(ctx, `
		UPDATE runs SET status = ?, plan = ?, code_changes_json = ?, files_created_json = ?,
			iteration_count = ?, error_message = ?, reasoning_json = ?, ended_at = ?
		WHERE run_id = ?
	`, string(run.Status), nullableString(run.Plan), codeJSON, filesJSON,
		run.IterationCount, run.ErrorMessage, reasoningJSON, run.EndedAt.UTC().Format(timeLayout), run.RunID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.RunID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// AppendStep records one tick and advances the run's status and iteration count.
func AppendStep(ctx context.Context, db *sql.DB, rec *StepRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO run_steps (run_id, iteration, step, decision, status, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.RunID, rec.Iteration, string(rec.Step), string(rec.Decision), string(rec.Status),
		rec.Duration.Milliseconds(), rec.Error, rec.CreatedAt.UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("failed to insert step for run %s: %w", rec.RunID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE runs SET status = ?, iteration_count = ? WHERE run_id = ?
	`, string(rec.Status), rec.Iteration, rec.RunID); err != nil {
		return fmt.Errorf("failed to update run %s: %w", rec.RunID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit step: %w", err)
	}
	return nil
}

const runColumns = `run_id, request, status, plan, code_changes_json, files_created_json,
	iteration_count, error_message, routing_mode, reasoning_json, started_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var status, startedAt, codeJSON, filesJSON, reasoningJSON string
	var plan, endedAt sql.NullString
	if err := row.Scan(&run.RunID, &run.Request, &status, &plan, &codeJSON, &filesJSON,
		&run.IterationCount, &run.ErrorMessage, &run.RoutingMode, &reasoningJSON, &startedAt, &endedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers map sql.ErrNoRows
	}

	run.Status = state.Status(status)
	if plan.Valid {
		p := plan.String
		run.Plan = &p
	}
	if err := json.Unmarshal([]byte(codeJSON), &run.CodeChanges); err != nil {
		return nil, fmt.Errorf("failed to decode code changes of run %s: %w", run.RunID, err)
	}
	if err := json.Unmarshal([]byte(filesJSON), &run.FilesCreated); err != nil {
		return nil, fmt.Errorf("failed to decode files of run %s: %w", run.RunID, err)
	}
	if err := json.Unmarshal([]byte(reasoningJSON), &run.Reasoning); err != nil {
		return nil, fmt.Errorf("failed to decode reasoning of run %s: %w", run.RunID, err)
	}
	if t, err := time.Parse(timeLayout, startedAt); err == nil {
		run.StartedAt = t
	}
	if endedAt.Valid {
		if t, err := time.Parse(timeLayout, endedAt.String); err == nil {
			run.EndedAt = &t
		}
	}
	return &run, nil
}

// GetRun returns the run whose id equals idOrPrefix, or the single run whose id
// starts with it. ErrRunNotFound and ErrAmbiguousRunID report the failures.
func GetRun(ctx context.Context, db *sql.DB, idOrPrefix string) (*Run, error) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return nil, ErrRunNotFound
	}

	run, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, idOrPrefix))
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	pattern := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(idOrPrefix) + "%"
	rows, err := db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id LIKE ? ESCAPE '\' LIMIT 2`, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		matches = append(matches, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, ErrRunNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, ErrAmbiguousRunID
	}
}

// ListRuns returns up to limit runs, most recent first. limit <= 0 means all.
func ListRuns(ctx context.Context, db *sql.DB, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// GetRunSteps returns the ticks of a run in order.
func GetRunSteps(ctx context.Context, db *sql.DB, runID string) ([]StepRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, iteration, step, decision, status, duration_ms, error, created_at
		FROM run_steps
		WHERE run_id = ?
		ORDER BY iteration, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var steps []StepRecord
	for rows.Next() {
		var rec StepRecord
		var step, decision, status, stamp string
		var durationMS int64
		if err := rows.Scan(&rec.RunID, &rec.Iteration, &step, &decision, &status, &durationMS, &rec.Error, &stamp); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		rec.Step = state.StepName(step)
		rec.Decision = state.StepName(decision)
		rec.Status = state.Status(status)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if t, err := time.Parse(timeLayout, stamp); err == nil {
			rec.CreatedAt = t
		}
		steps = append(steps, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate steps: %w", err)
	}
	return steps, nil
}

// MarkInterruptedRuns closes runs that never finished (the process died mid-run)
// by marking them as errors.
func MarkInterruptedRuns(ctx context.Context, db *sql.DB) (int64, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE runs SET status = 'error', error_message = 'run interrupted', ended_at = ?
		WHERE ended_at IS NULL
	`, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count interrupted runs: %w", err)
	}
	return n, nil
}

func encodeRunJSON(run *Run) (code, files, reasoning string, err error) {
	codeChanges := run.CodeChanges
	if codeChanges == nil {
		codeChanges = []string{}
	}
	filesCreated := run.FilesCreated
	if filesCreated == nil {
		filesCreated = []string{}
	}
	reasons := run.Reasoning
	if reasons == nil {
		reasons = map[string]string{}
	}

	codeJSON, err := json.Marshal(codeChanges)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode code changes: %w", err)
	}
	filesJSON, err := json.Marshal(filesCreated)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode files: %w", err)
	}
	reasoningJSON, err := json.Marshal(reasons)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode reasoning: %w", err)
	}
	return string(codeJSON), string(filesJSON), string(reasoningJSON), nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
