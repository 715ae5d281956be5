package workflow

import (
	"context"
	"errors"
	"fmt"

	"openswe/pkg/agent"
	"openswe/pkg/agent/llm"
	"openswe/pkg/logx"
	"openswe/pkg/manifest"
	"openswe/pkg/sanitize"
	"openswe/pkg/state"
	"openswe/pkg/templates"
)

// ObserverFactory returns the stream observer for a step, or nil to use a plain
// Complete call for that step.
type ObserverFactory func(step state.StepName) llm.StreamObserver

// StepOptions is shared by the three steps.
type StepOptions struct {
	Renderer  *templates.Renderer // required
	Writer    *manifest.Writer    // nil writes under manifest.DefaultRoot
	Parsers   manifest.Chain      // nil means manifest.DefaultChain()
	Observe   ObserverFactory     // nil disables streaming
	MaxTokens int                 // <= 0 means llm.DefaultMaxTokens
}

// NewSteps builds the manager, planner and programmer steps over clients.
func NewSteps(clients *agent.RoleClients, opts StepOptions) ([]Step, error) {
	if clients == nil || clients.Manager == nil || clients.Planner == nil || clients.Programmer == nil {
		return nil, fmt.Errorf("all three role clients are required")
	}
	if opts.Renderer == nil {
		return nil, fmt.Errorf("template renderer is required")
	}
	if opts.Writer == nil {
		opts.Writer = manifest.NewWriter("")
	}
	if opts.Parsers == nil {
		opts.Parsers = manifest.DefaultChain()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = llm.DefaultMaxTokens
	}

	return []Step{
		&ManagerStep{base: newBase(state.StepManager, clients.Manager, llm.TemperatureManager, &opts)},
		&PlannerStep{base: newBase(state.StepPlanner, clients.Planner, llm.TemperaturePlanner, &opts)},
		&ProgrammerStep{base: newBase(state.StepProgrammer, clients.Programmer, llm.TemperatureProgrammer, &opts)},
	}, nil
}

// base holds what every LLM-backed step needs for its single model call.
type base struct {
	client      llm.LLMClient
	opts        *StepOptions
	logger      *logx.Logger
	name        state.StepName
	temperature float32
}

func newBase(name state.StepName, client llm.LLMClient, temperature float32, opts *StepOptions) base {
	return base{
		client:      client,
		opts:        opts,
		logger:      logx.NewLogger(string(name)),
		name:        name,
		temperature: temperature,
	}
}

// Name returns the step name.
func (b *base) Name() state.StepName {
	return b.name
}

// ask sends one system+user exchange and returns the sanitised reply. The
// reasoning is stored on st even when the reply is otherwise unusable.
func (b *base) ask(ctx context.Context, st *state.State, system, user string) (string, error) {
	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(system),
		llm.NewUserMessage(user),
	})
	req.MaxTokens = b.opts.MaxTokens
	req.Temperature = b.temperature

	b.logger.Info("Running %s step with %s", b.name, b.client.GetModelName())

	raw, err := b.call(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s model call failed: %w", b.name, err)
	}

	reasoning, cleaned := sanitize.Strip(raw)
	st.SetReasoning(b.name, reasoning)
	return cleaned, nil
}

//nolint:gocritic // request is built per call
func (b *base) call(ctx context.Context, req llm.CompletionRequest) (string, error) {
	var observer llm.StreamObserver
	if b.opts.Observe != nil {
		observer = b.opts.Observe(b.name)
	}
	if observer == nil {
		resp, err := b.client.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}

	ch, err := b.client.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	return llm.Collect(ctx, ch, observer)
}

// ManagerStep asks the model which role should act next.
type ManagerStep struct {
	base
}

// Run stores the manager's routing label in NextStep. "complete" also marks
// the state complete. Unknown labels are kept as-is for the router's fallback.
func (s *ManagerStep) Run(ctx context.Context, st state.State) (state.State, error) {
	prompt, err := s.opts.Renderer.Render(templates.ManagerTemplate, &templates.TemplateData{
		Request: templates.PreviewRequest(st.Request),
		HasPlan: st.HasPlan(),
		HasCode: st.HasCode(),
		Status:  string(st.Status),
	})
	if err != nil {
		return st, fmt.Errorf("failed to render manager prompt: %w", err)
	}

	reply, err := s.ask(ctx, &st, prompt, "Current request: "+st.Request)
	if err != nil {
		return st, err
	}

	label, ok := ParseLabel(reply)
	if !ok {
		s.logger.Warn("unrecognised routing reply %q, falling back to state-based routing", truncate(reply, 40))
	}
	st.NextStep = label
	if label == state.LabelComplete {
		st.Advance(state.StatusComplete)
	}
	return st, nil
}

// PlannerStep turns the request into an implementation plan.
type PlannerStep struct {
	base
}

// Run stores the cleaned reply as the plan. The plan is set once per run; a
// later planner turn keeps it and hands straight back to the programmer.
func (s *PlannerStep) Run(ctx context.Context, st state.State) (state.State, error) {
	if st.HasPlan() {
		s.logger.Info("plan already recorded, keeping it")
		st.NextStep = state.StepProgrammer
		return st, nil
	}

	prompt, err := s.opts.Renderer.Render(templates.PlannerTemplate, nil)
	if err != nil {
		return st, fmt.Errorf("failed to render planner prompt: %w", err)
	}

	plan, err := s.ask(ctx, &st, prompt, "Request: "+st.Request)
	if err != nil {
		return st, err
	}

	st.SetPlan(plan)
	st.Advance(state.StatusPlanning)
	st.NextStep = state.StepProgrammer
	return st, nil
}

// ProgrammerStep implements the plan and writes the files it returns.
type ProgrammerStep struct {
	base
}

// Run appends the cleaned reply to CodeChanges and materialises its manifest.
// A reply without a usable manifest produces no files and is not an error.
func (s *ProgrammerStep) Run(ctx context.Context, st state.State) (state.State, error) {
	plan := "No plan provided"
	if st.Plan != nil {
		plan = *st.Plan
	}
	prompt, err := s.opts.Renderer.Render(templates.ProgrammerTemplate, &templates.TemplateData{Plan: plan})
	if err != nil {
		return st, fmt.Errorf("failed to render programmer prompt: %w", err)
	}

	code, err := s.ask(ctx, &st, prompt, "Original request: "+st.Request)
	if err != nil {
		return st, err
	}

	st.CodeChanges = append(st.CodeChanges, code)
	st.Advance(state.StatusProgramming)
	st.NextStep = state.LabelComplete

	m, err := s.opts.Parsers.Extract(code)
	if errors.Is(err, manifest.ErrNoManifest) {
		s.logger.Info("no file manifest found in programmer output")
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("failed to extract manifest: %w", err)
	}

	s.logger.Info("manifest parsed (%s tier): folder=%s files=%d", m.Tier, m.FolderName, len(m.Files))
	result, err := s.opts.Writer.Write(m)
	st.AddFiles(result.Created...)
	for _, skipped := range result.Skipped {
		s.logger.Warn("skipped unsafe manifest path %q", skipped)
	}
	if err != nil {
		return st, fmt.Errorf("failed to write generated files: %w", err)
	}
	return st, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
