// Package state defines the record shared by the workflow steps during one run.
package state

// Status is the coarse phase of a run.
type Status string

const (
	StatusPlanning    Status = "planning"
	StatusProgramming Status = "programming"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
)

// IsTerminal reports whether a run in this status is over.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// rank orders the phases a run moves through.
func (s Status) rank() int {
	switch s {
	case StatusPlanning:
		return 1
	case StatusProgramming:
		return 2
	case StatusComplete:
		return 3
	default:
		return 0
	}
}

// StepName identifies a workflow step. StepTerminate is the router's "stop".
type StepName string

const (
	StepManager    StepName = "manager"
	StepPlanner    StepName = "planner"
	StepProgrammer StepName = "programmer"
	StepTerminate  StepName = "terminate"

	// LabelComplete is the manager's label for "the work is done".
	LabelComplete StepName = "complete"
)

// State is the shared record. Steps receive a Clone and return the updated value.
type State struct {
	RunID          string              `json:"run_id"`
	Request        string              `json:"request"`
	Plan           *string             `json:"plan,omitempty"`
	CodeChanges    []string            `json:"code_changes"`
	FilesCreated   []string            `json:"files_created"`
	Status         Status              `json:"status"`
	NextStep       StepName            `json:"next_step"`
	IterationCount int                 `json:"iteration_count"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	Reasoning      map[StepName]string `json:"reasoning,omitempty"`
}

// New returns the initial state for request.
func New(request string) State {
	return State{
		Request:  request,
		Status:   StatusPlanning,
		NextStep: StepManager,
	}
}

// Clone returns a deep copy; slices, the plan and the reasoning map are not shared.
func (s *State) Clone() State {
	c := *s
	if s.Plan != nil {
		plan := *s.Plan
		c.Plan = &plan
	}
	c.CodeChanges = append([]string(nil), s.CodeChanges...)
	c.FilesCreated = append([]string(nil), s.FilesCreated...)
	if s.Reasoning != nil {
		c.Reasoning = make(map[StepName]string, len(s.Reasoning))
		for k, v := range s.Reasoning {
			c.Reasoning[k] = v
		}
	}
	return c
}

// SetPlan stores plan.
func (s *State) SetPlan(plan string) {
	s.Plan = &plan
}

// HasPlan reports whether a plan was produced, even an empty one.
func (s *State) HasPlan() bool {
	return s.Plan != nil
}

// HasCode reports whether the programmer has produced any output.
func (s *State) HasCode() bool {
	return len(s.CodeChanges) > 0
}

// AddFiles appends paths not already recorded, keeping first-seen order.
func (s *State) AddFiles(paths ...string) {
	seen := make(map[string]bool, len(s.FilesCreated))
	for _, p := range s.FilesCreated {
		seen[p] = true
	}
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			s.FilesCreated = append(s.FilesCreated, p)
		}
	}
}

// SetReasoning records the reasoning a step's reply carried. Empty text clears it.
func (s *State) SetReasoning(step StepName, text string) {
	if text == "" {
		delete(s.Reasoning, step)
		return
	}
	if s.Reasoning == nil {
		s.Reasoning = make(map[StepName]string)
	}
	s.Reasoning[step] = text
}

// Advance moves the run to phase to. It never moves backwards and never
// leaves a terminal status.
func (s *State) Advance(to Status) {
	if s.Status.IsTerminal() || to.rank() <= s.Status.rank() {
		return
	}
	s.Status = to
}

// Fail marks the state as errored with msg.
func (s *State) Fail(msg string) {
	s.Status = StatusError
	s.ErrorMessage = msg
}
