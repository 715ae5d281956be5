package metrics

import (
	"sort"
	"sync"
	"time"
)

// RoleUsage is the aggregated usage of one role during a run.
type RoleUsage struct {
	Role             string        `json:"role"`
	Requests         int64         `json:"requests"`
	Failures         int64         `json:"failures"`
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	TotalDuration    time.Duration `json:"total_duration"`
}

// UsageRecorder aggregates requests per role in memory for run summaries.
type UsageRecorder struct {
	mu    sync.Mutex
	roles map[string]*RoleUsage
}

// NewUsageRecorder returns an empty in-memory recorder.
func NewUsageRecorder() *UsageRecorder {
	return &UsageRecorder{roles: make(map[string]*RoleUsage)}
}

// ObserveRequest records metrics for a completed LLM request.
func (u *UsageRecorder) ObserveRequest(req Request) {
	u.mu.Lock()
	defer u.mu.Unlock()

	usage, ok := u.roles[req.Role]
	if !ok {
		usage = &RoleUsage{Role: req.Role}
		u.roles[req.Role] = usage
	}
	usage.Requests++
	if !req.Success {
		usage.Failures++
	}
	usage.PromptTokens += int64(req.PromptTokens)
	usage.CompletionTokens += int64(req.CompletionTokens)
	usage.TotalDuration += req.Duration
}

// Snapshot returns a copy of the per-role usage sorted by role.
func (u *UsageRecorder) Snapshot() []RoleUsage {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make([]RoleUsage, 0, len(u.roles))
	for _, usage := range u.roles {
		out = append(out, *usage)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

// Reset clears all aggregates.
func (u *UsageRecorder) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.roles = make(map[string]*RoleUsage)
}
