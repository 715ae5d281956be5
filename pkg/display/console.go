package display

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"openswe/pkg/agent/llm"
	"openswe/pkg/agent/middleware/metrics"
	"openswe/pkg/state"
	"openswe/pkg/workflow"
)

const defaultWidth = 80

// Console writes progress and summaries to out. Styling and markdown rendering
// are used only when out is a terminal.
type Console struct {
	out   io.Writer
	mu    sync.Mutex
	width int
	color bool
}

// NewConsole returns a console for out, probing it for a terminal.
func NewConsole(out io.Writer) *Console {
	c := &Console{out: out, width: defaultWidth}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.color = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			c.width = w
		}
	}
	return c
}

// NewPlainConsole returns a console that never styles its output.
func NewPlainConsole(out io.Writer, width int) *Console {
	if width <= 0 {
		width = defaultWidth
	}
	return &Console{out: out, width: width}
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *Console) paint(style lipgloss.Style, text string) string {
	if !c.color {
		return text
	}
	return style.Render(text)
}

func (c *Console) rule(ch string) string {
	return strings.Repeat(ch, min(c.width, 60))
}

// Banner prints the welcome banner.
func (c *Console) Banner() {
	style := lipgloss.NewStyle().Foreground(purple).Bold(true)
	c.printf("%s\n\n%s\n\n", c.paint(style, banner), c.paint(style, "Welcome to Open-SWE!"))
}

// Request announces the request being processed.
func (c *Console) Request(request string) {
	c.printf("🤖 Processing request: %s\n%s\n", request, c.rule("="))
}

// StepStarted prints the header box of a step.
func (c *Console) StepStarted(step state.StepName) {
	rs := styleFor(step)
	text := fmt.Sprintf("%s %s Working", rs.icon, rs.title)
	if c.color {
		c.printf("%s\n", rs.style.Width(min(c.width, 60)).Render(text))
		return
	}
	c.printf("[%s]\n", text)
}

// HandleEvent implements workflow.EventSink by printing each routing decision.
func (c *Console) HandleEvent(_ context.Context, ev *workflow.Event) error {
	if ev.Type != workflow.EventStep {
		return nil
	}

	rs := styleFor(ev.Step)
	line := fmt.Sprintf("✓ %s → %s (%s)", ev.Step, ev.Decision, ev.Duration.Round(10*time.Millisecond))
	if ev.Error != "" {
		line = fmt.Sprintf("✗ %s failed: %s", ev.Step, ev.Error)
		c.printf("%s\n", c.paint(lipgloss.NewStyle().Foreground(red), line))
		return nil
	}
	c.printf("%s\n", c.paint(lipgloss.NewStyle().Foreground(rs.color), line))
	return nil
}

// Observer returns a workflow.ObserverFactory that prints each step's header
// and a live preview of its reasoning.
func (c *Console) Observer() workflow.ObserverFactory {
	return func(step state.StepName) llm.StreamObserver {
		c.StepStarted(step)
		return newThinkingPreview(c, step)
	}
}

// RenderMarkdown renders md for the console width; plain consoles get md as-is.
func (c *Console) RenderMarkdown(md string) string {
	if !c.color {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(c.width-4, 20)),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// Summary prints the final state of a run and, when given, per-role usage.
func (c *Console) Summary(st *state.State, usage []metrics.RoleUsage) {
	var b strings.Builder

	status := c.paint(lipgloss.NewStyle().Foreground(statusColor(st.Status)).Bold(true), string(st.Status))
	fmt.Fprintf(&b, "\n📊 Status: %s\n", status)
	if st.ErrorMessage != "" {
		fmt.Fprintf(&b, "❌ Error: %s\n", st.ErrorMessage)
	}

	if st.Plan != nil && *st.Plan != "" {
		fmt.Fprintf(&b, "\n📋 Plan:\n%s\n%s\n", c.rule("-"), c.RenderMarkdown(*st.Plan))
	}

	if len(st.CodeChanges) > 0 {
		fmt.Fprintf(&b, "\n💻 Code Implementation:\n%s\n", c.rule("-"))
		for i, code := range st.CodeChanges {
			fmt.Fprintf(&b, "\n--- Implementation %d ---\n%s\n", i+1, code)
		}
	}

	if len(st.FilesCreated) > 0 {
		fmt.Fprintf(&b, "\n📁 Files created:\n")
		for _, f := range st.FilesCreated {
			fmt.Fprintf(&b, "  %s\n", f)
		}
	}

	fmt.Fprintf(&b, "\n🔄 Total iterations: %d\n", st.IterationCount)

	if len(usage) > 0 {
		fmt.Fprintf(&b, "\n🧮 Model usage:\n")
		for _, u := range usage {
			fmt.Fprintf(&b, "  %-10s requests=%d failures=%d prompt_tokens=%d completion_tokens=%d time=%s\n",
				u.Role, u.Requests, u.Failures, u.PromptTokens, u.CompletionTokens, u.TotalDuration.Round(time.Millisecond))
		}
	}

	fmt.Fprintf(&b, "%s\n", c.rule("="))
	if st.Status == state.StatusError {
		fmt.Fprintf(&b, "❌ Failed\n")
	} else {
		fmt.Fprintf(&b, "✅ Complete!\n")
	}

	c.printf("%s", b.String())
}
