package display

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"openswe/pkg/sanitize"
	"openswe/pkg/state"
)

// maxPreviewLines caps the live reasoning preview of one step.
const maxPreviewLines = 10

// thinkingPreview prints the first reasoning block of a streamed reply line by
// line as lines complete, up to maxPreviewLines.
type thinkingPreview struct {
	console   *Console
	buf       strings.Builder
	step      state.StepName
	shown     int
	announced bool
	truncated bool
	finished  bool
}

func newThinkingPreview(c *Console, step state.StepName) *thinkingPreview {
	return &thinkingPreview{console: c, step: step}
}

// OnChunk implements llm.StreamObserver.
func (p *thinkingPreview) OnChunk(content string) {
	p.buf.WriteString(content)
	p.update(false)
}

// OnDone implements llm.StreamObserver.
func (p *thinkingPreview) OnDone() {
	p.update(true)
	text := p.buf.String()
	if sanitize.HasOpenReasoning(text) {
		p.console.printf("      %s\n", p.console.paint(lipgloss.NewStyle().Foreground(grey).Italic(true), "(reasoning was not closed)"))
	}
	if p.announced {
		p.console.printf("\n")
	}
}

func (p *thinkingPreview) update(final bool) {
	if p.finished {
		return
	}
	text := p.buf.String()
	start := strings.Index(text, sanitize.OpenTag)
	if start < 0 {
		return
	}

	if !p.announced {
		p.announced = true
		rs := styleFor(p.step)
		header := "💭 " + strings.TrimSuffix(rs.title, " Agent") + " Thinking (live)"
		p.console.printf("   %s\n", p.console.paint(lipgloss.NewStyle().Foreground(rs.color), header))
	}

	body := text[start+len(sanitize.OpenTag):]
	closed := false
	if end := strings.Index(body, sanitize.CloseTag); end >= 0 {
		body = body[:end]
		closed = true
	}

	lines := strings.Split(body, "\n")
	complete := len(lines) - 1
	if closed || final {
		complete = len(lines)
	}

	for p.shown < maxPreviewLines && p.shown < complete {
		if line := strings.TrimSpace(lines[p.shown]); line != "" {
			p.console.printf("      %s\n", line)
		}
		p.shown++
	}

	if !p.truncated && p.shown == maxPreviewLines && len(lines) > maxPreviewLines {
		if more := strings.TrimSpace(strings.Join(lines[maxPreviewLines:], "\n")); more != "" {
			p.truncated = true
			p.console.printf("      ... (truncated)\n")
		}
	}

	if closed || p.truncated {
		p.finished = true
	}
}
