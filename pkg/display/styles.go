// Package display renders run progress and results for the terminal.
package display

import (
	"github.com/charmbracelet/lipgloss"

	"openswe/pkg/state"
)

//nolint:gochecknoglobals // palette
var (
	purple = lipgloss.Color("#AF5FFF")
	blue   = lipgloss.Color("#2196F3")
	green  = lipgloss.Color("#8BC34A")
	yellow = lipgloss.Color("#FFC107")
	red    = lipgloss.Color("#E53935")
	grey   = lipgloss.Color("#8A8A8A")
)

type roleStyle struct {
	title string
	icon  string
	color lipgloss.Color
	style lipgloss.Style
}

func styleFor(step state.StepName) roleStyle {
	switch step {
	case state.StepManager:
		return roleStyle{title: "Manager Agent", icon: "👔", color: blue, style: roleBox(blue, lipgloss.RoundedBorder())}
	case state.StepPlanner:
		return roleStyle{title: "Planner Agent", icon: "📋", color: green, style: roleBox(green, lipgloss.DoubleBorder())}
	case state.StepProgrammer:
		return roleStyle{title: "Programmer Agent", icon: "💻", color: yellow, style: roleBox(yellow, lipgloss.ThickBorder())}
	}
	return roleStyle{title: string(step), icon: "🤖", color: grey, style: roleBox(grey, lipgloss.RoundedBorder())}
}

func roleBox(color lipgloss.Color, border lipgloss.Border) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(border).
		BorderForeground(color).
		Foreground(color).
		Bold(true).
		Padding(0, 1)
}

func statusColor(status state.Status) lipgloss.Color {
	switch status {
	case state.StatusComplete:
		return green
	case state.StatusError:
		return red
	}
	return yellow
}

const banner = `
 ██████╗ ██████╗ ███████╗███╗   ██╗      ███████╗██╗    ██╗███████╗
██╔═══██╗██╔══██╗██╔════╝████╗  ██║      ██╔════╝██║    ██║██╔════╝
██║   ██║██████╔╝█████╗  ██╔██╗ ██║█████╗███████╗██║ █╗ ██║█████╗
██║   ██║██╔═══╝ ██╔══╝  ██║╚██╗██║╚════╝╚════██║██║███╗██║██╔══╝
╚██████╔╝██║     ███████╗██║ ╚████║      ███████║╚███╔███╔╝███████╗
 ╚═════╝ ╚═╝     ╚══════╝╚═╝  ╚═══╝      ╚══════╝ ╚══╝╚══╝ ╚══════╝`
