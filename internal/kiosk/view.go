package kiosk

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorDimmed = lipgloss.Color("#6b7280")
	colorBright = lipgloss.Color("#f9fafb")
	colorDanger = lipgloss.Color("#ef4444")
	colorMatch  = lipgloss.Color("#16a34a")
	colorBorder = lipgloss.Color("#4b5563")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorBright)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDimmed)
	messageStyle = lipgloss.NewStyle().Foreground(colorDanger)
	nameStyle    = lipgloss.NewStyle().Foreground(colorMatch)
)

// View renders the kiosk.
func (m Model) View() string {
	width := m.width
	if width < 40 {
		width = 40
	}

	var b strings.Builder

	title := titleStyle.Render(fmt.Sprintf("Attendance kiosk · class %d", m.target))
	if m.runID != "" {
		title += dimStyle.Render("  run " + shortID(m.runID))
	}
	b.WriteString(title + "\n\n")

	status := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.state.Color)).
		Foreground(lipgloss.Color(m.state.Color)).
		Bold(true).
		Padding(1, 4).
		Width(width - 2).
		Align(lipgloss.Center).
		Render(m.state.Label)
	b.WriteString(status + "\n")

	if m.message != "" {
		b.WriteString(messageStyle.Render(m.message) + "\n")
	}

	b.WriteString("\n" + titleStyle.Render("Recent matches") + "\n")
	if len(m.recent) == 0 {
		b.WriteString(dimStyle.Render("  none yet") + "\n")
	}
	for _, r := range m.recent {
		line := "  " + nameStyle.Render(r.SubjectName) + dimStyle.Render(fmt.Sprintf("  d=%.3f", r.Distance))
		if r.AlreadyMarked {
			line += dimStyle.Render("  already marked")
		}
		b.WriteString(line + "\n")
	}

	if m.cues > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("\n%d recognized, last: %s", m.cues, m.last)) + "\n")
	}

	b.WriteString("\n" + m.helpView())
	return b.String()
}

func (m Model) helpView() string {
	parts := make([]string, 0, len(m.keys.bindings()))
	for _, kb := range m.keys.bindings() {
		h := kb.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	sep := lipgloss.NewStyle().Foreground(colorBorder).Render(" · ")
	return dimStyle.Render(strings.Join(parts, sep))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
