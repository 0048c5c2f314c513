package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/louisbranch/webchat/internal/webchat/branch"
)

const (
	inputHeight  = 3
	chromeHeight = 2 // header and status lines
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	outgoingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	incomingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	systemStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	navStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func (m *Model) View() string {
	if !m.ready {
		return "starting..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render(m.headerLine()),
		m.viewport.View(),
		m.input.View(),
		statusStyle.Render(m.statusLine()),
	)
}

func (m *Model) headerLine() string {
	name := m.title
	for _, chat := range m.chats {
		if chat.ID == m.chatID && chat.Name != "" {
			name = chat.Name
		}
	}
	return name
}

func (m *Model) statusLine() string {
	parts := []string{m.state.String()}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	parts = append(parts, "ctrl+p/ctrl+n branches, esc quits")
	return strings.Join(parts, "  ")
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	lines := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		lines = append(lines, m.renderEntry(entry))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
}

// renderEntry formats one path entry: a speaker label, the text, and sibling
// position when the message sits on a branch point.
func (m *Model) renderEntry(entry branch.Entry) string {
	msg := entry.Message

	var style lipgloss.Style
	var label string
	switch {
	case msg.IsOutgoing == nil:
		style = systemStyle
		label = "system"
	case *msg.IsOutgoing:
		style = outgoingStyle
		label = "them"
		if msg.SenderName != "" {
			label = msg.SenderName
		}
	default:
		style = incomingStyle
		label = "you"
	}

	line := style.Render(label+": ") + msg.Text
	if entry.Nav != nil {
		line += " " + navStyle.Render(fmt.Sprintf("‹%d/%d›", entry.Nav.Current, entry.Nav.Total))
	}
	return line
}
