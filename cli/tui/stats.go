package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/panelkit/runtime/cli/client"
)

// StatsModel is a Bubble Tea model for the stats_health view.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{viewType: viewType, data: data}
}

func (m StatsModel) Init() tea.Cmd { return nil }

func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "stats_health":
		content = m.renderStatsHealth()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsHealth() string {
	h, ok := m.data.(*client.Health)
	if !ok {
		return "Invalid data type for stats_health"
	}

	title := TitleStyle.Render(fmt.Sprintf("panelrund %s (%s)", h.Version, h.Status))

	boxes := []string{
		m.renderStatBox("Active", h.Panels.Active, successColor),
		m.renderStatBox("Suspended", h.Panels.Suspended, warningColor),
		m.renderStatBox("Sandboxes", h.Runtime.ActiveInstances, highlightColor),
		m.renderStatBox("Available", h.Runtime.AvailableInstances, mutedColor),
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
	detail := fmt.Sprintf("%s %.1fs\n%s %.0f%%\n%s %d bytes",
		LabelStyle.Render("Uptime:"), h.Uptime,
		LabelStyle.Render("Cache hit rate:"), h.Runtime.CacheHitRate*100,
		LabelStyle.Render("Memory:"), h.Runtime.MemoryBytes)

	return title + "\n\n" + body + "\n\n" + detail
}

func (m StatsModel) renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)
	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (fallback for
// non-TTY output).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return BoxStyle.Render(model.View())
}
