package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/panelkit/runtime/cli/client"
)

// InspectModel is a Bubble Tea model for the inspect_panel view.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{viewType: viewType, data: data}
}

func (m InspectModel) Init() tea.Cmd { return nil }

func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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

func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "inspect_panel":
		content = m.renderInspectPanel()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectPanel() string {
	data, ok := m.data.(*PanelInspection)
	if !ok {
		return "Invalid data type for inspect_panel"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Panel Details"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"ID", data.Info.ID},
		{"Kind", data.Info.Kind},
		{"Title", data.Info.Title},
		{"Status", data.Info.Status},
		{"Clients", fmt.Sprintf("%d", data.Info.ClientCount)},
		{"Created At", data.Info.CreatedAt.Format("2006-01-02 15:04:05")},
		{"Last Activity", data.Info.LastActivity.Format("2006-01-02 15:04:05")},
	}
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render(row[0]+":"),
			StateStyle(data.Info.Status).Render(row[1])))
	}

	b.WriteString("\n")
	b.WriteString(TitleStyle.Render("State"))
	b.WriteString("\n\n")
	if len(data.State) == 0 {
		b.WriteString(ValueStyle.Render("(no state slots)"))
	}
	for k, v := range data.State {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render(k+":"),
			ValueStyle.Render(fmt.Sprintf("%v", v))))
	}

	return b.String()
}

// PanelInspection bundles a panel's metadata and live state, the
// payload for the inspect_panel view.
type PanelInspection struct {
	Info  client.PanelInfo
	State map[string]any
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (fallback
// for non-TTY output).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return BoxStyle.Render(model.View())
}
