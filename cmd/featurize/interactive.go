package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const historySize = 5

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	pipeline *pipeline
	err      error
	history  [][]string
	input    textinput.Model
}

type featurizedMsg struct {
	err   error
	lines []string
}

func newInteractiveModel(p *pipeline) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = `{"decision": {"user": {"id": "u1"}, "articles": [{"id": "a1"}]}}`
	ti.Prompt = "record: "
	ti.Width = 80
	ti.CharLimit = maxLineSize
	ti.Focus()
	return &interactiveModel{pipeline: p, input: ti}
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *interactiveModel) featurize(line string) tea.Cmd {
	return func() tea.Msg {
		lines, err := m.pipeline.featurize([]byte(line))
		return featurizedMsg{lines: lines, err: err}
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			m.input.Reset()
			return m, m.featurize(line)
		}

	case featurizedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.history = append(m.history, msg.lines)
			if len(m.history) > historySize {
				m.history = m.history[len(m.history)-historySize:]
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Featurize"))
	b.WriteString(" decision records\n\n")

	for _, lines := range m.history {
		for _, l := range lines {
			b.WriteString(render(l, true))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter featurize • esc quit"))
	return b.String()
}

func runInteractive(p *pipeline) error {
	prog := tea.NewProgram(newInteractiveModel(p), tea.WithAltScreen())
	_, err := prog.Run()
	return err
}
