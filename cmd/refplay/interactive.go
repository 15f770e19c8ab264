package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	destroyedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA07A"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// historySize bounds the transcript kept on screen.
const historySize = 200

type interactiveModel struct {
	sess    *session
	out     *bytes.Buffer
	input   textinput.Model
	history []string
	height  int
}

func newInteractiveModel(budget uintptr) *interactiveModel {
	out := &bytes.Buffer{}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "make a 1"
	ti.Width = 60
	ti.Focus()

	return &interactiveModel{
		sess:   newSession(out, budget),
		out:    out,
		input:  ti,
		height: 24,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.sess.close()
			return m, tea.Quit

		case "enter":
			m.submit(m.input.Value())
			m.input.Reset()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.height = msg.Height
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) submit(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	m.append(commandStyle.Render("> " + line))

	if err := m.sess.exec(line); err != nil {
		m.collect()
		m.append(errorStyle.Render(fmt.Sprintf("Error: %v", err)))
		return
	}
	m.collect()
}

// collect moves session output into the history.
func (m *interactiveModel) collect() {
	for _, l := range strings.Split(strings.TrimRight(m.out.String(), "\n"), "\n") {
		if l == "" {
			continue
		}
		if strings.HasPrefix(l, "destroyed ") {
			m.append(destroyedStyle.Render(l))
		} else {
			m.append(resultStyle.Render(l))
		}
	}
	m.out.Reset()
}

func (m *interactiveModel) append(line string) {
	m.history = append(m.history, line)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Refcount Playground"))
	b.WriteString("\n\n")

	// title, blank line, input, blank line, help
	visible := m.height - 6
	if visible < 1 {
		visible = 1
	}
	start := 0
	if len(m.history) > visible {
		start = len(m.history) - visible
	}
	for _, l := range m.history[start:] {
		b.WriteString(l)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter run • help list commands • esc quit"))

	return b.String()
}

func runInteractive(budget uintptr) error {
	p := tea.NewProgram(newInteractiveModel(budget), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
