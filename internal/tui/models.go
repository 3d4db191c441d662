package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// numberModel keeps asking until the input parses into [min, max].
type numberModel struct {
	label   string
	min     int
	max     int
	input   textinput.Model
	errMsg  string
	value   int
	done    bool
	aborted bool
}

func newNumberModel(label string, min, max int) numberModel {
	in := textinput.New()
	in.Prompt = "> "
	in.CharLimit = 6
	in.Focus()
	return numberModel{label: label, min: min, max: max, input: in}
}

func (m numberModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m numberModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		case tea.KeyEnter:
			value, err := ParseChoice(m.input.Value(), m.min, m.max)
			if err != nil {
				m.errMsg = err.Error()
				m.input.Reset()
				return m, nil
			}
			m.value = value
			m.done = true
			m.errMsg = ""
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m numberModel) View() string {
	if m.done || m.aborted {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.label))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.errMsg != "" {
		b.WriteString(errorStyle.Render(m.errMsg))
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render("enter to confirm · esc to quit"))
	b.WriteString("\n")
	return b.String()
}

// confirmModel answers yes only to "y"; any other key means no.
type confirmModel struct {
	label   string
	value   bool
	done    bool
	aborted bool
}

func newConfirmModel(label string) confirmModel {
	return confirmModel{label: label}
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.aborted = true
		return m, tea.Quit
	case tea.KeyRunes:
		m.value = strings.EqualFold(string(key.Runes), "y")
	default:
		m.value = false
	}
	m.done = true
	return m, tea.Quit
}

func (m confirmModel) View() string {
	if m.done || m.aborted {
		return ""
	}
	return titleStyle.Render(m.label) + " " + mutedStyle.Render("(y/n)") + "\n"
}

// textModel reads one non-empty line.
type textModel struct {
	label   string
	input   textinput.Model
	errMsg  string
	value   string
	done    bool
	aborted bool
}

func newTextModel(label string, secret bool) textModel {
	in := textinput.New()
	in.Prompt = "> "
	if secret {
		in.EchoMode = textinput.EchoPassword
		in.EchoCharacter = '•'
	}
	in.Focus()
	return textModel{label: label, input: in}
}

func (m textModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m textModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		case tea.KeyEnter:
			value := strings.TrimSpace(m.input.Value())
			if value == "" {
				m.errMsg = "a value is required"
				return m, nil
			}
			m.value = value
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m textModel) View() string {
	if m.done || m.aborted {
		return ""
	}
	view := titleStyle.Render(m.label) + "\n" + m.input.View() + "\n"
	if m.errMsg != "" {
		view += errorStyle.Render(m.errMsg) + "\n"
	}
	return view
}
