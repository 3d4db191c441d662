// internal/tui/prompter.go
//
// Every question the CLI asks runs as its own short bubbletea program. The
// caller blocks until the user answers, so the booking flow stays a plain
// sequence of Go calls while input handling follows The Elm Architecture.

package tui

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

var (
	// ErrAborted is returned when the user leaves a prompt with ctrl+c or esc.
	ErrAborted = errors.New("tui: prompt aborted")
	// ErrPrompt is returned when a prompt cannot run at all, e.g. without a
	// terminal. Asking again will fail the same way.
	ErrPrompt = errors.New("tui: prompt unavailable")
)

// Prompter asks the user questions. Implementations must re-ask on invalid
// input rather than return an error.
type Prompter interface {
	// Number asks for an integer in [min, max].
	Number(label string, min, max int) (int, error)
	// Confirm asks a yes/no question.
	Confirm(label string) (bool, error)
	// Text asks for a free-form line. Secret input is masked.
	Text(label string, secret bool) (string, error)
}

// ParseChoice validates a typed menu selection.
func ParseChoice(input string, min, max int) (int, error) {
	trimmed := strings.TrimSpace(input)
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("please enter a valid number")
	}
	if value < min || value > max {
		if min == max {
			return 0, fmt.Errorf("please enter %d", min)
		}
		return 0, fmt.Errorf("please enter a number between %d and %d", min, max)
	}
	return value, nil
}

// TerminalOption customizes a Terminal prompter.
type TerminalOption func(*Terminal)

// WithInput overrides the reader used for key input.
func WithInput(r io.Reader) TerminalOption {
	return func(t *Terminal) {
		if r != nil {
			t.in = r
		}
	}
}

// WithOutput overrides the writer prompts render to.
func WithOutput(w io.Writer) TerminalOption {
	return func(t *Terminal) {
		if w != nil {
			t.out = w
		}
	}
}

// Terminal is the interactive Prompter backed by bubbletea.
type Terminal struct {
	in  io.Reader
	out io.Writer
}

// NewTerminal builds a prompter. Without options it uses the process TTY.
func NewTerminal(opts ...TerminalOption) *Terminal {
	t := &Terminal{}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Number implements Prompter.
func (t *Terminal) Number(label string, min, max int) (int, error) {
	final, err := t.run(newNumberModel(label, min, max))
	if err != nil {
		return 0, err
	}
	m := final.(numberModel)
	if m.aborted {
		return 0, ErrAborted
	}
	return m.value, nil
}

// Confirm implements Prompter.
func (t *Terminal) Confirm(label string) (bool, error) {
	final, err := t.run(newConfirmModel(label))
	if err != nil {
		return false, err
	}
	m := final.(confirmModel)
	if m.aborted {
		return false, ErrAborted
	}
	return m.value, nil
}

// Text implements Prompter.
func (t *Terminal) Text(label string, secret bool) (string, error) {
	final, err := t.run(newTextModel(label, secret))
	if err != nil {
		return "", err
	}
	m := final.(textModel)
	if m.aborted {
		return "", ErrAborted
	}
	return m.value, nil
}

func (t *Terminal) run(model tea.Model) (tea.Model, error) {
	var opts []tea.ProgramOption
	if t.in != nil {
		opts = append(opts, tea.WithInput(t.in))
	}
	if t.out != nil {
		opts = append(opts, tea.WithOutput(t.out))
	}
	final, err := tea.NewProgram(model, opts...).Run()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrompt, err)
	}
	return final, nil
}

// Guard wraps p so that every failure other than ErrAborted is reported as
// ErrPrompt, whatever the underlying prompter returns.
func Guard(p Prompter) Prompter {
	if p == nil {
		return nil
	}
	if g, ok := p.(guarded); ok {
		return g
	}
	return guarded{p}
}

type guarded struct {
	Prompter
}

func (g guarded) Number(label string, min, max int) (int, error) {
	n, err := g.Prompter.Number(label, min, max)
	return n, promptErr(err)
}

func (g guarded) Confirm(label string) (bool, error) {
	ok, err := g.Prompter.Confirm(label)
	return ok, promptErr(err)
}

func (g guarded) Text(label string, secret bool) (string, error) {
	s, err := g.Prompter.Text(label, secret)
	return s, promptErr(err)
}

func promptErr(err error) error {
	if err == nil || errors.Is(err, ErrAborted) || errors.Is(err, ErrPrompt) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPrompt, err)
}
