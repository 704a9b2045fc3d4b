package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))

type spinnerTickMsg struct{}

func tick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

type loadDoneMsg[T any] struct {
	result T
	err    error
}

type loaderModel[T any] struct {
	label  string
	fn     func(ctx context.Context) (T, error)
	ctx    context.Context
	cancel context.CancelFunc
	frame  int
	result T
	err    error
	done   bool
}

func (m loaderModel[T]) Init() tea.Cmd {
	return tea.Batch(m.run(), tick())
}

func (m loaderModel[T]) run() tea.Cmd {
	fn, ctx := m.fn, m.ctx
	return func() tea.Msg {
		result, err := fn(ctx)
		return loadDoneMsg[T]{result: result, err: err}
	}
}

func (m loaderModel[T]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadDoneMsg[T]:
		m.result = msg.result
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case spinnerTickMsg:
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, tick()
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancel()
			m.done = true
			m.err = fmt.Errorf("cancelled")
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m loaderModel[T]) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s %s...\n", spinnerStyle.Render(spinnerFrames[m.frame]), m.label)
}

// RunLoader shows a spinner while fn runs. It renders inline (no alt screen).
// ctrl+c cancels the context passed to fn.
func RunLoader[T any](ctx context.Context, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := loaderModel[T]{label: label, fn: fn, ctx: ctx, cancel: cancel}
	result, err := tea.NewProgram(m).Run()
	if err != nil {
		var zero T
		return zero, err
	}
	final := result.(loaderModel[T])
	return final.result, final.err
}
