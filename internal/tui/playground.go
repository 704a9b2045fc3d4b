package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/promptopt/internal/model"
)

// playgroundClient is the rate-limit identity used by the local playground.
const playgroundClient = "playground"

// Pipeline is the subset of the orchestrator the playground drives.
type Pipeline interface {
	Score(ctx context.Context, clientID string, req model.ScoreRequest) (model.ScoreResult, error)
	SuggestNext(ctx context.Context, clientID string, req model.SuggestRequest) (model.SuggestResult, error)
	InferMetadata(ctx context.Context, clientID string, req model.MetadataRequest) (model.MetadataResult, error)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))
)

type scoredMsg struct {
	result model.ScoreResult
	err    error
}

type suggestedMsg struct {
	result model.SuggestResult
	err    error
}

type metadataMsg struct {
	result model.MetadataResult
	err    error
}

type playgroundModel struct {
	pipeline Pipeline
	key      model.APIKey
	timeout  time.Duration

	input  textarea.Model
	output viewport.Model
	width  int
	height int

	busy  string // label of the in-flight call, empty when idle
	frame int

	lastScore *model.ScoreResult
	sections  []string // rendered results, newest first
}

func newPlaygroundModel(p Pipeline, key model.APIKey, timeout time.Duration) playgroundModel {
	ta := textarea.New()
	ta.Placeholder = "Type a prompt to score..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.Focus()

	return playgroundModel{
		pipeline: p,
		key:      key,
		timeout:  timeout,
		input:    ta,
		output:   viewport.New(80, 10),
	}
}

func (m playgroundModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m playgroundModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		return m, nil

	case spinnerTickMsg:
		if m.busy == "" {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, tick()

	case scoredMsg:
		m.busy = ""
		if msg.err != nil {
			m.push(RenderError(msg.err))
			return m, nil
		}
		m.lastScore = &msg.result
		m.push(RenderScore(msg.result, m.output.Width))
		return m, nil

	case suggestedMsg:
		m.busy = ""
		if msg.err != nil {
			m.push(RenderError(msg.err))
			return m, nil
		}
		m.push(RenderSuggestions(msg.result, m.output.Width))
		return m, nil

	case metadataMsg:
		m.busy = ""
		if msg.err != nil {
			m.push(RenderError(msg.err))
			return m, nil
		}
		m.push(RenderMetadata(msg.result))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+s":
			return m.start("Scoring", m.scoreCmd())
		case "ctrl+t":
			return m.start("Inferring title", m.metadataCmd())
		case "ctrl+n":
			if m.lastScore == nil {
				m.push(hintStyle.Render("score a prompt first, suggestions build on its rewrite"))
				return m, nil
			}
			return m.start("Suggesting follow-ups", m.suggestCmd())
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.output, cmd = m.output.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// start launches cmd unless a call is already in flight or the input is empty.
func (m playgroundModel) start(label string, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	if m.busy != "" {
		return m, nil
	}
	if strings.TrimSpace(m.input.Value()) == "" {
		m.push(hintStyle.Render("nothing to send, type a prompt first"))
		return m, nil
	}
	m.busy = label
	m.frame = 0
	return m, tea.Batch(cmd, tick())
}

func (m playgroundModel) scoreCmd() tea.Cmd {
	p, key, timeout, text := m.pipeline, m.key, m.timeout, m.input.Value()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		r, err := p.Score(ctx, playgroundClient, model.ScoreRequest{Text: text, APIKey: key})
		return scoredMsg{result: r, err: err}
	}
}

func (m playgroundModel) metadataCmd() tea.Cmd {
	p, key, timeout, text := m.pipeline, m.key, m.timeout, m.input.Value()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		r, err := p.InferMetadata(ctx, playgroundClient, model.MetadataRequest{Prompt: text, APIKey: key})
		return metadataMsg{result: r, err: err}
	}
}

// suggestCmd treats the last rewrite as the response to the typed prompt.
func (m playgroundModel) suggestCmd() tea.Cmd {
	p, key, timeout, text := m.pipeline, m.key, m.timeout, m.input.Value()
	rewrite := m.lastScore.Rewrite
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		r, err := p.SuggestNext(ctx, playgroundClient, model.SuggestRequest{
			LastPrompt:   text,
			LastResponse: rewrite,
			APIKey:       key,
		})
		return suggestedMsg{result: r, err: err}
	}
}

func (m *playgroundModel) push(section string) {
	m.sections = append([]string{section}, m.sections...)
	m.output.SetContent(strings.Join(m.sections, "\n\n"))
	m.output.GotoTop()
}

func (m *playgroundModel) recalcLayout() {
	innerWidth := max(m.width-4, 20)
	inputHeight := 6
	outputHeight := max(m.height-inputHeight-8, 3)

	m.input.SetWidth(innerWidth)
	m.input.SetHeight(inputHeight)
	m.output.Width = innerWidth
	m.output.Height = outputHeight
}

func (m playgroundModel) View() string {
	status := "ctrl+s score  ctrl+t title  ctrl+n next  pgup/pgdn scroll  esc quit"
	if m.busy != "" {
		status = spinnerStyle.Render(spinnerFrames[m.frame]) + " " + m.busy + "..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Prompt playground"),
		paneStyle.Render(m.input.View()),
		paneStyle.Render(m.output.View()),
		statusBarStyle.Render(status),
	)
}

// RunPlayground launches the interactive playground in the alternate screen.
// Each call is bounded by timeout.
func RunPlayground(p Pipeline, key model.APIKey, timeout time.Duration) error {
	_, err := tea.NewProgram(newPlaygroundModel(p, key, timeout), tea.WithAltScreen()).Run()
	return err
}
