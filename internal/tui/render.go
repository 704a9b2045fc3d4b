package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/promptopt/internal/model"
)

var (
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Width(10)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	rewriteBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	goodScoreStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))  // green
	midScoreStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")) // orange
	lowScoreStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")) // red
)

const barWidth = 20

// scoreBar renders a score as a colored bar, e.g. "██████░░░░ 62/100".
func scoreBar(score int) string {
	filled := clamp(score*barWidth/model.MaxScore, 0, barWidth)
	style := lowScoreStyle
	switch {
	case score >= 75:
		style = goodScoreStyle
	case score >= 50:
		style = midScoreStyle
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	return style.Render(fmt.Sprintf("%s %d/%d", bar, score, model.MaxScore))
}

// RenderScore formats a score result for the terminal, wrapping at width.
func RenderScore(r model.ScoreResult, width int) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Score") + scoreBar(r.Score) + "\n")
	b.WriteString(labelStyle.Render("Goal") + valueStyle.Render(r.Goal) + "\n\n")
	b.WriteString(labelStyle.Render("Rewrite") + "\n")
	b.WriteString(rewriteBoxStyle.Render(wrapLines(r.Rewrite, max(width-4, 20))))
	return b.String()
}

// RenderSuggestions formats follow-up suggestions as a numbered list.
func RenderSuggestions(r model.SuggestResult, width int) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Next") + "\n")
	for i, s := range r.Suggestions {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, valueStyle.Render(wordWrap(s, max(width-5, 20))))
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderMetadata formats a title and category.
func RenderMetadata(r model.MetadataResult) string {
	return labelStyle.Render("Title") + valueStyle.Render(r.Title) + "\n" +
		labelStyle.Render("Category") + valueStyle.Render(r.Category)
}

// RenderError formats a pipeline error with its kind.
func RenderError(err error) string {
	return errorStyle.Render(fmt.Sprintf("%s: ", model.KindOf(err))) + valueStyle.Render(publicMessage(err))
}

// publicMessage returns the classified message without wrapped causes.
func publicMessage(err error) string {
	var e *model.Error
	if errors.As(err, &e) {
		if len(e.Fields) > 0 {
			return fmt.Sprintf("%s (%s)", e.Message, strings.Join(e.Fields, ", "))
		}
		return e.Message
	}
	return err.Error()
}

// wrapLines word-wraps each line of text independently, keeping blank lines.
func wrapLines(text string, width int) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = wordWrap(l, width)
	}
	return strings.Join(lines, "\n")
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len([]rune(line))+1+len([]rune(w)) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
