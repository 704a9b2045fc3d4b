package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/amishk599/promptopt/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Templates are parsed once at package init and shared read-only by every Builder.
var templates = template.Must(template.New("").ParseFS(templateFS, "templates/*.tmpl"))

// maxContextRunes bounds how much of the previous model response is quoted
// back in the suggest-next instruction.
const maxContextRunes = 1500

const systemPrompt = "You are a prompt engineering assistant. " +
	"Always answer in the exact line format requested, with no preamble and no closing remarks."

// MaxTokens caps the reply length for each task.
type MaxTokens struct {
	Score         int64
	SuggestNext   int64
	InferMetadata int64
}

// DefaultMaxTokens returns the per-task reply caps.
func DefaultMaxTokens() MaxTokens {
	return MaxTokens{Score: 500, SuggestNext: 400, InferMetadata: 150}
}

// Builder turns validated requests into LLM instructions. It holds no
// mutable state and is safe for concurrent use.
type Builder struct {
	maxTokens MaxTokens
}

// NewBuilder creates a Builder with the given reply caps.
func NewBuilder(maxTokens MaxTokens) *Builder {
	return &Builder{maxTokens: maxTokens}
}

// markers are exposed to every template so the instruction and the parser
// agree on one set of delimiters.
type markers struct {
	Score      string
	Goal       string
	Rewrite    string
	RewriteEnd string
	Title      string
	Category   string
}

var replyMarkers = markers{
	Score:      model.MarkerScore,
	Goal:       model.MarkerGoal,
	Rewrite:    model.MarkerRewrite,
	RewriteEnd: model.MarkerRewriteEnd,
	Title:      model.MarkerTitle,
	Category:   model.MarkerCategory,
}

type scoreData struct {
	M        markers
	Text     string
	GoalHint string
	MinScore int
	MaxScore int
}

type suggestData struct {
	M            markers
	LastPrompt   string
	LastResponse string
	Count        int
}

type metadataData struct {
	M          markers
	Prompt     string
	Categories string
}

// Score builds the score-and-rewrite instruction.
func (b *Builder) Score(req model.ScoreRequest) (model.Instruction, error) {
	return b.render(model.TaskScore, "score.tmpl", b.maxTokens.Score, scoreData{
		M:        replyMarkers,
		Text:     req.Text,
		GoalHint: DetectGoal(req.Text),
		MinScore: model.MinScore,
		MaxScore: model.MaxScore,
	})
}

// SuggestNext builds the follow-up suggestion instruction.
func (b *Builder) SuggestNext(req model.SuggestRequest) (model.Instruction, error) {
	return b.render(model.TaskSuggestNext, "suggest_next.tmpl", b.maxTokens.SuggestNext, suggestData{
		M:            replyMarkers,
		LastPrompt:   req.LastPrompt,
		LastResponse: truncateRunes(req.LastResponse, maxContextRunes),
		Count:        model.SuggestionCount,
	})
}

// InferMetadata builds the title-and-category instruction.
func (b *Builder) InferMetadata(req model.MetadataRequest) (model.Instruction, error) {
	return b.render(model.TaskInferMetadata, "infer_metadata.tmpl", b.maxTokens.InferMetadata, metadataData{
		M:          replyMarkers,
		Prompt:     req.Prompt,
		Categories: strings.Join(model.Categories, ", "),
	})
}

func (b *Builder) render(task model.Task, name string, maxTokens int64, data any) (model.Instruction, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return model.Instruction{}, fmt.Errorf("rendering %s instruction: %w", task, err)
	}
	return model.Instruction{
		Task:      task,
		System:    systemPrompt,
		Prompt:    buf.String(),
		MaxTokens: maxTokens,
	}, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
