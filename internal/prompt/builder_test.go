package prompt

import (
	"strings"
	"testing"

	"github.com/amishk599/promptopt/internal/model"
)

func TestDetectGoal(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"My script throws an error on startup", "debug or fix code"},
		{"Write a python function to parse CSV", "generate or write code"},
		{"Give me a TL;DR of this paper", "summarize text or content"},
		{"Draft an email to my landlord", "write an email or message"},
		{"Write a blog post about hiking", "write an article or essay"},
		{"Compose a poem", "write or create content"},
		{"Explain quantum computing", "learn or understand a concept"},
		{"Rust vs Go for CLIs", "compare ideas or options"},
		{"Translate this into French", "translate text"},
		{"Make a roadmap for learning piano", "create a plan or outline"},
		{"hello there", "general reasoning or assistance"},
	}
	for _, tt := range tests {
		if got := DetectGoal(tt.text); got != tt.want {
			t.Errorf("DetectGoal(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestBuilder_Score(t *testing.T) {
	b := NewBuilder(DefaultMaxTokens())
	inst, err := b.Score(model.ScoreRequest{Text: "Explain quantum computing", APIKey: "sk-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inst.Task != model.TaskScore {
		t.Errorf("Task = %q", inst.Task)
	}
	if inst.MaxTokens != 500 {
		t.Errorf("MaxTokens = %d, want 500", inst.MaxTokens)
	}
	for _, want := range []string{
		"Explain quantum computing",
		"learn or understand a concept",
		model.MarkerScore, model.MarkerGoal, model.MarkerRewrite, model.MarkerRewriteEnd,
		"from 0 to 100",
	} {
		if !strings.Contains(inst.Prompt, want) {
			t.Errorf("instruction missing %q:\n%s", want, inst.Prompt)
		}
	}
	if strings.Contains(inst.Prompt, "sk-secret") || strings.Contains(inst.System, "sk-secret") {
		t.Error("api key must never be embedded in the instruction")
	}
}

func TestBuilder_SuggestNextTruncatesContext(t *testing.T) {
	b := NewBuilder(DefaultMaxTokens())
	long := strings.Repeat("a", maxContextRunes) + strings.Repeat("b", 100)

	inst, err := b.SuggestNext(model.SuggestRequest{LastPrompt: "Explain quantum computing", LastResponse: long})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(inst.Prompt, "b") && strings.Contains(inst.Prompt, strings.Repeat("b", 100)) {
		t.Error("response context should be truncated")
	}
	if !strings.Contains(inst.Prompt, strings.Repeat("a", maxContextRunes)) {
		t.Error("truncated context should keep the first runes")
	}
	if inst.MaxTokens != 400 {
		t.Errorf("MaxTokens = %d, want 400", inst.MaxTokens)
	}
	if !strings.Contains(inst.Prompt, "exactly 2 numbered lines") {
		t.Errorf("instruction should request two numbered lines:\n%s", inst.Prompt)
	}
}

func TestBuilder_InferMetadata(t *testing.T) {
	b := NewBuilder(MaxTokens{InferMetadata: 99})
	inst, err := b.InferMetadata(model.MetadataRequest{Prompt: "Write a haiku about rain"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.MaxTokens != 99 {
		t.Errorf("MaxTokens = %d, want 99", inst.MaxTokens)
	}
	for _, want := range []string{model.MarkerTitle, model.MarkerCategory, "coding, writing, analysis, creative, other"} {
		if !strings.Contains(inst.Prompt, want) {
			t.Errorf("instruction missing %q", want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 2); got != "hé" {
		t.Errorf("truncateRunes = %q, want hé", got)
	}
	if got := truncateRunes("hi", 5); got != "hi" {
		t.Errorf("truncateRunes = %q, want hi", got)
	}
}
