package model

import "log/slog"

// APIKey is the caller's own LLM provider credential. It is passed explicitly
// through the call chain and never stored; its string and log forms are redacted.
type APIKey string

// Reveal returns the raw credential for the outbound provider call.
func (k APIKey) Reveal() string { return string(k) }

func (k APIKey) String() string { return "[redacted]" }

// LogValue keeps the key out of slog output.
func (k APIKey) LogValue() slog.Value { return slog.StringValue("[redacted]") }

// ScoreRequest asks for a quality score, a rewrite and the inferred goal of a prompt.
type ScoreRequest struct {
	Text   string
	APIKey APIKey
}

// ScoreResult is the output contract of the score task.
type ScoreResult struct {
	Score   int    `json:"score"` // 0..100
	Rewrite string `json:"rewrite"`
	Goal    string `json:"goal"`
}

// SuggestRequest asks for follow-up prompts given the last exchange.
type SuggestRequest struct {
	LastPrompt   string
	LastResponse string
	APIKey       APIKey
}

// SuggestResult holds ordered, distinct follow-up prompts.
type SuggestResult struct {
	Suggestions []string `json:"suggestions"`
}

// MetadataRequest asks for a title and category for a prompt.
type MetadataRequest struct {
	Prompt string
	APIKey APIKey
}

// MetadataResult is the output contract of the infer-metadata task.
type MetadataResult struct {
	Title    string `json:"title"`
	Category string `json:"category"`
}

// Task identifies which instruction template and output contract apply.
type Task string

const (
	TaskScore         Task = "score"
	TaskSuggestNext   Task = "suggest_next"
	TaskInferMetadata Task = "infer_metadata"
)

// Instruction is the single outbound payload sent to the LLM for one task.
type Instruction struct {
	Task      Task
	System    string
	Prompt    string
	MaxTokens int64
}
