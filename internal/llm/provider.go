// Package llm reaches the external LLM provider with the caller's own key and
// classifies every failure into the model.Error taxonomy.
package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/amishk599/promptopt/internal/model"
)

// Provider sends one instruction to an LLM and returns the raw reply text.
// The key is used for this call only and is never retained.
type Provider interface {
	Name() string
	Complete(ctx context.Context, inst model.Instruction, key model.APIKey) (string, error)
}

// Settings selects and configures a provider.
type Settings struct {
	Provider string // "anthropic" or "openai"
	BaseURL  string // empty uses the provider default
	Model    string
}

// DefaultModel is used for the anthropic provider when no model is configured.
const DefaultModel = "claude-3-haiku-20240307"

// NewProvider builds the configured provider on top of httpClient.
func NewProvider(s Settings, httpClient *http.Client) (Provider, error) {
	switch s.Provider {
	case "", "anthropic":
		m := s.Model
		if m == "" {
			m = DefaultModel
		}
		return NewAnthropicProvider(s.BaseURL, m, httpClient), nil
	case "openai":
		if s.Model == "" {
			return nil, fmt.Errorf("llm.model is required for the openai provider")
		}
		return NewOpenAIProvider(s.BaseURL, s.Model, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", s.Provider)
	}
}
