package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/amishk599/promptopt/internal/model"
)

// AnthropicProvider calls the Anthropic Messages API through the official SDK.
// The client carries no credential; the caller's key is attached per request.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates a provider. An empty baseURL uses the SDK default.
func NewAnthropicProvider(baseURL, modelName string, httpClient *http.Client) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
		// Never fall back to a process-wide token picked up from the environment.
		option.WithHeaderDel("Authorization"),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  modelName,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete sends inst as a single user message and returns the concatenated text blocks.
func (p *AnthropicProvider) Complete(ctx context.Context, inst model.Instruction, key model.APIKey) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   inst.MaxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(inst.Prompt)),
		},
	}
	if inst.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: inst.System}}
	}

	message, err := p.client.Messages.New(ctx, params, option.WithAPIKey(key.Reveal()))
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			var retryAfter time.Duration
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return "", classifyStatus(p.Name(), apiErr.StatusCode, retryAfter, err)
		}
		return "", classifyTransport(p.Name(), err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		switch block := block.AsAny().(type) {
		case anthropic.TextBlock:
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", model.NewMalformedError("anthropic reply contained no text")
	}
	return b.String(), nil
}
