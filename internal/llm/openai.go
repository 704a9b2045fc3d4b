package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/amishk599/promptopt/internal/model"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIProvider struct {
	baseURL string
	model   string
	client  *resty.Client
}

// NewOpenAIProvider creates a provider targeting an OpenAI-compatible API.
func NewOpenAIProvider(baseURL, modelName string, httpClient *http.Client) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   modelName,
		client:  resty.NewWithClient(httpClient),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// chatRequest mirrors the /chat/completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature int           `json:"temperature"`
	MaxTokens   int64         `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse mirrors the relevant fields of a successful response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends inst and returns the first choice's content.
func (p *OpenAIProvider) Complete(ctx context.Context, inst model.Instruction, key model.APIKey) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if inst.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: inst.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: inst.Prompt})

	var result chatResponse
	var apiErr chatError
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(key.Reveal()).
		SetBody(chatRequest{
			Model:       p.model,
			Messages:    messages,
			Temperature: 0,
			MaxTokens:   inst.MaxTokens,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post(p.baseURL + "/chat/completions")
	if err != nil {
		return "", classifyTransport(p.Name(), err)
	}

	if resp.IsError() {
		cause := fmt.Errorf("%s: %s", apiErr.Error.Type, apiErr.Error.Message)
		if code := resp.StatusCode(); code == http.StatusUnauthorized || code == http.StatusForbidden {
			// Auth messages echo part of the key.
			cause = fmt.Errorf("credentials rejected (%s)", apiErr.Error.Type)
		}
		return "", classifyStatus(p.Name(), resp.StatusCode(), parseRetryAfter(resp.Header().Get("Retry-After")), cause)
	}

	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", model.NewMalformedError("openai reply contained no choices")
	}
	return result.Choices[0].Message.Content, nil
}
