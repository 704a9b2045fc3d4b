package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/promptopt/internal/model"
)

func TestOpenAIProvider_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-caller", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"TITLE: Rain haiku\nCATEGORY: creative"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL+"/", "gpt-4o-mini", srv.Client())
	reply, err := p.Complete(context.Background(), testInstruction(), model.APIKey("sk-caller"))
	require.NoError(t, err)

	assert.Equal(t, "TITLE: Rain haiku\nCATEGORY: creative", reply)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.EqualValues(t, 500, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "Rate this prompt", got.Messages[1].Content)
}

func TestOpenAIProvider_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind model.Kind
	}{
		{"invalid key", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`, model.KindAuth},
		{"quota", http.StatusTooManyRequests, `{"error":{"message":"Rate limit","type":"requests"}}`, model.KindRateLimitedUpstream},
		{"server", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, model.KindTransport},
		{"no choices", http.StatusOK, `{"choices":[]}`, model.KindMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "3")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewOpenAIProvider(srv.URL, "gpt-4o-mini", srv.Client())
			_, err := p.Complete(context.Background(), testInstruction(), model.APIKey("sk-caller"))
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, model.KindOf(err))
			if tt.wantKind == model.KindRateLimitedUpstream {
				assert.Equal(t, 3*time.Second, model.RetryAfterOf(err))
			}
		})
	}
}

func TestOpenAIProvider_AuthErrorOmitsProviderMessage(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided: sk-cal***ller","type":"invalid_request_error"}}`))
		}))

		p := NewOpenAIProvider(srv.URL, "gpt-4o-mini", srv.Client())
		_, err := p.Complete(context.Background(), testInstruction(), model.APIKey("sk-caller"))
		srv.Close()

		require.Error(t, err)
		assert.Equal(t, model.KindAuth, model.KindOf(err))
		assert.NotContains(t, err.Error(), "sk-cal")
		assert.Contains(t, err.Error(), "invalid_request_error")
	}
}

func TestOpenAIProvider_ServerErrorKeepsProviderMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "gpt-4o-mini", srv.Client())
	_, err := p.Complete(context.Background(), testInstruction(), model.APIKey("sk-caller"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}
