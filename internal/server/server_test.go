package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/promptopt/internal/config"
	"github.com/amishk599/promptopt/internal/metrics"
	"github.com/amishk599/promptopt/internal/model"
	"github.com/amishk599/promptopt/internal/orchestrator"
	"github.com/amishk599/promptopt/internal/prompt"
	"github.com/amishk599/promptopt/internal/ratelimit"
	"github.com/amishk599/promptopt/internal/validate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() Options {
	return Options{
		Addr:                 "127.0.0.1:0",
		ReadTimeout:          time.Second,
		WriteTimeout:         5 * time.Second,
		ShutdownTimeout:      time.Second,
		MaxBodyBytes:         1 << 10,
		AllowedOriginSchemes: []string{"chrome-extension", "moz-extension"},
	}
}

// fakeService returns canned results or a fixed error and records the last client id.
type fakeService struct {
	err      error
	clientID string
	key      model.APIKey
}

func (f *fakeService) Score(_ context.Context, clientID string, req model.ScoreRequest) (model.ScoreResult, error) {
	f.clientID, f.key = clientID, req.APIKey
	if f.err != nil {
		return model.ScoreResult{}, f.err
	}
	return model.ScoreResult{Score: 64, Rewrite: "You are a tutor. " + req.Text, Goal: "learn"}, nil
}

func (f *fakeService) SuggestNext(_ context.Context, clientID string, _ model.SuggestRequest) (model.SuggestResult, error) {
	f.clientID = clientID
	if f.err != nil {
		return model.SuggestResult{}, f.err
	}
	return model.SuggestResult{Suggestions: []string{"first", "second"}}, nil
}

func (f *fakeService) InferMetadata(_ context.Context, clientID string, _ model.MetadataRequest) (model.MetadataResult, error) {
	f.clientID = clientID
	if f.err != nil {
		return model.MetadataResult{}, f.err
	}
	return model.MetadataResult{Title: "Quantum Basics", Category: "analysis"}, nil
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealth(t *testing.T) {
	s := New(testOptions(), &fakeService{err: errors.New("down")}, nil, discardLogger())

	rec := do(t, s.Handler(), http.MethodGet, "/health", "", map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"prompt-optimizer-api"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestScore_Success(t *testing.T) {
	svc := &fakeService{}
	s := New(testOptions(), svc, nil, discardLogger())

	rec := do(t, s.Handler(), http.MethodPost, "/score", `{"text":"Explain quantum computing","api_key":"sk-user"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.EqualValues(t, 64, got["score"])
	assert.Equal(t, "learn", got["goal"])
	assert.NotEmpty(t, got["rewrite"])
	assert.Equal(t, "sk-user", svc.key.Reveal())
	assert.Equal(t, "192.0.2.1", svc.clientID) // httptest default RemoteAddr
}

func TestSuggestNextAndInferMetadata(t *testing.T) {
	s := New(testOptions(), &fakeService{}, nil, discardLogger())

	rec := do(t, s.Handler(), http.MethodPost, "/suggest-next", `{"last_prompt":"p","last_response":"r","api_key":"k"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"suggestions":["first","second"]}`, rec.Body.String())

	rec = do(t, s.Handler(), http.MethodPost, "/infer-metadata", `{"prompt":"p","api_key":"k"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"title":"Quantum Basics","category":"analysis"}`, rec.Body.String())
}

func TestDecode_MissingFields(t *testing.T) {
	s := New(testOptions(), &fakeService{}, nil, discardLogger())

	rec := do(t, s.Handler(), http.MethodPost, "/suggest-next", `{"last_prompt":"p"}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	detail := decodeError(t, rec)
	assert.Equal(t, model.KindValidation, detail.Kind)
	assert.Equal(t, []string{"api_key", "last_response"}, detail.Fields)
}

func TestDecode_BadBody(t *testing.T) {
	s := New(testOptions(), &fakeService{}, nil, discardLogger())

	for _, body := range []string{`not json`, `{"text": 5, "api_key": "k"}`} {
		rec := do(t, s.Handler(), http.MethodPost, "/score", body, nil)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
		assert.Equal(t, []string{"body"}, decodeError(t, rec).Fields)
	}
}

func TestDecode_BodyTooLarge(t *testing.T) {
	s := New(testOptions(), &fakeService{}, nil, discardLogger())

	rec := do(t, s.Handler(), http.MethodPost, "/score", `{"text":"`+strings.Repeat("x", 2000)+`","api_key":"k"}`, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	detail := decodeError(t, rec)
	assert.Equal(t, model.KindPayloadTooLarge, detail.Kind)
	assert.Contains(t, detail.Message, "1024 bytes")
	assert.Empty(t, detail.Fields)
}

func TestErrorMapping(t *testing.T) {
	timeout := model.NewError(model.KindTimeout, "slow", nil)
	transport := model.NewError(model.KindTransport, "reset", nil)
	upstreamRL := model.NewError(model.KindRateLimitedUpstream, "provider throttled", nil)
	upstreamRL.RetryAfter = 12 * time.Second

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   model.Kind
		wantRetry  string
	}{
		{"validation", model.NewValidationError([]string{"text"}, "bad"), 422, model.KindValidation, ""},
		{"rate limited", model.NewRateLimitedError(41500 * time.Millisecond), 429, model.KindRateLimited, "42"},
		{"auth", model.NewError(model.KindAuth, "bad key", nil), 401, model.KindAuth, ""},
		{"upstream rate limited", upstreamRL, 429, model.KindRateLimitedUpstream, "12"},
		{"unavailable after timeout", model.NewError(model.KindUpstreamUnavailable, "down", timeout), 504, model.KindUpstreamUnavailable, ""},
		{"unavailable after transport", model.NewError(model.KindUpstreamUnavailable, "down", transport), 502, model.KindUpstreamUnavailable, ""},
		{"malformed", model.NewMalformedError("no score"), 502, model.KindMalformedResponse, ""},
		{"unclassified", errors.New("secret internals"), 500, model.KindInternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(testOptions(), &fakeService{err: tt.err}, nil, discardLogger())
			rec := do(t, s.Handler(), http.MethodPost, "/score", `{"text":"t","api_key":"k"}`, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantKind, decodeError(t, rec).Kind)
			assert.Equal(t, tt.wantRetry, rec.Header().Get("Retry-After"))
			if tt.wantRetry != "" {
				assert.Equal(t, tt.wantRetry, strconv.Itoa(decodeError(t, rec).RetryAfter))
			} else {
				assert.Zero(t, decodeError(t, rec).RetryAfter)
			}
			assert.NotContains(t, rec.Body.String(), "secret internals")
		})
	}
}

func TestOriginFilter(t *testing.T) {
	s := New(testOptions(), &fakeService{}, nil, discardLogger())
	body := `{"prompt":"p","api_key":"k"}`

	rec := do(t, s.Handler(), http.MethodPost, "/infer-metadata", body, map[string]string{"Origin": "chrome-extension://abcdef"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chrome-extension://abcdef", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, s.Handler(), http.MethodPost, "/infer-metadata", body, map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, model.KindForbiddenOrigin, decodeError(t, rec).Kind)

	rec = do(t, s.Handler(), http.MethodOptions, "/score", "", map[string]string{"Origin": "moz-extension://xyz"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestMethodAndPathErrors(t *testing.T) {
	s := New(testOptions(), &fakeService{}, nil, discardLogger())

	rec := do(t, s.Handler(), http.MethodGet, "/score", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, s.Handler(), http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClientIdentity(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/score", nil)
	r.RemoteAddr = "203.0.113.9:51234"
	r.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")

	assert.Equal(t, "203.0.113.9", clientIdentity(r, false))
	assert.Equal(t, "198.51.100.4", clientIdentity(r, true))

	r.Header.Set("X-Forwarded-For", "garbage")
	assert.Equal(t, "203.0.113.9", clientIdentity(r, true))
}

// scriptedGateway replies with a fixed, well-formed reply per task.
type scriptedGateway struct{}

func (scriptedGateway) Invoke(_ context.Context, inst model.Instruction, _ model.APIKey) (string, error) {
	switch inst.Task {
	case model.TaskSuggestNext:
		return "1. Ask for a worked example\n2. Ask for a summary table", nil
	case model.TaskInferMetadata:
		return "TITLE: Quantum Basics\nCATEGORY: analysis", nil
	default:
		return "SCORE: 70\nGOAL: learn\nREWRITE:\nAct as a tutor.\nEND_REWRITE", nil
	}
}

func newPipelineServer(t *testing.T, opts Options) *Server {
	t.Helper()
	orch := orchestrator.New(
		validate.New(validate.DefaultLimits()),
		ratelimit.NewWindowLimiter(10, time.Minute),
		prompt.NewBuilder(prompt.DefaultMaxTokens()),
		scriptedGateway{},
		5,
		nil,
		discardLogger(),
	)
	return New(opts, orch, nil, discardLogger())
}

func TestSuggestNext_MultibyteFieldsAtLimit(t *testing.T) {
	cfg := config.Default()
	opts := testOptions()
	opts.MaxBodyBytes = cfg.Server.MaxBodyBytes
	s := newPipelineServer(t, opts)

	lastPrompt := strings.Repeat("漢", 2000)
	lastResponse := strings.Repeat("漢", cfg.Limits.MaxResponseLen)

	raw, err := json.Marshal(map[string]string{
		"last_prompt":   lastPrompt,
		"last_response": lastResponse,
		"api_key":       "k",
	})
	require.NoError(t, err)
	// Same fields with every rune written as a \u escape.
	escaped := `{"last_prompt":"` + strings.Repeat(`\u6f22`, 2000) +
		`","last_response":"` + strings.Repeat(`\u6f22`, cfg.Limits.MaxResponseLen) +
		`","api_key":"k"}`

	// Runes outside the BMP escaped as surrogate pairs, 12 bytes each.
	surrogates := `{"last_prompt":"` + strings.Repeat(`\ud83d\ude00`, 2000) +
		`","last_response":"` + strings.Repeat(`\ud83d\ude00`, cfg.Limits.MaxResponseLen) +
		`","api_key":"k"}`

	for name, body := range map[string]string{"utf8": string(raw), "escaped": escaped, "surrogates": surrogates} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, s.Handler(), http.MethodPost, "/suggest-next", body, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.JSONEq(t, `{"suggestions":["Ask for a worked example","Ask for a summary table"]}`, rec.Body.String())
		})
	}
}

func TestSuggestNext_MultibyteFieldOverLimitNamesField(t *testing.T) {
	cfg := config.Default()
	opts := testOptions()
	opts.MaxBodyBytes = cfg.Server.MaxBodyBytes
	s := newPipelineServer(t, opts)

	raw, err := json.Marshal(map[string]string{
		"last_prompt":   "p",
		"last_response": strings.Repeat("漢", cfg.Limits.MaxResponseLen+1),
		"api_key":       "k",
	})
	require.NoError(t, err)

	rec := do(t, s.Handler(), http.MethodPost, "/suggest-next", string(raw), nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, model.KindValidation, detail.Kind)
	assert.Equal(t, []string{"last_response"}, detail.Fields)
}

func TestEndToEnd_RateLimitAndMetrics(t *testing.T) {
	limiter := ratelimit.NewWindowLimiter(10, time.Minute)
	m := metrics.New(limiter.Len)
	orch := orchestrator.New(
		validate.New(validate.DefaultLimits()),
		limiter,
		prompt.NewBuilder(prompt.DefaultMaxTokens()),
		scriptedGateway{},
		5,
		m,
		discardLogger(),
	)
	s := New(testOptions(), orch, m, discardLogger())

	for i := 1; i <= 10; i++ {
		rec := do(t, s.Handler(), http.MethodPost, "/score", `{"text":"Explain quantum computing","api_key":"k"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
	rec := do(t, s.Handler(), http.MethodPost, "/score", `{"text":"Explain quantum computing","api_key":"k"}`, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, model.KindRateLimited, decodeError(t, rec).Kind)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Health is unaffected by the rate limit.
	rec = do(t, s.Handler(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s.Handler(), http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `promptopt_http_requests_total{route="/score",status="429"} 1`)
	assert.Contains(t, rec.Body.String(), `promptopt_rate_limit_denials_total 1`)
}

func TestServe_GracefulShutdown(t *testing.T) {
	s := New(testOptions(), &fakeService{}, nil, discardLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
