package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/amishk599/promptopt/internal/llm"
	"github.com/amishk599/promptopt/internal/model"
)

// Recorder observes provider calls. Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveLLMCall(provider string, kind model.Kind, elapsed time.Duration)
	IncLLMRetry(provider string, kind model.Kind)
}

type nopRecorder struct{}

func (nopRecorder) ObserveLLMCall(string, model.Kind, time.Duration) {}
func (nopRecorder) IncLLMRetry(string, model.Kind)                   {}

// Policy configures the Gateway.
type Policy struct {
	Timeout         time.Duration // per attempt
	Delay           time.Duration // wait before the single retry
	MaxUpstreamWait time.Duration // longest provider Retry-After honoured before retrying
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:         20 * time.Second,
		Delay:           250 * time.Millisecond,
		MaxUpstreamWait: 2 * time.Second,
	}
}

// Gateway is a decorator that bounds every provider call with a timeout and
// retries a transient failure exactly once before surfacing it.
type Gateway struct {
	inner    llm.Provider
	policy   Policy
	logger   *slog.Logger
	recorder Recorder
}

// NewGateway wraps a provider with the timeout and retry-once policy.
// recorder may be nil.
func NewGateway(inner llm.Provider, policy Policy, logger *slog.Logger, recorder Recorder) *Gateway {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Gateway{
		inner:    inner,
		policy:   policy,
		logger:   logger,
		recorder: recorder,
	}
}

// Invoke sends inst to the provider with the caller's key and returns the raw reply.
func (g *Gateway) Invoke(ctx context.Context, inst model.Instruction, key model.APIKey) (string, error) {
	delay := &hintBackOff{base: g.policy.Delay}
	policy := backoff.WithContext(backoff.WithMaxRetries(delay, 1), ctx)

	attempt := 0
	op := func() (string, error) {
		attempt++
		reply, err := g.attempt(ctx, inst, key)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return "", backoff.Permanent(err)
		}
		if !isRetryable(err) {
			return "", backoff.Permanent(err)
		}
		if model.KindOf(err) == model.KindRateLimitedUpstream {
			wait := model.RetryAfterOf(err)
			if wait > g.policy.MaxUpstreamWait {
				return "", backoff.Permanent(err)
			}
			delay.hint = wait
		}
		return "", err
	}

	notify := func(err error, wait time.Duration) {
		kind := model.KindOf(err)
		g.recorder.IncLLMRetry(g.inner.Name(), kind)
		g.logger.Warn("retrying llm call after transient error",
			"provider", g.inner.Name(),
			"task", inst.Task,
			"attempt", attempt,
			"delay", wait,
			"kind", kind,
			"error", err,
		)
	}

	reply, err := backoff.RetryNotifyWithData(op, policy, notify)
	if err != nil {
		return "", g.surface(ctx, err)
	}
	return reply, nil
}

func (g *Gateway) attempt(ctx context.Context, inst model.Instruction, key model.APIKey) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.policy.Timeout)
	defer cancel()

	start := time.Now()
	reply, err := g.inner.Complete(attemptCtx, inst, key)
	g.recorder.ObserveLLMCall(g.inner.Name(), model.KindOf(err), time.Since(start))
	return reply, err
}

// surface maps the final error to what callers see. Transient failures that
// survived the retry become upstream_unavailable, keeping the cause in the chain.
func (g *Gateway) surface(ctx context.Context, err error) error {
	switch model.KindOf(err) {
	case model.KindTimeout, model.KindTransport:
		return model.NewError(model.KindUpstreamUnavailable, "the LLM provider is unavailable, try again later", err)
	case model.KindInternal:
		// backoff returns the bare context error when cancelled while waiting.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return model.NewError(model.KindUpstreamUnavailable, "request cancelled before the LLM provider replied", err)
		}
	}
	return err
}

// isRetryable returns true if the error represents a transient failure worth one more attempt.
func isRetryable(err error) bool {
	switch model.KindOf(err) {
	case model.KindTimeout, model.KindTransport, model.KindRateLimitedUpstream:
		return true
	default:
		return false
	}
}

// hintBackOff waits base between attempts unless the provider supplied a
// shorter-than-cap Retry-After, which takes precedence.
type hintBackOff struct {
	base time.Duration
	hint time.Duration
}

func (b *hintBackOff) NextBackOff() time.Duration {
	if b.hint > 0 {
		return b.hint
	}
	return b.base
}

func (b *hintBackOff) Reset() { b.hint = 0 }
