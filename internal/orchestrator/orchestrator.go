package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amishk599/promptopt/internal/model"
	"github.com/amishk599/promptopt/internal/parse"
	"github.com/amishk599/promptopt/internal/prompt"
	"github.com/amishk599/promptopt/internal/ratelimit"
	"github.com/amishk599/promptopt/internal/validate"
)

// Admitter decides whether a client may make another request.
type Admitter interface {
	Admit(clientID string) ratelimit.Decision
}

// Gateway performs one outbound LLM exchange with the caller's key.
type Gateway interface {
	Invoke(ctx context.Context, inst model.Instruction, key model.APIKey) (string, error)
}

// DenialRecorder counts local admission denials. May be nil.
type DenialRecorder interface {
	IncDenial()
}

// Orchestrator owns the pipeline for the three public operations:
// validate → admit → build → invoke → parse.
type Orchestrator struct {
	validator      *validate.Validator
	admitter       Admitter
	builder        *prompt.Builder
	gateway        Gateway
	maxSuggestions int
	denials        DenialRecorder
	logger         *slog.Logger
}

// New creates an orchestrator wired with all its dependencies.
func New(
	validator *validate.Validator,
	admitter Admitter,
	builder *prompt.Builder,
	gateway Gateway,
	maxSuggestions int,
	denials DenialRecorder,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		validator:      validator,
		admitter:       admitter,
		builder:        builder,
		gateway:        gateway,
		maxSuggestions: maxSuggestions,
		denials:        denials,
		logger:         logger,
	}
}

// Score rates a prompt, rewrites it and names its goal.
func (o *Orchestrator) Score(ctx context.Context, clientID string, req model.ScoreRequest) (model.ScoreResult, error) {
	req, err := o.validator.Score(req)
	if err != nil {
		return model.ScoreResult{}, err
	}
	if err := o.admit(clientID); err != nil {
		return model.ScoreResult{}, err
	}

	inst, err := o.builder.Score(req)
	if err != nil {
		return model.ScoreResult{}, buildError(err)
	}
	reply, err := o.gateway.Invoke(ctx, inst, req.APIKey)
	if err != nil {
		return model.ScoreResult{}, fmt.Errorf("score: %w", err)
	}
	result, err := parse.Score(reply)
	if err != nil {
		o.logger.Warn("unparseable score reply", "client", clientID, "error", err)
		return model.ScoreResult{}, fmt.Errorf("score: %w", err)
	}

	o.logger.Debug("scored prompt", "client", clientID, "score", result.Score, "goal", result.Goal)
	return result, nil
}

// SuggestNext proposes follow-up prompts for the last exchange.
func (o *Orchestrator) SuggestNext(ctx context.Context, clientID string, req model.SuggestRequest) (model.SuggestResult, error) {
	req, err := o.validator.SuggestNext(req)
	if err != nil {
		return model.SuggestResult{}, err
	}
	if err := o.admit(clientID); err != nil {
		return model.SuggestResult{}, err
	}

	inst, err := o.builder.SuggestNext(req)
	if err != nil {
		return model.SuggestResult{}, buildError(err)
	}
	reply, err := o.gateway.Invoke(ctx, inst, req.APIKey)
	if err != nil {
		return model.SuggestResult{}, fmt.Errorf("suggest next: %w", err)
	}
	result, err := parse.Suggestions(reply, o.maxSuggestions)
	if err != nil {
		o.logger.Warn("unparseable suggestion reply", "client", clientID, "error", err)
		return model.SuggestResult{}, fmt.Errorf("suggest next: %w", err)
	}

	o.logger.Debug("suggested follow-ups", "client", clientID, "count", len(result.Suggestions))
	return result, nil
}

// InferMetadata names and categorizes a prompt.
func (o *Orchestrator) InferMetadata(ctx context.Context, clientID string, req model.MetadataRequest) (model.MetadataResult, error) {
	req, err := o.validator.InferMetadata(req)
	if err != nil {
		return model.MetadataResult{}, err
	}
	if err := o.admit(clientID); err != nil {
		return model.MetadataResult{}, err
	}

	inst, err := o.builder.InferMetadata(req)
	if err != nil {
		return model.MetadataResult{}, buildError(err)
	}
	reply, err := o.gateway.Invoke(ctx, inst, req.APIKey)
	if err != nil {
		return model.MetadataResult{}, fmt.Errorf("infer metadata: %w", err)
	}
	result, err := parse.Metadata(reply)
	if err != nil {
		o.logger.Warn("unparseable metadata reply", "client", clientID, "error", err)
		return model.MetadataResult{}, fmt.Errorf("infer metadata: %w", err)
	}

	o.logger.Debug("inferred metadata", "client", clientID, "category", result.Category)
	return result, nil
}

func (o *Orchestrator) admit(clientID string) error {
	d := o.admitter.Admit(clientID)
	if d.Allowed {
		return nil
	}
	if o.denials != nil {
		o.denials.IncDenial()
	}
	o.logger.Info("rate limit exceeded", "client", clientID, "retry_after", d.RetryAfter)
	return model.NewRateLimitedError(d.RetryAfter)
}

func buildError(err error) error {
	return model.NewError(model.KindInternal, "could not build the LLM instruction", err)
}
