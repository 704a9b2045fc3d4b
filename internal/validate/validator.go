package validate

import (
	"strings"
	"unicode/utf8"

	"github.com/amishk599/promptopt/internal/model"
)

// Limits bounds the length, in runes, of inbound request fields.
type Limits struct {
	MaxTextLen     int
	MaxResponseLen int
	MaxAPIKeyLen   int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxTextLen:     8000,
		MaxResponseLen: 20000,
		MaxAPIKeyLen:   512,
	}
}

// Validator checks inbound requests against Limits. It has no side effects;
// api key validity is left to the provider.
type Validator struct {
	limits Limits
}

// New creates a Validator.
func New(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// fieldCheck accumulates offending wire field names.
type fieldCheck struct {
	bad []string
}

// text trims v and records name if it is empty or longer than max runes.
func (c *fieldCheck) text(name, v string, max int) string {
	v = strings.TrimSpace(v)
	if v == "" || (max > 0 && utf8.RuneCountInString(v) > max) {
		c.bad = append(c.bad, name)
	}
	return v
}

func (c *fieldCheck) err() error {
	if len(c.bad) == 0 {
		return nil
	}
	return model.NewValidationError(c.bad, "missing, empty or oversized fields")
}

// Score validates a score request and returns its normalized form.
func (v *Validator) Score(req model.ScoreRequest) (model.ScoreRequest, error) {
	var c fieldCheck
	out := model.ScoreRequest{
		Text:   c.text("text", req.Text, v.limits.MaxTextLen),
		APIKey: model.APIKey(c.text("api_key", req.APIKey.Reveal(), v.limits.MaxAPIKeyLen)),
	}
	return out, c.err()
}

// SuggestNext validates a suggest-next request.
func (v *Validator) SuggestNext(req model.SuggestRequest) (model.SuggestRequest, error) {
	var c fieldCheck
	out := model.SuggestRequest{
		LastPrompt:   c.text("last_prompt", req.LastPrompt, v.limits.MaxTextLen),
		LastResponse: c.text("last_response", req.LastResponse, v.limits.MaxResponseLen),
		APIKey:       model.APIKey(c.text("api_key", req.APIKey.Reveal(), v.limits.MaxAPIKeyLen)),
	}
	return out, c.err()
}

// InferMetadata validates an infer-metadata request.
func (v *Validator) InferMetadata(req model.MetadataRequest) (model.MetadataRequest, error) {
	var c fieldCheck
	out := model.MetadataRequest{
		Prompt: c.text("prompt", req.Prompt, v.limits.MaxTextLen),
		APIKey: model.APIKey(c.text("api_key", req.APIKey.Reveal(), v.limits.MaxAPIKeyLen)),
	}
	return out, c.err()
}
