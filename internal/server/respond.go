package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/promptopt/internal/model"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind       model.Kind `json:"kind"`
	Message    string     `json:"message"`
	Fields     []string   `json:"fields,omitempty"`
	RetryAfter int        `json:"retry_after,omitempty"` // seconds, mirrors the Retry-After header
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the public form of err. Only the classified message and
// field list reach the client; wrapped causes are never serialized.
func writeError(w http.ResponseWriter, err error) {
	detail := errorDetail{Kind: model.KindOf(err), Message: "internal error"}

	var e *model.Error
	if errors.As(err, &e) && e.Kind != model.KindInternal {
		detail.Message = e.Message
		detail.Fields = e.Fields
	}

	if retry := model.RetryAfterOf(err); retry > 0 || detail.Kind == model.KindRateLimited {
		detail.RetryAfter = retrySeconds(retry)
		w.Header().Set("Retry-After", strconv.Itoa(detail.RetryAfter))
	}
	writeJSON(w, statusFor(err), errorBody{Error: detail})
}

// statusFor maps an error kind to its HTTP status code.
func statusFor(err error) int {
	switch model.KindOf(err) {
	case model.KindValidation:
		return http.StatusUnprocessableEntity
	case model.KindRateLimited, model.KindRateLimitedUpstream:
		return http.StatusTooManyRequests
	case model.KindAuth:
		return http.StatusUnauthorized
	case model.KindForbiddenOrigin:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case model.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.KindUpstreamUnavailable:
		if model.HasKind(err, model.KindTimeout) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case model.KindMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// retrySeconds rounds up to whole seconds, minimum 1.
func retrySeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
