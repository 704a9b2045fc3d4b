package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/promptopt/internal/model"
)

// classifyStatus maps a non-success provider status code to a classified error.
func classifyStatus(provider string, status int, retryAfter time.Duration, cause error) error {
	httpErr := &model.HTTPError{StatusCode: status, RetryAfter: retryAfter, Err: cause}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.NewError(model.KindAuth, "the LLM provider rejected the api key", httpErr)
	case status == http.StatusTooManyRequests:
		e := model.NewError(model.KindRateLimitedUpstream, "the LLM provider is rate limiting this api key", httpErr)
		e.RetryAfter = retryAfter
		return e
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return model.NewError(model.KindTimeout, fmt.Sprintf("%s did not reply in time", provider), httpErr)
	case status >= 500:
		return model.NewError(model.KindTransport, fmt.Sprintf("%s returned a server error", provider), httpErr)
	default:
		return model.NewError(model.KindUpstreamUnavailable, fmt.Sprintf("%s refused the request", provider), httpErr)
	}
}

// classifyTransport maps a failure that produced no HTTP response.
func classifyTransport(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewError(model.KindTimeout, fmt.Sprintf("%s did not reply in time", provider), err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.NewError(model.KindTimeout, fmt.Sprintf("%s did not reply in time", provider), err)
	}
	return model.NewError(model.KindTransport, fmt.Sprintf("could not reach %s", provider), err)
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
