package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the stable, machine-readable category of a pipeline failure.
// Its string value is part of the HTTP error contract.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindRateLimited         Kind = "rate_limited"
	KindAuth                Kind = "auth_error"
	KindRateLimitedUpstream Kind = "rate_limited_upstream"
	KindTimeout             Kind = "timeout"
	KindTransport           Kind = "transport_error"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindMalformedResponse   Kind = "malformed_upstream_response"
	KindForbiddenOrigin     Kind = "forbidden_origin"
	KindNotFound            Kind = "not_found"
	KindMethodNotAllowed    Kind = "method_not_allowed"
	KindPayloadTooLarge     Kind = "payload_too_large"
	KindInternal            Kind = "internal_error"
)

// Error is the classified error returned by every pipeline stage.
// Message is safe to show to callers; Err may carry provider detail and is
// only ever logged.
type Error struct {
	Kind       Kind
	Message    string
	Fields     []string      // offending request fields (validation only)
	RetryAfter time.Duration // zero if unknown
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " (fields: %s)", strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error of the given kind.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NewValidationError reports the request fields that failed validation.
func NewValidationError(fields []string, message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// NewRateLimitedError is returned when local admission denies a client.
func NewRateLimitedError(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    "too many requests, slow down",
		RetryAfter: retryAfter,
	}
}

// NewMalformedError is returned when an upstream reply violates the output contract.
func NewMalformedError(format string, args ...any) *Error {
	return &Error{Kind: KindMalformedResponse, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in err's chain.
// Unclassified errors are reported as KindInternal; nil yields "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HasKind reports whether any classified error in err's chain has kind k.
func HasKind(err error, k Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == k {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// RetryAfterOf returns the first non-zero retry hint in err's chain.
func RetryAfterOf(err error) time.Duration {
	for err != nil {
		if e, ok := err.(*Error); ok && e.RetryAfter > 0 {
			return e.RetryAfter
		}
		err = errors.Unwrap(err)
	}
	return 0
}

// HTTPError wraps an upstream HTTP status code so classification can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}
