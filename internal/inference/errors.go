package inference

import (
	"errors"
	"fmt"
)

// Configuration failure reasons.
const (
	ReasonMissingCredential   = "missing_credential"
	ReasonMalformedCredential = "malformed_credential"
)

// Upstream failure kinds.
const (
	KindUnauthorized    = "unauthorized"
	KindRateLimited     = "rate_limited"
	KindUpstreamFailure = "upstream_failure"
)

// genericUpstreamMessage is used when the service gives no message of its own.
const genericUpstreamMessage = "Failed to get response from AI"

// ConfigurationError is a setup problem detected before any network call.
// It is never retried and is meant for the operator, not the learner.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	switch e.Reason {
	case ReasonMissingCredential:
		return "inference credential not configured (set OPENAI_API_KEY)"
	case ReasonMalformedCredential:
		return fmt.Sprintf("inference credential is malformed (expected %q prefix)", credentialPrefix)
	default:
		return "inference configuration error: " + e.Reason
	}
}

// UpstreamError is a non-success outcome of the single outbound call.
type UpstreamError struct {
	Kind       string
	Detail     string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Kind
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the underlying client error, if any.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ErrorKind returns the reason or kind tag for a gateway error, or "" when err
// did not come from the gateway.
func ErrorKind(err error) string {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr.Reason
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Kind
	}
	return ""
}
