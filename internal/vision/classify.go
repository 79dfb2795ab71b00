package vision

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the closed set of analysis failure classifications.
type Kind int

const (
	KindUnknown Kind = iota
	KindNoCredential
	KindInvalidCredential
	KindRateLimitLocal
	KindRateLimitRemote
	KindNetworkTransient
	KindRequestRejected
	KindMalformedResponse
	KindImageInvalid
)

// String returns the stable name of a kind.
func (k Kind) String() string {
	switch k {
	case KindNoCredential:
		return "no_credential"
	case KindInvalidCredential:
		return "invalid_credential_format"
	case KindRateLimitLocal:
		return "rate_limit_local"
	case KindRateLimitRemote:
		return "rate_limit_remote"
	case KindNetworkTransient:
		return "network_transient"
	case KindRequestRejected:
		return "request_rejected"
	case KindMalformedResponse:
		return "malformed_response"
	case KindImageInvalid:
		return "image_invalid"
	default:
		return "unknown"
	}
}

// Error is a classified analysis failure. Status and RetryAfter carry
// enough context for retry-vs-fail decisions upstream.
type Error struct {
	Kind       Kind
	Status     int           // HTTP status when one was received
	RetryAfter time.Duration // from a 429 Retry-After header, if present
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d)", e.Kind, e.Status)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// newError builds a classified error.
func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// classifyStatus maps a non-2xx provider status to a kind.
func classifyStatus(status int) Kind {
	switch {
	case status == 429:
		return KindRateLimitRemote
	case status >= 500:
		return KindNetworkTransient
	case status >= 400:
		return KindRequestRejected
	default:
		return KindUnknown
	}
}

// ParseRetryAfter parses a Retry-After header value as seconds, a Go
// duration, or an HTTP date.
func ParseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if t, err := time.Parse(time.RFC1123, value); err == nil {
		return time.Until(t)
	}
	return 0
}
