package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

type Kind string

const (
	KindUnconfigured   Kind = "unconfigured"
	KindRateLimited    Kind = "rate_limited"
	KindAuthFailed     Kind = "auth_failed"
	KindTimeout        Kind = "timeout"
	KindTransient      Kind = "transient"
	KindInvalidRequest Kind = "invalid_request"
	KindCanceled       Kind = "canceled"
)

// Error is the only error type Client.Call returns.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind Kind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// KindOf reports the kind of an llm error, or "" for anything else.
func KindOf(err error) Kind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return ""
}

// IsRetryable is true only for transient failures and per-attempt timeouts.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindTimeout:
		return true
	}
	return false
}

// KindForStatus maps a provider HTTP status to an error kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuthFailed
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status >= 500:
		return KindTransient
	case status >= 400:
		return KindInvalidRequest
	}
	return KindTransient
}

// classifyTransportError handles failures that carry no HTTP status.
func classifyTransportError(provider string, err error) *Error {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, provider, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(KindCanceled, provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(KindTimeout, provider, err)
	}
	return NewError(KindTransient, provider, err)
}
