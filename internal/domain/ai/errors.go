package ai

import (
	"errors"
	"net/http"
)

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// CallError is any failure talking to the completion service: transport,
// authentication, rate limiting, timeout or an empty completion.
type CallError struct {
	StatusCode int
	Err        error
}

func (e *CallError) Error() string { return e.Err.Error() }

func (e *CallError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrQuotaExceeded) match a 429 from the provider.
func (e *CallError) Is(target error) bool {
	return target == ErrQuotaExceeded && e.StatusCode == http.StatusTooManyRequests
}

// ParseError means the completion arrived but no JSON document could be recovered from it.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "failed to parse AI response: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }
