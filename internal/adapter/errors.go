package adapter

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed failure taxonomy the Reasoning Loop reasons about.
// Adapter implementations MUST classify every provider-native error into one
// of these; nothing else should escape Chat.
type Kind string

const (
	KindAuth           Kind = "auth_error"
	KindRateLimited    Kind = "rate_limited"
	KindTimeout        Kind = "timeout"
	KindContextOverflow Kind = "context_overflow"
	KindUnavailable    Kind = "unavailable"
	KindMalformed      Kind = "malformed"
)

// ProviderError wraps a classified adapter failure. The Loop aborts the
// current turn on any ProviderError; it never retries on the core's behalf.
type ProviderError struct {
	Kind     Kind
	Provider string
	Model    string
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Provider, e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s]: %v", e.Provider, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s[%s]", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// IsKind reports whether err is a *ProviderError of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// classifyByMessage is the last-resort classifier for SDKs that surface
// failures as plain errors rather than typed status codes. Providers that
// expose richer error types (HTTP status, typed SDK errors) should classify
// from those first and only fall back to this for anything unrecognized.
func classifyByMessage(err error) Kind {
	if err == nil {
		return KindMalformed
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"), strings.Contains(msg, "authentication"):
		return KindAuth
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"), strings.Contains(msg, "too many requests"):
		return KindRateLimited
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"), strings.Contains(msg, "context canceled"):
		return KindTimeout
	case strings.Contains(msg, "context length"), strings.Contains(msg, "maximum context"), strings.Contains(msg, "too many tokens"):
		return KindContextOverflow
	case strings.Contains(msg, "overloaded"), strings.Contains(msg, "unavailable"), strings.Contains(msg, "503"), strings.Contains(msg, "502"):
		return KindUnavailable
	default:
		return KindMalformed
	}
}

// NewProviderError builds a classified ProviderError from a raw cause.
func NewProviderError(provider, model string, cause error) *ProviderError {
	return &ProviderError{
		Kind:     classifyByMessage(cause),
		Provider: provider,
		Model:    model,
		Message:  cause.Error(),
		Cause:    cause,
	}
}
