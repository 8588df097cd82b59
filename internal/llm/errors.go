package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// rawPreviewLimit caps how much of an offending model response is echoed
// back in error messages.
const rawPreviewLimit = 500

// ErrUpstream is a non-transient failure reported by the model provider,
// e.g. bad credentials, exhausted quota or a rejected request.
type ErrUpstream struct {
	StatusCode int
	Err        error
}

func (e *ErrUpstream) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("LLM provider error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("LLM provider error: %v", e.Err)
}

func (e *ErrUpstream) Unwrap() error { return e.Err }

// ErrRateLimit indicates the provider returned a rate limit error (429).
type ErrRateLimit struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrInvalidResponse indicates the LLM returned content that is not the
// JSON that was asked for.
type ErrInvalidResponse struct {
	Content string
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	if e.Content == "" {
		return fmt.Sprintf("invalid LLM response: %v", e.Err)
	}
	return fmt.Sprintf("invalid LLM response: %v (raw: %s)", e.Err, Preview(e.Content))
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates the provider is down or unreachable.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM provider unavailable: %v", e.Err)
	}
	return "LLM provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// ErrMaxTokensExceeded indicates the response was truncated because it
// hit the MaxTokens limit.
type ErrMaxTokensExceeded struct {
	Content string
}

func (e *ErrMaxTokensExceeded) Error() string {
	return "LLM response truncated: max tokens exceeded"
}

// ErrUnsupported is returned when a provider lacks a capability, such as
// media input or chat sessions.
var ErrUnsupported = errors.New("operation not supported by this provider")

// IsUpstream reports whether err is a transport, auth or quota failure
// from the model provider.
func IsUpstream(err error) bool {
	var up *ErrUpstream
	var rl *ErrRateLimit
	var unavail *ErrProviderUnavailable
	return errors.As(err, &up) || errors.As(err, &rl) || errors.As(err, &unavail)
}

// Classification bases reported by ClassifyTransient.
const (
	BasisStructured = "structured"
	BasisHeuristic  = "heuristic"
	BasisNone       = ""
)

// transientMarkers are substrings of provider error text that signal a
// network flake when no structured classification is available.
var transientMarkers = []string{"unavailable", "recvmsg", "address"}

// ClassifyTransient decides whether err is worth retrying. Typed provider
// errors are classified structurally; anything else falls back to matching
// known network-flake markers in the error text. basis tells the caller
// which rule decided.
func ClassifyTransient(err error) (transient bool, basis string) {
	if err == nil {
		return false, BasisNone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, BasisStructured
	}

	var rl *ErrRateLimit
	if errors.As(err, &rl) {
		return true, BasisStructured
	}
	var unavail *ErrProviderUnavailable
	if errors.As(err, &unavail) {
		return true, BasisStructured
	}
	var up *ErrUpstream
	if errors.As(err, &up) {
		return false, BasisStructured
	}
	var inv *ErrInvalidResponse
	if errors.As(err, &inv) {
		return false, BasisStructured
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true, BasisHeuristic
		}
	}
	return false, BasisHeuristic
}

// Preview truncates s to the first 500 characters for diagnostics.
func Preview(s string) string {
	r := []rune(s)
	if len(r) <= rawPreviewLimit {
		return s
	}
	return string(r[:rawPreviewLimit]) + "..."
}
