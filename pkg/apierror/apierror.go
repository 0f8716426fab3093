// Package apierror defines the error taxonomy shared by every outbound API
// call site. Errors carry a kind, an optional upstream HTTP status, and a
// human-readable message; callers match on kind with errors.Is against the
// package sentinels.
package apierror

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind classifies a failure of the governance layer.
type Kind string

const (
	// KindInvalidInput covers malformed identifiers, empty required lists,
	// and malformed token formats. Raised before any network call.
	KindInvalidInput Kind = "invalid_input"
	// KindRateLimited means admission was denied by a rate limiter.
	KindRateLimited Kind = "rate_limited"
	// KindCostLimit means a daily, monthly, or per-request spend ceiling
	// was reached.
	KindCostLimit Kind = "cost_limit_exceeded"
	// KindUnauthorized maps upstream 401 responses.
	KindUnauthorized Kind = "unauthorized"
	// KindForbidden maps upstream 403 responses.
	KindForbidden Kind = "forbidden"
	// KindNotFound maps upstream 404 responses.
	KindNotFound Kind = "not_found"
	// KindUpstream maps any other non-2xx upstream response.
	KindUpstream Kind = "upstream_error"
	// KindNetwork covers transport failures and timeouts.
	KindNetwork Kind = "network_error"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalidInput = &Error{Kind: KindInvalidInput}
	ErrRateLimited  = &Error{Kind: KindRateLimited}
	ErrCostLimit    = &Error{Kind: KindCostLimit}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrUpstream     = &Error{Kind: KindUpstream}
	ErrNetwork      = &Error{Kind: KindNetwork}
)

// Error is a typed failure. StatusCode is the upstream HTTP status when one
// was received, zero otherwise.
type Error struct {
	Kind       Kind   `json:"kind"`
	StatusCode int    `json:"status,omitempty"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports kind equality, so errors.Is(err, ErrRateLimited) matches any
// rate-limited error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New builds an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// upstreamBody covers the error payload shapes of the upstream APIs:
// Figma responds {"status":N,"err":"..."} or {"message":"..."}, OpenAI
// responds {"error":{"message":"..."}}.
type upstreamBody struct {
	Err     string `json:"err"`
	Message string `json:"message"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

// FromResponse maps a non-2xx upstream status and body to a typed error.
// The upstream error message is carried through when the body yields one;
// otherwise a generic message is synthesized from the status.
func FromResponse(status int, body []byte) *Error {
	message := ""
	var parsed upstreamBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Error.Message != "":
			message = parsed.Error.Message
		case parsed.Err != "":
			message = parsed.Err
		case parsed.Message != "":
			message = parsed.Message
		}
	}
	if message == "" {
		message = fmt.Sprintf("upstream returned %s", http.StatusText(status))
	}

	kind := KindUpstream
	switch status {
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	case http.StatusUnauthorized:
		kind = KindUnauthorized
	case http.StatusForbidden:
		kind = KindForbidden
	case http.StatusNotFound:
		kind = KindNotFound
	}
	return &Error{Kind: kind, StatusCode: status, Message: message}
}

// HTTPStatus returns the status code this layer's own HTTP surface responds
// with for an error of the given kind.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindCostLimit:
		return http.StatusPaymentRequired
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}
