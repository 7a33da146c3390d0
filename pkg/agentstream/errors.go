package agentstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind classifies stream failures. Every kind is handled the same way
// locally; the distinction is kept for user-facing messaging.
type ErrorKind string

const (
	ErrorNetwork     ErrorKind = "network"
	ErrorAuth        ErrorKind = "auth"
	ErrorRateLimit   ErrorKind = "rate_limit"
	ErrorServerError ErrorKind = "server_error"
	ErrorBadRequest  ErrorKind = "bad_request"
	ErrorUnknown     ErrorKind = "unknown"
)

// StreamError terminates the active message of a session.
type StreamError struct {
	Kind      ErrorKind
	Message   string
	Status    int
	MessageID string
}

func (e *StreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("[%s] status=%d %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// ParseErrorKind maps an `error` event type onto the taxonomy.
func ParseErrorKind(s string) ErrorKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "network", "connection", "timeout":
		return ErrorNetwork
	case "auth", "unauthorized", "forbidden", "authentication":
		return ErrorAuth
	case "rate_limit", "rate_limited", "too_many_requests", "quota":
		return ErrorRateLimit
	case "server_error", "internal", "internal_error", "overloaded", "unavailable":
		return ErrorServerError
	case "bad_request", "invalid_request", "validation":
		return ErrorBadRequest
	default:
		return ErrorUnknown
	}
}

// ClassifyStatus maps an HTTP status code onto the taxonomy.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorAuth
	case status == http.StatusTooManyRequests:
		return ErrorRateLimit
	case status == http.StatusRequestTimeout:
		return ErrorNetwork
	case status >= 500:
		return ErrorServerError
	case status >= 400:
		return ErrorBadRequest
	default:
		return ErrorUnknown
	}
}

// ClassifyError maps a transport error onto the taxonomy. Errors exposing
// HTTPStatus() are classified by status.
func ClassifyError(err error) *StreamError {
	if err == nil {
		return nil
	}
	var se *StreamError
	if errors.As(err, &se) {
		return se
	}

	out := &StreamError{Kind: ErrorUnknown, Message: err.Error()}

	var withStatus interface{ HTTPStatus() int }
	if errors.As(err, &withStatus) {
		out.Status = withStatus.HTTPStatus()
		out.Kind = ClassifyStatus(out.Status)
		return out
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = ErrorNetwork
	case errors.As(err, &netErr):
		out.Kind = ErrorNetwork
	default:
		lower := strings.ToLower(err.Error())
		switch {
		case strings.Contains(lower, "connection refused"),
			strings.Contains(lower, "connection reset"),
			strings.Contains(lower, "unexpected eof"),
			strings.Contains(lower, "no such host"):
			out.Kind = ErrorNetwork
		case strings.Contains(lower, "rate limit"), strings.Contains(lower, "too many requests"):
			out.Kind = ErrorRateLimit
		}
	}
	return out
}
