// Package apperr defines the error taxonomy shared by every pipeline stage,
// the repositories and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Kind classifies an error for propagation and retry decisions.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindExternalUnavailable Kind = "external_unavailable"
	KindInvalidResponse     Kind = "invalid_response"
	KindDuplicateConflict   Kind = "duplicate_conflict"
	KindInternal            Kind = "internal"
)

// Error is a classified error. Op names the operation that failed,
// Message is safe to show to callers, Err carries the underlying detail.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(string(e.Kind))
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

// New builds a classified error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrapf classifies err with a caller-facing message.
func Wrapf(kind Kind, op string, err error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or KindInternal when none is present.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether a collaborator signalled a transient failure.
func Retryable(err error) bool {
	return IsKind(err, KindExternalUnavailable)
}

// HTTPStatus maps a kind to the status code surfaced to callers.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateConflict:
		return http.StatusConflict
	case KindExternalUnavailable:
		return http.StatusServiceUnavailable
	case KindInvalidResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var (
	urlPattern    = regexp.MustCompile(`https?://\S+`)
	secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|token|secret|password|bearer)\s*[=:]?\s*\S+`)
	idPattern     = regexp.MustCompile(`\b(id|ID)\s*[=:]?\s*\d+\b`)
	pathPattern   = regexp.MustCompile(`(?:/[\w.\-]+){2,}`)
)

// Sanitize renders err for an external caller: the caller-facing message
// when one was set, otherwise the error text with URLs, secrets, internal
// ids and filesystem paths removed.
func Sanitize(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return scrub(e.Message)
	}
	return scrub(err.Error())
}

func scrub(s string) string {
	s = urlPattern.ReplaceAllString(s, "[url]")
	s = secretPattern.ReplaceAllString(s, "[redacted]")
	s = idPattern.ReplaceAllString(s, "[id]")
	s = pathPattern.ReplaceAllString(s, "[path]")
	return strings.TrimSpace(s)
}
