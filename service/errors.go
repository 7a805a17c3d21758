package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind tags an extraction failure at its origin so downstream code can
// branch on a value instead of re-parsing error text.
type ErrorKind string

const (
	KindQuotaExceeded       ErrorKind = "quota_exceeded"
	KindInvalidCredential   ErrorKind = "invalid_credential"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindValidationFailed    ErrorKind = "validation_failed"
)

// ExtractionError is the typed error produced by the extraction pipeline.
type ExtractionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError builds a tagged extraction error.
func NewExtractionError(kind ErrorKind, message string, cause error) *ExtractionError {
	return &ExtractionError{Kind: kind, Message: message, Err: cause}
}

// ValidationError reports every schema violation found in a model response.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "schema validation failed: " + strings.Join(e.Violations, "; ")
}

// KindOf returns the tagged kind of err. Untyped errors fall back to the
// message-substring heuristic so errors from foreign code still classify.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var exErr *ExtractionError
	if errors.As(err, &exErr) {
		return exErr.Kind
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return KindValidationFailed
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "quota"), strings.Contains(msg, "limit"):
		return KindQuotaExceeded
	case strings.Contains(msg, "api key"), strings.Contains(msg, "credential"), strings.Contains(msg, "401"):
		return KindInvalidCredential
	default:
		return ""
	}
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
