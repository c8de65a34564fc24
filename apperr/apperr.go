// Package apperr defines the failure kinds surfaced by the analysis and fix pipeline.
//
// Every core operation either returns a fully valid result or fails with exactly one
// of these kinds.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind identifies a class of pipeline failure
type Kind string

const (
	// AnalysisIncomplete means the model returned no payload, or one that failed validation, for an analysis.
	AnalysisIncomplete Kind = "ANALYSIS_INCOMPLETE"
	// SuggestionFailed means the model returned no payload, or one that failed validation, for an alt-text request.
	SuggestionFailed Kind = "SUGGESTION_FAILED"
	// ImageFetchFailed means the image relay answered with a non-2xx status or could not be reached.
	ImageFetchFailed Kind = "IMAGE_FETCH_FAILED"
	// ElementNotFound means no element with the issue's src exists in the current content.
	ElementNotFound Kind = "ELEMENT_NOT_FOUND"
	// UnsupportedIssueType means a fix was requested for an issue that cannot be fixed automatically.
	UnsupportedIssueType Kind = "UNSUPPORTED_ISSUE_TYPE"
)

// Error is a pipeline failure of a single Kind
type Error struct {
	Kind    Kind
	Message string
	// Status is the upstream HTTP status, when the failure came from an HTTP collaborator.
	Status int
	// Detail carries the collaborator's own explanation (e.g. the relay's error body).
	Detail string
	Err    error
}

// New creates an Error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err as a failure of the given kind. A nil err yields nil.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithStatus records the upstream HTTP status and detail
func (e *Error) WithStatus(status int, detail string) *Error {
	e.Status = status
	e.Detail = detail
	return e
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Kind, e.Message))
	if e.Status != 0 {
		sb.WriteString(fmt.Sprintf(" (status %d)", e.Status))
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, apperr.New(kind, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// HasKind reports whether err carries the given kind
func HasKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// HTTPStatus maps a kind to the status code the API answers with
func HTTPStatus(kind Kind) int {
	switch kind {
	case UnsupportedIssueType:
		return http.StatusUnprocessableEntity
	case ElementNotFound:
		return http.StatusConflict
	case ImageFetchFailed, SuggestionFailed, AnalysisIncomplete:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the description shown to the end user for a failure kind
func UserMessage(kind Kind) string {
	switch kind {
	case AnalysisIncomplete:
		return "Analysis did not produce the expected output structure."
	case SuggestionFailed:
		return "Could not generate a suggestion for this issue. Please try again."
	case ImageFetchFailed:
		return "The image could not be fetched."
	case ElementNotFound:
		return "The image referenced by this issue could not be found in the current content."
	case UnsupportedIssueType:
		return "Fix not available for this issue."
	default:
		return "An unexpected error occurred."
	}
}
