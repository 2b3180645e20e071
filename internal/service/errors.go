package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure for callers. The API layer maps each kind
// to an HTTP status.
type Kind string

const (
	// KindInvalidRequest is the caller's fault; retrying the same input will
	// not help.
	KindInvalidRequest Kind = "InvalidRequest"

	// KindNoSubjectRecognized means no usable label came out of the supplied
	// images. The caller can retry with a clearer picture.
	KindNoSubjectRecognized Kind = "NoSubjectRecognized"

	// KindCategoryNotFound is a configuration fault: the resolved category
	// does not exist.
	KindCategoryNotFound Kind = "CategoryNotFound"

	KindGenerationTimeout     Kind = "GenerationTimeout"
	KindGenerationUpstream    Kind = "GenerationUpstreamError"
	KindGenerationEmptyOutput Kind = "GenerationEmptyOutput"

	// KindPersistence covers storage failures. Nothing was committed.
	KindPersistence Kind = "PersistenceError"

	KindNotFound Kind = "NotFound"

	// KindUpstream is a non-generation vendor failure such as a phone number
	// exchange.
	KindUpstream Kind = "UpstreamError"

	// KindCanceled means the caller went away before the work finished.
	KindCanceled Kind = "Canceled"
)

// Sentinels so callers can match a kind with errors.Is.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNoSubjectRecognized = errors.New("no subject recognized")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrGenerationTimeout   = errors.New("generation timed out")
	ErrGenerationUpstream  = errors.New("generation upstream error")
	ErrGenerationEmpty     = errors.New("generation returned empty output")
	ErrPersistence         = errors.New("persistence error")
	ErrNotFound            = errors.New("not found")
	ErrUpstream            = errors.New("upstream error")
	ErrCanceled            = errors.New("request canceled")

	// ErrNilDependency is returned by constructors given a nil collaborator.
	ErrNilDependency = errors.New("required dependency is nil")
)

var kindSentinels = map[Kind]error{
	KindInvalidRequest:        ErrInvalidRequest,
	KindNoSubjectRecognized:   ErrNoSubjectRecognized,
	KindCategoryNotFound:      ErrCategoryNotFound,
	KindGenerationTimeout:     ErrGenerationTimeout,
	KindGenerationUpstream:    ErrGenerationUpstream,
	KindGenerationEmptyOutput: ErrGenerationEmpty,
	KindPersistence:           ErrPersistence,
	KindNotFound:              ErrNotFound,
	KindUpstream:              ErrUpstream,
	KindCanceled:              ErrCanceled,
}

// Error is the structured failure every service operation returns.
type Error struct {
	// Kind is the failure class.
	Kind Kind
	// Operation is the service method that failed, e.g. "generate".
	Operation string
	// Message is safe to show to the end user.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed (%s): %s: %v", e.Operation, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s failed (%s): %s", e.Operation, e.Kind, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Operation: op, Message: msg, Err: err}
}

// KindOf returns the kind of err, or "" when err is not a service error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
