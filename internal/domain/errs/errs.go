package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure so transports can map it to a status.
type Kind int

const (
	KindInternal Kind = iota
	KindDatasetNotFound
	KindSchema
	KindEmptyWindow
	KindEmptyFeatureSet
	KindBadInput
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindDatasetNotFound:
		return "dataset_not_found"
	case KindSchema:
		return "schema_error"
	case KindEmptyWindow:
		return "empty_window"
	case KindEmptyFeatureSet:
		return "empty_feature_set"
	case KindBadInput:
		return "bad_input"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

func DatasetNotFound(format string, a ...interface{}) *Error {
	return New(KindDatasetNotFound, format, a...)
}

func Schema(format string, a ...interface{}) *Error {
	return New(KindSchema, format, a...)
}

func EmptyWindow(format string, a ...interface{}) *Error {
	return New(KindEmptyWindow, format, a...)
}

func EmptyFeatureSet(format string, a ...interface{}) *Error {
	return New(KindEmptyFeatureSet, format, a...)
}

func BadInput(format string, a ...interface{}) *Error {
	return New(KindBadInput, format, a...)
}

func Conflict(format string, a ...interface{}) *Error {
	return New(KindConflict, format, a...)
}

func Internal(err error, message string) error {
	return Wrap(KindInternal, err, message)
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
