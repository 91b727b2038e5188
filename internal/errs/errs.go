// Package errs defines the error taxonomy shared by the metadata, version and
// conflict services.
//
// Every domain failure is an *Error carrying one of the kind sentinels below,
// so callers branch with errors.Is(err, errs.ErrNotFound) regardless of how
// deeply the error was wrapped.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed input or a violated precondition. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a version conflict that could not be settled automatically.
	ErrConflict = errors.New("conflict")
	// ErrStorage marks a repository or infrastructure failure.
	ErrStorage = errors.New("storage error")
)

// Error is a classified domain error.
type Error struct {
	kind error
	msg  string
	err  error
}

// Error message
func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.kind == target
}

// Validationf builds a validation error.
func Validationf(format string, args ...any) error {
	return &Error{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not-found error.
func NotFoundf(format string, args ...any) error {
	return &Error{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

// Conflictf builds a conflict error.
func Conflictf(format string, args ...any) error {
	return &Error{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind.
func Wrap(kind error, msg string, err error) error {
	return &Error{kind: kind, msg: msg, err: err}
}

// Storage classifies err as a storage failure unless it already carries a kind.
func Storage(msg string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{kind: ErrStorage, msg: msg, err: err}
}

// KindOf returns the kind of the first classified error in err's chain, or nil.
func KindOf(err error) error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.kind
	}
	return nil
}

// HTTPStatus maps an error onto the status code used at the API boundary.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text that may be shown to API clients.
// Storage and unclassified errors never leak their cause.
func PublicMessage(err error) string {
	var classified *Error
	if !errors.As(err, &classified) || classified.kind == ErrStorage {
		return "internal error"
	}
	return classified.msg
}

// KindName returns a stable lower-case name for the kind of err.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrValidation:
		return "validation"
	case ErrNotFound:
		return "not_found"
	case ErrConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Body is the JSON error payload returned by the HTTP handlers.
func Body(err error) map[string]string {
	return map[string]string{
		"error": PublicMessage(err),
		"kind":  KindName(err),
	}
}
