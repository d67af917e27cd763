// Package errs defines the error taxonomy surfaced by resource operations.
//
// Every error returned from a resource call is an *Error carrying a Kind.
// Kinds map onto Feathers-compatible names, class names and HTTP status
// codes so an outer transport can render them without further inspection.
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes an Error.
type Kind string

const (
	// KindNotFound: no record matched a required single-record lookup or mutation.
	KindNotFound Kind = "NotFound"

	// KindBadRequest: the backing store rejected the compiled request.
	KindBadRequest Kind = "BadRequest"

	// KindValidation: the query shape itself is malformed.
	KindValidation Kind = "Validation"

	// KindMethodNotAllowed: a bulk operation was attempted without multi permission.
	KindMethodNotAllowed Kind = "MethodNotAllowed"

	// KindInternal: an identity constraint matched more than one record.
	KindInternal Kind = "Internal"

	// KindGeneral: uncategorized store failure or an unreachable store.
	KindGeneral Kind = "GeneralError"
)

// Error codes.
const (
	CodeInvalidEagerShape   = "INVALID_EAGER_SHAPE"
	CodeInvalidSort         = "INVALID_SORT"
	CodeInvalidPagination   = "INVALID_PAGINATION"
	CodeInvalidSelect       = "INVALID_SELECT"
	CodeSelectInclude       = "SELECT_INCLUDE_CONFLICT"
	CodeInvalidQuery        = "INVALID_QUERY"
	CodeMultipleRecords     = "MULTIPLE_RECORDS_UPDATED"
	CodeMissingModel        = "MISSING_MODEL"
	CodeUnknownModel        = "UNKNOWN_MODEL"
	CodeUnregisteredEvent   = "UNREGISTERED_EVENT"
	CodeRecordNotFound      = "RECORD_NOT_FOUND"
	CodeMultiNotPermitted   = "MULTI_NOT_PERMITTED"
	CodeReplaceWithoutID    = "REPLACE_WITHOUT_ID"
	CodeIDRequired          = "ID_REQUIRED"
	CodeStoreUnavailable    = "STORE_UNAVAILABLE"
	CodeStoreRejected       = "STORE_REJECTED"
	CodeUnknownStoreFailure = "STORE_FAILURE"
)

// Error is the single error type returned by resource operations.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Code is a machine-readable sub-code (e.g. INVALID_EAGER_SHAPE).
	Code string

	// Message is a human-readable description.
	Message string

	// Data contains additional context (driver code, offending key).
	Data map[string]any

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Name(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Name(), e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Name returns the Feathers error name for the kind.
func (e *Error) Name() string {
	switch e.Kind {
	case KindValidation:
		return "BadRequest"
	case KindInternal:
		return "Conflict"
	case "":
		return string(KindGeneral)
	default:
		return string(e.Kind)
	}
}

// ClassName returns the Feathers class name for the kind.
func (e *Error) ClassName() string {
	switch e.Kind {
	case KindNotFound:
		return "not-found"
	case KindBadRequest, KindValidation:
		return "bad-request"
	case KindMethodNotAllowed:
		return "method-not-allowed"
	case KindInternal:
		return "conflict"
	default:
		return "general-error"
	}
}

// Status returns the HTTP status code for the kind.
// Internal is a programming-invariant violation, so it reports 500 even
// though its name is Conflict.
func (e *Error) Status() int {
	switch e.Kind {
	case KindNotFound:
		return 404
	case KindBadRequest, KindValidation:
		return 400
	case KindMethodNotAllowed:
		return 405
	default:
		return 500
	}
}

// NotFound creates a NotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: CodeRecordNotFound, Message: fmt.Sprintf(format, args...)}
}

// BadRequest creates a BadRequest error.
func BadRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Code: CodeStoreRejected, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a Validation error with the given code.
func Validation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// MethodNotAllowed creates a MethodNotAllowed error.
func MethodNotAllowed(format string, args ...any) *Error {
	return &Error{Kind: KindMethodNotAllowed, Code: CodeMultiNotPermitted, Message: fmt.Sprintf(format, args...)}
}

// Internal creates an Internal (id-uniqueness) error.
func Internal(code, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Code: code, Message: fmt.Sprintf(format, args...)}
}

// General creates a GeneralError.
func General(format string, args ...any) *Error {
	return &Error{Kind: KindGeneral, Code: CodeUnknownStoreFailure, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to e and returns it.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// With attaches a data entry to e and returns it.
func (e *Error) With(key string, value any) *Error {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// As extracts an *Error from err. Uses errors.As to handle wrapped errors.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// IsNotFound returns true if err is a NotFound error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsBadRequest returns true if err is a BadRequest error.
func IsBadRequest(err error) bool { return KindOf(err) == KindBadRequest }

// IsValidation returns true if err is a Validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsMethodNotAllowed returns true if err is a MethodNotAllowed error.
func IsMethodNotAllowed(err error) bool { return KindOf(err) == KindMethodNotAllowed }

// IsInternal returns true if err is an Internal error.
func IsInternal(err error) bool { return KindOf(err) == KindInternal }

// IsGeneral returns true if err is a GeneralError.
func IsGeneral(err error) bool { return KindOf(err) == KindGeneral }
