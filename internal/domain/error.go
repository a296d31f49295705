package domain

import (
	"errors"
	"fmt"
)

// Application error codes. The handler maps each to an HTTP status.
const (
	EINVALID       = "invalid"         // 400: malformed request or unreadable upload
	ENOTFOUND      = "not_found"       // 404
	EUNPROCESSABLE = "unprocessable"   // 422: template references a column the rows lack
	EINTERNAL      = "internal"        // 500: details are logged, never shown
	ENOTIMPL       = "not_implemented" // 501
	EUNAVAILABLE   = "unavailable"     // 503: SMTP server unreachable during a check
)

const internalMessage = "An internal error occurred. Please try again later."

// Error is an application error. Message is safe to show to clients; Op and
// Err are for logs.
type Error struct {
	Code    string
	Message string
	Op      string // e.g. "dispatch.preflight"
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func find(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// ErrorCode returns the code of err: "" for nil, EINTERNAL for errors that
// carry no code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if e := find(err); e != nil {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the client-facing message of err. Internal and
// uncoded errors get a generic message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if e := find(err); e != nil && e.Code != EINTERNAL {
		return e.Message
	}
	return internalMessage
}

// ErrorOp returns the operation recorded on err, if any.
func ErrorOp(err error) string {
	if e := find(err); e != nil {
		return e.Op
	}
	return ""
}

// Errorf creates an error with a formatted message.
func Errorf(code, op, format string, args ...any) error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches code, op and message to err. It returns nil for a nil err.
func WrapError(err error, code, op, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

// NotFound reports a missing resource, e.g. NotFound("progress.subscribe", "run", id).
func NotFound(op, resource, identifier string) error {
	return Errorf(ENOTFOUND, op, "%s not found: %s", resource, identifier)
}

// Invalid reports a single request problem.
func Invalid(op, message string) error {
	return &Error{Code: EINVALID, Op: op, Message: message}
}

// Unprocessable reports input that parsed but cannot be used.
func Unprocessable(err error, op, message string) error {
	return &Error{Code: EUNPROCESSABLE, Op: op, Message: message, Err: err}
}

// Unavailable reports an upstream dependency that could not be reached.
func Unavailable(err error, op, message string) error {
	return &Error{Code: EUNAVAILABLE, Op: op, Message: message, Err: err}
}

// Internal wraps an unexpected failure. Clients see a generic message.
func Internal(err error, op, message string) error {
	return &Error{Code: EINTERNAL, Op: op, Message: message, Err: err}
}

// ValidationError collects per-field problems of one request.
type ValidationError struct {
	Fields map[string]string
	Op     string
}

func (e *ValidationError) Error() string {
	var msg string
	if len(e.Fields) == 1 {
		for field, m := range e.Fields {
			msg = field + ": " + m
		}
	} else {
		msg = fmt.Sprintf("validation failed for %d fields", len(e.Fields))
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// NewValidationError creates a validation error for one field.
func NewValidationError(op, field, message string) error {
	return &ValidationError{Op: op, Fields: map[string]string{field: message}}
}

// AddFieldError records a field problem on err, creating a ValidationError
// when err is nil or of another kind.
func AddFieldError(err error, field, message string) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		ve.Fields[field] = message
		return ve
	}
	return &ValidationError{Fields: map[string]string{field: message}}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GetValidationFields returns the field map of a ValidationError, or nil.
func GetValidationFields(err error) map[string]string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}
