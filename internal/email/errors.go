package email

import "fmt"

// ============================================================================
// EMAIL ERROR CODES
// ============================================================================
// These constants mirror domain error codes to avoid circular imports.
// The handler layer maps these to HTTP status codes.

const (
	codeInternal      = "internal"
	codeNotFound      = "not_found"
	codeInvalid       = "invalid"
	codeUnprocessable = "unprocessable"
)

// ============================================================================
// EMAIL ERROR TYPE
// ============================================================================

// EmailError represents an email-specific error with a code and message.
// It implements the domain.Error interface pattern for consistent HTTP status mapping.
type EmailError struct {
	Code    string
	Message string
}

func (e *EmailError) Error() string {
	return e.Message
}

// ErrorCode returns the error code for HTTP status mapping.
func (e *EmailError) ErrorCode() string {
	return e.Code
}

// ErrorMessage returns the user-facing message.
func (e *EmailError) ErrorMessage() string {
	return e.Message
}

// newEmailError creates a new email error.
func newEmailError(code, message string) *EmailError {
	return &EmailError{Code: code, Message: message}
}

// ============================================================================
// EMAIL DOMAIN ERRORS
// ============================================================================

var (
	// ErrInvalidFromAddress is returned when the from address is invalid.
	ErrInvalidFromAddress = newEmailError(codeInvalid, "Invalid from email address")

	// ErrInvalidToAddress is returned when the to address is invalid.
	ErrInvalidToAddress = newEmailError(codeInvalid, "Invalid to email address")
)

// TemplateError is returned when a subject or body template cannot be rendered
// against a row, either because it references a field the row does not carry
// or because its braces are unbalanced.
type TemplateError struct {
	Field  string // missing field name, empty for syntax errors
	Row    int    // 0-based row index, -1 when not row specific
	Detail string
}

func (e *TemplateError) Error() string {
	if e.Field != "" {
		if e.Row >= 0 {
			return fmt.Sprintf("template references field %q which row %d does not have", e.Field, e.Row)
		}
		return fmt.Sprintf("template references unknown field %q", e.Field)
	}
	return "malformed template: " + e.Detail
}

// ErrorCode returns the error code for HTTP status mapping.
func (e *TemplateError) ErrorCode() string {
	return codeUnprocessable
}

// AttachmentMissing records a staged attachment or poster that was not on disk
// when a message was built. It is a warning: the message is still sent.
type AttachmentMissing struct {
	Path string
	Kind string // "attachment" or "poster"
}

func (e *AttachmentMissing) Error() string {
	return fmt.Sprintf("%s %s not found, skipped", e.Kind, e.Path)
}

// ErrorCode returns the error code for HTTP status mapping.
func (e *AttachmentMissing) ErrorCode() string {
	return codeNotFound
}
