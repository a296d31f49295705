package spreadsheet

import "fmt"

// Codes mirror domain error codes; the handler maps them to HTTP status.
const (
	codeInvalid = "invalid"
)

// SpreadsheetError reports a recipient file that cannot be used.
type SpreadsheetError struct {
	Code    string
	Message string
	Err     error
}

func (e *SpreadsheetError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *SpreadsheetError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the error code for HTTP status mapping.
func (e *SpreadsheetError) ErrorCode() string {
	return e.Code
}

// ErrorMessage returns the user-facing message.
func (e *SpreadsheetError) ErrorMessage() string {
	return e.Message
}

var (
	// ErrNoEmailColumn is returned when the header row has no "email" column.
	ErrNoEmailColumn = &SpreadsheetError{Code: codeInvalid, Message: `spreadsheet must contain an "email" column`}

	// ErrNoRows is returned when the file has a header but no recipients.
	ErrNoRows = &SpreadsheetError{Code: codeInvalid, Message: "spreadsheet has no recipient rows"}
)

// ErrUnsupportedFormat creates an error for a file extension that cannot be read.
func ErrUnsupportedFormat(name string) error {
	return &SpreadsheetError{
		Code:    codeInvalid,
		Message: fmt.Sprintf("unsupported spreadsheet format: %s (expected .xlsx or .csv)", name),
	}
}

// ErrUnreadable wraps a parse failure.
func ErrUnreadable(err error) error {
	return &SpreadsheetError{Code: codeInvalid, Message: "spreadsheet could not be read", Err: err}
}

// ErrMissingEmail creates an error for a data row with an empty email cell.
// line is the 1-based line in the file, header included.
func ErrMissingEmail(line int) error {
	return &SpreadsheetError{
		Code:    codeInvalid,
		Message: fmt.Sprintf("row %d has no email address", line),
	}
}
