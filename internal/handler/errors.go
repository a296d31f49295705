package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/courier/internal/domain"
)

// coded is implemented by package-level error types (spreadsheet, storage,
// email) that carry a domain code without importing the domain package.
type coded interface {
	ErrorCode() string
	ErrorMessage() string
}

// ErrorCodeToHTTPStatus maps a domain error code to an HTTP status.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.EUNPROCESSABLE:
		return http.StatusUnprocessableEntity
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable
	case domain.ENOTIMPL:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// errorCode resolves the code of err, looking through package error types.
func errorCode(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Code
	}
	var ce coded
	if errors.As(err, &ce) {
		return ce.ErrorCode()
	}
	return domain.EINTERNAL
}

// errorMessage resolves a user-facing message; internal errors stay generic.
func errorMessage(err error) string {
	var de *domain.Error
	if !errors.As(err, &de) {
		var ce coded
		if errors.As(err, &ce) && ce.ErrorCode() != domain.EINTERNAL {
			return ce.ErrorMessage()
		}
	}
	return domain.ErrorMessage(err)
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

// ErrorResponse writes err with the status its code maps to. JSON clients
// get an error envelope; others get plain text.
func ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	code := errorCode(err)
	status := ErrorCodeToHTTPStatus(code)
	message := errorMessage(err)

	if status >= http.StatusInternalServerError {
		slog.Default().Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"op", domain.ErrorOp(err),
			"error", err,
		)
	}

	if !acceptsJSON(r) {
		http.Error(w, message, status)
		return
	}
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// ValidationErrorResponse writes field errors as 400. Other errors fall back to ErrorResponse.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	fields := domain.GetValidationFields(err)
	if fields == nil {
		ErrorResponse(w, r, err)
		return
	}

	if !acceptsJSON(r) {
		var b strings.Builder
		for field, msg := range fields {
			b.WriteString(field + ": " + msg + "\n")
		}
		http.Error(w, b.String(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: errorBody{
		Code:    domain.EINVALID,
		Message: "Please correct the highlighted fields",
		Fields:  fields,
	}})
}

// respondError picks the validation or the general error response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsValidationError(err) {
		ValidationErrorResponse(w, r, err)
		return
	}
	ErrorResponse(w, r, err)
}

// NotFoundResponse writes a 404.
func NotFoundResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.Errorf(domain.ENOTFOUND, "", "Not found"))
}

// InternalErrorResponse writes a 500 without exposing err.
func InternalErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	ErrorResponse(w, r, domain.Internal(err, "", "internal error"))
}

// acceptsJSON reports whether the client expects JSON. The API is JSON-first,
// so only an explicit text/html Accept opts out.
func acceptsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	if strings.HasSuffix(r.URL.Path, ".json") {
		return true
	}
	return !strings.Contains(accept, "text/html")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}
