package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Input
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeInvalidInput     = "INVALID_INPUT"

	// Resources
	CodeNotFound = "NOT_FOUND"
	CodeConflict = "CONFLICT"
	CodeNotReady = "NOT_READY"

	// Collaborators
	CodeDatabaseError = "DATABASE_ERROR"
	CodeExternalError = "EXTERNAL_ERROR"

	// Process
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeTimeout       = "TIMEOUT"
)

// AppError is an error with a stable code and the HTTP status it maps to.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail adds a key to Details.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

// WithError sets the cause.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func (e *AppError) HTTPStatus() int { return e.Status }

// New builds an error with an arbitrary code.
func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

func ValidationFailed(message string) *AppError {
	return New(CodeValidationFailed, message, http.StatusBadRequest)
}

// InvalidInput reports a malformed field of a single record.
func InvalidInput(field, reason string) *AppError {
	return New(CodeInvalidInput, fmt.Sprintf("invalid input for '%s': %s", field, reason), http.StatusBadRequest).
		WithDetail("field", field)
}

// InvalidRecord is InvalidInput for the index-th record of a batch.
func InvalidRecord(index int, field, reason string) *AppError {
	return InvalidInput(field, reason).WithDetail("index", index)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, resource+" not found", http.StatusNotFound)
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

// NotReady reports that the resource exists only after a successful pipeline run.
func NotReady(resource string) *AppError {
	return New(CodeNotReady, resource+" not available yet", http.StatusServiceUnavailable)
}

func DatabaseError(operation string, err error) *AppError {
	return New(CodeDatabaseError, "database error: "+operation, http.StatusInternalServerError).
		WithError(err)
}

func ExternalError(service string, err error) *AppError {
	return New(CodeExternalError, "external service error: "+service, http.StatusBadGateway).
		WithDetail("service", service).
		WithError(err)
}

func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return New(CodeInternalError, message, http.StatusInternalServerError)
}

// InternalWithError hides err behind a generic message.
func InternalWithError(err error) *AppError {
	return Internal("").WithError(err)
}

// ConfigError reports an invalid or incomplete configuration.
func ConfigError(message string) *AppError {
	return New(CodeConfigError, message, http.StatusInternalServerError)
}

// Timeout reports an operation that ran past its deadline.
func Timeout(operation string) *AppError {
	return New(CodeTimeout, "operation timed out: "+operation, http.StatusGatewayTimeout)
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError returns the AppError in err's chain, or wraps err as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
