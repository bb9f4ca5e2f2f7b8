package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the machine-readable part of an API error.
type ErrorCode string

const (
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden        ErrorCode = "FORBIDDEN"
	ErrCodeInvalidToken     ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired     ErrorCode = "TOKEN_EXPIRED"
	ErrCodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"
	ErrCodeMissingSignature ErrorCode = "MISSING_SIGNATURE"

	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"
	ErrCodeBodyTooLarge    ErrorCode = "BODY_TOO_LARGE"

	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeAlreadyClaimed  ErrorCode = "ALREADY_CLAIMED"

	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

var statusByCode = map[ErrorCode]int{
	ErrCodeUnauthorized:      http.StatusUnauthorized,
	ErrCodeInvalidToken:      http.StatusUnauthorized,
	ErrCodeTokenExpired:      http.StatusUnauthorized,
	ErrCodeForbidden:         http.StatusForbidden,
	ErrCodeInvalidSignature:  http.StatusBadRequest,
	ErrCodeMissingSignature:  http.StatusBadRequest,
	ErrCodeValidation:        http.StatusBadRequest,
	ErrCodeInvalidInput:      http.StatusBadRequest,
	ErrCodeMissingRequired:   http.StatusBadRequest,
	ErrCodeBodyTooLarge:      http.StatusRequestEntityTooLarge,
	ErrCodeNotFound:          http.StatusNotFound,
	ErrCodeSessionNotFound:   http.StatusNotFound,
	ErrCodeAlreadyClaimed:    http.StatusConflict,
	ErrCodeRateLimitExceeded: http.StatusTooManyRequests,
	ErrCodeExternal:          http.StatusBadGateway,
}

// Status is the HTTP status a code is answered with. Unknown codes, the
// database code and the internal code are all 500.
func (c ErrorCode) Status() int {
	if status, ok := statusByCode[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// AppError is an error whose code and message are safe to show to clients.
// The cause is kept for logs only.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, cause: cause}
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func InvalidToken(message string) *AppError {
	return New(ErrCodeInvalidToken, message)
}

func TokenExpired() *AppError {
	return New(ErrCodeTokenExpired, "Token expired")
}

func InvalidSignature() *AppError {
	return New(ErrCodeInvalidSignature, "Invalid signature in initData")
}

func MissingSignature() *AppError {
	return New(ErrCodeMissingSignature, "No hash in initData")
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func BodyTooLarge() *AppError {
	return New(ErrCodeBodyTooLarge, "Request body too large")
}

// NotFound is also used for resources the caller does not own, so the two
// cases cannot be told apart from outside.
func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func SessionNotFound() *AppError {
	return New(ErrCodeSessionNotFound, "WebSocket not found or expired")
}

func AlreadyClaimed() *AppError {
	return New(ErrCodeAlreadyClaimed, "Session has already been claimed")
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns ErrCodeInternal for errors that are not AppErrors.
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
