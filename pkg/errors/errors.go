package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents an error code
type ErrorCode string

const (
	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeRateLimited  ErrorCode = "RATE_LIMITED"

	// Membership errors
	ErrCodeRoomKeyMissing ErrorCode = "ROOM_KEY_MISSING"
	ErrCodeRoomNotFound   ErrorCode = "ROOM_NOT_FOUND"
	ErrCodeAlreadyInRoom  ErrorCode = "ALREADY_IN_ROOM"
	ErrCodeNotInRoom      ErrorCode = "NOT_IN_ROOM"

	// Routing errors
	ErrCodePeerNotConnected ErrorCode = "PEER_NOT_CONNECTED"

	// Negotiation errors
	ErrCodeInvalidMessage     ErrorCode = "INVALID_MESSAGE"
	ErrCodeNegotiationTimeout ErrorCode = "NEGOTIATION_TIMEOUT"

	// Transport errors
	ErrCodeTransportFailed  ErrorCode = "TRANSPORT_FAILED"
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// AppError represents an application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: getHTTPStatus(code),
	}
}

// NewAppErrorf creates a new application error with formatting
func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return NewAppError(code, fmt.Sprintf(format, args...))
}

func getHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound, ErrCodeRoomNotFound, ErrCodePeerNotConnected:
		return http.StatusNotFound
	case ErrCodeAlreadyInRoom:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeInvalidInput, ErrCodeRoomKeyMissing, ErrCodeNotInRoom, ErrCodeInvalidMessage, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeNegotiationTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeTransportFailed, ErrCodeConnectionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsAppError checks if an error is, or wraps, an AppError
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// AsAppError finds the first AppError in err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// WrapError wraps a standard error as an AppError
func WrapError(code ErrorCode, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    err.Error(),
		HTTPStatus: getHTTPStatus(code),
		Cause:      err,
	}
}
