package errors

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	AccountNotFound   ErrorCode = "account_not_found"
	InvalidAmount     ErrorCode = "invalid_amount"
	InsufficientFunds ErrorCode = "insufficient_funds"
	InvalidInput      ErrorCode = "invalid_input"
	DuplicateAccount  ErrorCode = "duplicate_account"
	StorageFailure    ErrorCode = "storage_failure"
	InternalError     ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *AppError) WithDetails(details string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
	}
}

// HTTPStatus maps the error taxonomy onto the response codes of the HTTP
// boundary. Storage failures are transient and retryable, hence 503.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case AccountNotFound:
		return http.StatusNotFound
	case InvalidAmount, InvalidInput:
		return http.StatusBadRequest
	case InsufficientFunds:
		return http.StatusForbidden
	case DuplicateAccount:
		return http.StatusConflict
	case StorageFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HasCode reports whether err is an AppError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// Predefined errors for common cases
var (
	ErrInvalidAmount     = NewAppError(InvalidAmount, "Sum must be positive")
	ErrInsufficientFunds = NewAppError(InsufficientFunds, "Not enough money")
	ErrInvalidAccountID  = NewAppError(InvalidInput, "account id must be a valid UUID")
	ErrDuplicateAccount  = NewAppError(DuplicateAccount, "account already exists")
	ErrLockTimeout       = NewAppError(StorageFailure, "timed out waiting for account lock")
	ErrNoTransaction     = NewAppError(InternalError, "operation requires an active transaction")
)

// NotFound builds the per-account variant with the id in the message.
func NotFound(id fmt.Stringer) *AppError {
	return NewAppErrorf(AccountNotFound, "Account with id='%s' not found", id)
}
