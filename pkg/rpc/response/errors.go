package response

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/toicours/fundme-go/pkg/core/ledger"
)

type (
	// Error object for outputting JSON-RPC 2.0 errors.
	Error struct {
		Code     int64  `json:"code"`
		HTTPCode int    `json:"-"`
		Cause    error  `json:"-"`
		Message  string `json:"message"`
		Data     string `json:"data,omitempty"`
	}
)

// Standard JSON-RPC 2.0 error codes.
const (
	ParseErrorCode          = -32700
	InvalidRequestCode      = -32600
	MethodNotFoundCode      = -32601
	InvalidParamsCode       = -32602
	InternalServerErrorCode = -32603
)

// Ledger-specific error codes.
const (
	InsufficientContributionCode = -101
	UnauthorizedCode             = -102
	IndexOutOfRangeCode          = -103
	UnknownReceiptCode           = -104
)

// ErrInvalidParams represents a generic 'invalid parameters' error.
var ErrInvalidParams = NewInvalidParamsError("invalid params", nil)

// NewError is an Error constructor that takes Error contents from its
// parameters.
func NewError(code int64, httpCode int, message string, data string) *Error {
	return &Error{
		Code:     code,
		HTTPCode: httpCode,
		Message:  message,
		Data:     data,
	}
}

// NewParseError creates a new error with code -32700.
func NewParseError(data string, cause error) *Error {
	return newWithCause(ParseErrorCode, http.StatusBadRequest, "Parse Error", data, cause)
}

// NewInvalidRequestError creates a new error with code -32600.
func NewInvalidRequestError(data string, cause error) *Error {
	return newWithCause(InvalidRequestCode, http.StatusUnprocessableEntity, "Invalid Request", data, cause)
}

// NewMethodNotFoundError creates a new error with code -32601.
func NewMethodNotFoundError(data string, cause error) *Error {
	return newWithCause(MethodNotFoundCode, http.StatusMethodNotAllowed, "Method not found", data, cause)
}

// NewInvalidParamsError creates a new error with code -32602.
func NewInvalidParamsError(data string, cause error) *Error {
	return newWithCause(InvalidParamsCode, http.StatusUnprocessableEntity, "Invalid Params", data, cause)
}

// NewInternalServerError creates a new error with code -32603.
func NewInternalServerError(data string, cause error) *Error {
	return newWithCause(InternalServerErrorCode, http.StatusInternalServerError, "Internal error", data, cause)
}

// NewUnknownReceiptError creates an error for getreceipt misses.
func NewUnknownReceiptError(data string) *Error {
	return NewError(UnknownReceiptCode, http.StatusNotFound, "Unknown receipt", data)
}

// NewLedgerError converts a ledger operation error to the corresponding
// JSON-RPC error.
func NewLedgerError(cause error) *Error {
	switch {
	case errors.Is(cause, ledger.ErrInsufficientContribution):
		return newWithCause(InsufficientContributionCode, http.StatusUnprocessableEntity, "Insufficient contribution", "", cause)
	case errors.Is(cause, ledger.ErrUnauthorized):
		return newWithCause(UnauthorizedCode, http.StatusForbidden, "Unauthorized", "", cause)
	case errors.Is(cause, ledger.ErrIndexOutOfRange):
		return newWithCause(IndexOutOfRangeCode, http.StatusUnprocessableEntity, "Index out of range", "", cause)
	default:
		return NewInternalServerError("ledger operation failed", cause)
	}
}

func newWithCause(code int64, httpCode int, message string, data string, cause error) *Error {
	if cause != nil {
		if data != "" {
			data = fmt.Sprintf("%s: %s", data, cause)
		} else {
			data = cause.Error()
		}
	}
	e := NewError(code, httpCode, message, data)
	e.Cause = cause
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d) - %s", e.Message, e.Code, e.Data)
}
