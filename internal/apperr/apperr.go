// Package apperr normalizes internal failures into the single error shape
// returned to callers, carrying an HTTP status class.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "Bad Request"
	case KindNotFound:
		return "Not Found"
	case KindConflict:
		return "Conflict"
	default:
		return "Internal Server Error"
	}
}

// HTTPStatus maps the kind to its response status code
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error codes shared by the orchestrator and the HTTP adapter
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidFeeConfig    = "INVALID_FEE_CONFIG"
	CodeUnsupportedToken    = "UNSUPPORTED_TOKEN"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeParentNotFound      = "PARENT_NOT_FOUND"
	CodeWalletNotFound      = "WALLET_NOT_FOUND"
	CodeBalanceUnavailable  = "BALANCE_UNAVAILABLE"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeCardAlreadyOrdered  = "CARD_ALREADY_ORDERED"
	CodeNoLockedFunds       = "NO_LOCKED_FUNDS"
	CodeBalanceChanged      = "BALANCE_CHANGED"
	CodeFeeChanged          = "FEE_CHANGED"
	CodeFundsLockChanged    = "FUNDS_LOCK_CHANGED"
	CodeUserStatusChanged   = "USER_STATUS_CHANGED"
	CodeDebitFailed         = "DEBIT_FAILED"
	CodeOperationInProgress = "OPERATION_IN_PROGRESS"
	CodeCardNotMappable     = "CARD_NOT_MAPPABLE"
	CodeCardAlreadyMapped   = "CARD_ALREADY_MAPPED"
	CodeNotMainUser         = "NOT_MAIN_USER"
	CodeSettlementFailed    = "SETTLEMENT_FAILED"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error is an externally visible failure
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the response status for this error
func (e *Error) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

func newError(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func BadRequest(code, message string, err error) *Error {
	return newError(KindBadRequest, code, message, err)
}

func NotFound(code, message string, err error) *Error {
	return newError(KindNotFound, code, message, err)
}

func Conflict(code, message string, err error) *Error {
	return newError(KindConflict, code, message, err)
}

func Internal(code, message string, err error) *Error {
	return newError(KindInternal, code, message, err)
}

// From returns err as an *Error, wrapping unknown errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(CodeInternal, "unexpected error", err)
}

// HasCode reports whether err is an *Error carrying code
func HasCode(err error, code string) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
