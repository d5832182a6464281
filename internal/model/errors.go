package model

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindSlotUnavailable      ErrorKind = "SLOT_UNAVAILABLE"
	KindInvalidSignature     ErrorKind = "INVALID_SIGNATURE"
	KindOrderMismatch        ErrorKind = "ORDER_MISMATCH"
	KindCancelNotAllowed     ErrorKind = "CANCEL_NOT_ALLOWED"
	KindCancelWindowPassed   ErrorKind = "CANCEL_WINDOW_PASSED"
	KindPaymentMissing       ErrorKind = "PAYMENT_MISSING"
	KindPaymentNotAuthorized ErrorKind = "PAYMENT_NOT_AUTHORIZED"
	KindSubscriptionNotReady ErrorKind = "SUBSCRIPTION_NOT_READY"
	KindRuleUnavailable      ErrorKind = "RULE_UNAVAILABLE"
	KindGatewayUnavailable   ErrorKind = "GATEWAY_UNAVAILABLE"
	KindNotFound             ErrorKind = "NOT_FOUND"
	KindForbidden            ErrorKind = "FORBIDDEN"
	KindUnauthorized         ErrorKind = "UNAUTHORIZED"
	KindInvalidState         ErrorKind = "INVALID_STATE"
	KindBadRequest           ErrorKind = "BAD_REQUEST"
)

// AppError is a domain error carrying its kind and HTTP status.
type AppError struct {
	Kind    ErrorKind `json:"code"`
	Status  int       `json:"-"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on kind so callers can compare against the sentinels below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrSlotUnavailable      = &AppError{Kind: KindSlotUnavailable, Status: http.StatusConflict, Message: "slot is not available"}
	ErrInvalidSignature     = &AppError{Kind: KindInvalidSignature, Status: http.StatusBadRequest, Message: "invalid signature"}
	ErrOrderMismatch        = &AppError{Kind: KindOrderMismatch, Status: http.StatusBadRequest, Message: "order does not match booking payment"}
	ErrCancelNotAllowed     = &AppError{Kind: KindCancelNotAllowed, Status: http.StatusConflict, Message: "booking cannot be canceled"}
	ErrCancelWindowPassed   = &AppError{Kind: KindCancelWindowPassed, Status: http.StatusConflict, Message: "cancellation window has passed"}
	ErrPaymentMissing       = &AppError{Kind: KindPaymentMissing, Status: http.StatusConflict, Message: "booking has no payment"}
	ErrPaymentNotAuthorized = &AppError{Kind: KindPaymentNotAuthorized, Status: http.StatusConflict, Message: "payment is not authorized"}
	ErrSubscriptionNotReady = &AppError{Kind: KindSubscriptionNotReady, Status: http.StatusConflict, Message: "subscription is not in a usable state"}
	ErrRuleUnavailable      = &AppError{Kind: KindRuleUnavailable, Status: http.StatusConflict, Message: "availability rule is not usable"}
	ErrGatewayUnavailable   = &AppError{Kind: KindGatewayUnavailable, Status: http.StatusBadGateway, Message: "payment gateway unavailable"}
	ErrNotFound             = &AppError{Kind: KindNotFound, Status: http.StatusNotFound, Message: "not found"}
	ErrForbidden            = &AppError{Kind: KindForbidden, Status: http.StatusForbidden, Message: "forbidden"}
	ErrUnauthorized         = &AppError{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: "unauthorized"}
	ErrInvalidState         = &AppError{Kind: KindInvalidState, Status: http.StatusConflict, Message: "invalid state"}
	ErrBadRequest           = &AppError{Kind: KindBadRequest, Status: http.StatusBadRequest, Message: "bad request"}
)

// Errorf returns a copy of the sentinel with a specific message.
func Errorf(base *AppError, format string, args ...any) *AppError {
	return &AppError{Kind: base.Kind, Status: base.Status, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns a copy of the sentinel wrapping the underlying cause.
func Wrap(base *AppError, err error) *AppError {
	return &AppError{Kind: base.Kind, Status: base.Status, Message: base.Message, Err: err}
}

// AsAppError extracts an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
