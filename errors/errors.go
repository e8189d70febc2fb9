package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error represents an application error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`

	kind *Error // template this error was derived from, for errors.Is
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches an error against the template it was derived from, so
// errors.Is(Wrap(ErrNotFound, cause), ErrNotFound) holds.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || e.kind == t
}

func (e *Error) root() *Error {
	if e.kind != nil {
		return e.kind
	}
	return e
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap attaches an underlying cause to a copy of a template error
func Wrap(template *Error, err error) *Error {
	return &Error{Code: template.Code, Message: template.Message, Err: err, kind: template.root()}
}

// WithMessage overrides the user-facing message of a template error
func WithMessage(template *Error, message string) *Error {
	return &Error{Code: template.Code, Message: message, Err: template.Err, kind: template.root()}
}

// Common error types
var (
	ErrBadRequest         = New(http.StatusBadRequest, "Bad request", nil)
	ErrUnauthorized       = New(http.StatusUnauthorized, "Unauthorized", nil)
	ErrForbidden          = New(http.StatusForbidden, "Forbidden", nil)
	ErrNotFound           = New(http.StatusNotFound, "Not found", nil)
	ErrInternalServer     = New(http.StatusInternalServerError, "Internal server error", nil)
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "Service unavailable", nil)
	ErrBadGateway         = New(http.StatusBadGateway, "Upstream request failed", nil)
)

// Payment flow error types. Initiation failures and terminal gateway
// failures reach the user; transient poll failures never do.
var (
	ErrPaymentInitiation = New(http.StatusBadGateway, "Failed to initiate payment", nil)
	ErrPaymentFailed     = New(http.StatusBadRequest, "Payment failed", nil)
	ErrAttemptPending    = New(http.StatusConflict, "Payment already initiated", nil)
	ErrOrderNotPayable   = New(http.StatusBadRequest, "Order is not pending payment", nil)
	ErrPaymentNotFound   = New(http.StatusNotFound, "Payment not found", nil)
)

// ErrMalformedResponse marks an upstream body that decoded but failed
// shape validation. Kept distinct from ErrBadGateway so callers can tell
// "the collaborator is down" from "the collaborator sent garbage".
var ErrMalformedResponse = New(http.StatusBadGateway, "Malformed upstream response", nil)

// Authentication error types
var (
	ErrInvalidToken = New(http.StatusUnauthorized, "Invalid token", nil)
	ErrTokenExpired = New(http.StatusUnauthorized, "Token expired", nil)
)
