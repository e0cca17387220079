package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"       // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized"  // Authentication required
	EFORBIDDEN    = "forbidden"     // Permission denied
	ENOTFOUND     = "not_found"     // Resource not found
	ECONFLICT     = "conflict"      // Resource conflict (e.g., duplicate)
	EEXPIRED      = "expired"       // Code or grant no longer valid
	EINACTIVE     = "inactive"      // Code has been deactivated
	EEXHAUSTED    = "exhausted"     // Redemption cap reached
	ESELFREFERRAL = "self_referral" // User tried to redeem their own referral code
	ELIMIT        = "limit_reached" // Plan limit reached for a resource type
	EPAYMENT      = "payment"       // Payment required
	ETRANSIENT    = "transient"     // Temporary storage/network failure, safe to retry
	EINTERNAL     = "internal"      // Internal server error
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "promo.redeem")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
// Internal and transient errors collapse to a generic retry message so that
// storage detail is never surfaced verbatim to end users.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Code {
		case EINTERNAL:
			return "An internal error occurred. Please try again later."
		case ETRANSIENT:
			return "The service is temporarily unavailable. Please try again."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Convenience constructors for common error types

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s %q not found", resource, id),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Forbidden creates a permission error.
func Forbidden(op, message string) *Error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: message,
	}
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: message,
	}
}

// Expired creates an expired-code error.
func Expired(op, message string) *Error {
	return &Error{
		Code:    EEXPIRED,
		Op:      op,
		Message: message,
	}
}

// Inactive creates a deactivated-code error.
func Inactive(op, message string) *Error {
	return &Error{
		Code:    EINACTIVE,
		Op:      op,
		Message: message,
	}
}

// Exhausted creates a redemption-cap error.
func Exhausted(op, message string) *Error {
	return &Error{
		Code:    EEXHAUSTED,
		Op:      op,
		Message: message,
	}
}

// SelfReferral creates a self-referral error.
func SelfReferral(op string) *Error {
	return &Error{
		Code:    ESELFREFERRAL,
		Op:      op,
		Message: "You cannot redeem your own referral code",
	}
}

// LimitReached creates a plan-limit error for a resource type.
func LimitReached(op string, resource ResourceType, current, limit int) *Error {
	return &Error{
		Code:    ELIMIT,
		Op:      op,
		Message: fmt.Sprintf("plan limit reached for %s (%d of %d used)", resource, current, limit),
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Transient creates a retryable storage/network error, wrapping the underlying error.
func Transient(err error, op, message string) *Error {
	return &Error{
		Code:    ETRANSIENT,
		Op:      op,
		Message: message,
		Err:     err,
	}
}
