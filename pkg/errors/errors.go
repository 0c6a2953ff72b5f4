package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code and reason so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Reason != "" && t.Reason != e.Reason {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Violation builds a business rule violation carrying a machine-readable reason.
func Violation(reason, message string) *Error {
	return &Error{Code: ErrBusinessRule.Code, Status: ErrBusinessRule.Status, Reason: reason, Message: message}
}

// Business rule reason codes.
const (
	ReasonDuplicateRequest       = "DUPLICATE_REQUEST"
	ReasonTransferQuotaExhausted = "TRANSFER_QUOTA_EXHAUSTED"
	ReasonTransferPending        = "TRANSFER_PENDING"
	ReasonCapacityExceeded       = "CAPACITY_EXCEEDED"
	ReasonOutsideLookback        = "OUTSIDE_LOOKBACK_WINDOW"
	ReasonMakeupDeadlinePassed   = "MAKEUP_DEADLINE_PASSED"
	ReasonNotEnrolled            = "NOT_ENROLLED"
	ReasonSubjectMismatch        = "SUBJECT_MISMATCH"
	ReasonAbsenceLeadTime        = "ABSENCE_LEAD_TIME"
	ReasonNotMakeupEligible      = "SESSION_NOT_MAKEUP_ELIGIBLE"
	ReasonSessionConflict        = "SESSION_CONFLICT"
)

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrInvalidState       = New("INVALID_STATE", http.StatusConflict, "invalid state transition")
	ErrBusinessRule       = New("BUSINESS_RULE_VIOLATION", http.StatusUnprocessableEntity, "business rule violation")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrLockNotAcquired    = New("LOCK_NOT_ACQUIRED", http.StatusConflict, "job already running")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Internal wraps an infrastructure failure with a caller-facing message.
func Internal(err error, message string) *Error {
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, message)
}

// HasReason reports whether err is a business rule violation with the given reason.
func HasReason(err error, reason string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == ErrBusinessRule.Code && e.Reason == reason
}
