// Package errors provides the coded error type used across the application.
// We prefer these over raw fmt.Errorf strings to enable reliable checks with
// errors.Is / errors.As, to carry a user-safe message separate from the
// internal one, and to drive HTTP status mapping at the boundary.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error kind. The set is flat on purpose; callers switch
// on codes, not on type hierarchies.
type Code string

const (
	// Location
	CodeLocationPermissionDenied Code = "LocationPermissionDenied"
	CodeLocationUnavailable      Code = "LocationUnavailable"
	CodeLocationTimeout          Code = "LocationTimeout"
	CodeLocationAccuracyLow      Code = "LocationAccuracyLow"
	CodeLocationTooFar           Code = "LocationTooFar"
	CodeInvalidCoordinates       Code = "InvalidCoordinates"

	// Verification
	CodeSuspiciousPattern   Code = "SuspiciousPattern"
	CodeVerificationPending Code = "VerificationPending"
	CodeVerificationFailed  Code = "VerificationFailed"
	CodeVerificationTimeout Code = "VerificationTimeout"

	// Rate limiting
	CodeRateLimitExceeded     Code = "RateLimitExceeded"
	CodeNotificationRateLimit Code = "NotificationRateLimit"

	// User status
	CodeUserNotFound      Code = "UserNotFound"
	CodeUserBanned        Code = "UserBanned"
	CodeUserSuspicious    Code = "UserSuspicious"
	CodeProfileIncomplete Code = "ProfileIncomplete"

	// Queue state
	CodeQueueNotFound           Code = "QueueNotFound"
	CodeInvalidStatusTransition Code = "InvalidStatusTransition"
	CodeQueueAlreadyCompleted   Code = "QueueAlreadyCompleted"
	CodeQueueCancelled          Code = "QueueCancelled"
	CodeAlreadyInQueue          Code = "AlreadyInQueue"
	CodeMultipleActiveQueues    Code = "MultipleActiveQueues"

	// Authorization
	CodeUnauthorized  Code = "Unauthorized"
	CodeForbidden     Code = "Forbidden"
	CodeNotQueueOwner Code = "NotQueueOwner"
	CodeNotVenueOwner Code = "NotVenueOwner"

	// Venue
	CodeVenueNotFound        Code = "VenueNotFound"
	CodeVenueClosed          Code = "VenueClosed"
	CodeVenueLocationMissing Code = "VenueLocationMissing"

	// Notification
	CodeNotificationFailed    Code = "NotificationFailed"
	CodeExternalMessageFailed Code = "ExternalMessageFailed"
	CodeRealtimeFailed        Code = "RealtimeFailed"
	CodePushFailed            Code = "PushFailed"

	// Validation
	CodeInvalidInput         Code = "InvalidInput"
	CodeMissingRequiredField Code = "MissingRequiredField"
	CodeInvalidQueueID       Code = "InvalidQueueId"
	CodeInvalidUserID        Code = "InvalidUserId"
	CodeInvalidVenueID       Code = "InvalidVenueId"

	// Server
	CodeDatabaseError      Code = "DatabaseError"
	CodeInternalError      Code = "InternalError"
	CodeServiceUnavailable Code = "ServiceUnavailable"
)

// Error is the one structured error type. Op names where it happened
// (package.Function), Msg is internal detail, UserMessage is safe to echo
// back to clients.
type Error struct {
	Code        Code
	Op          string
	Msg         string
	UserMessage string
	Retryable   bool
	Details     map[string]any
	Err         error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Code, e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on code so errors.Is(err, &Error{Code: CodeQueueNotFound}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithDetail returns e with one detail key set, allocating the map lazily.
func (e *Error) WithDetail(key string, val any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = val
	return e
}

// New builds an Error with the given code. UserMessage defaults to msg;
// use NewUser when the internal message is not client-safe.
func New(code Code, op, msg string, err error) *Error {
	return &Error{Code: code, Op: op, Msg: msg, UserMessage: msg, Err: err, Retryable: retryableByDefault(code)}
}

// NewUser builds an Error with distinct internal and user-facing messages.
func NewUser(code Code, op, msg, userMsg string, err error) *Error {
	e := New(code, op, msg, err)
	e.UserMessage = userMsg
	return e
}

// CodeOf extracts the code from err, or CodeInternalError when err is not
// one of ours. Unknown errors are never surfaced verbatim to users.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternalError
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool { return CodeOf(err) == code }

// Retryable reports whether the operation that produced err may be retried.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

func retryableByDefault(code Code) bool {
	switch code {
	case CodeLocationTimeout, CodeRateLimitExceeded, CodeNotificationRateLimit,
		CodeExternalMessageFailed, CodeRealtimeFailed, CodePushFailed,
		CodeDatabaseError, CodeServiceUnavailable:
		return true
	}
	return false
}

// HTTPStatus maps a code to the boundary's response status.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidInput, CodeMissingRequiredField, CodeInvalidQueueID,
		CodeInvalidUserID, CodeInvalidVenueID, CodeInvalidCoordinates,
		CodeLocationAccuracyLow, CodeProfileIncomplete:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeNotQueueOwner, CodeNotVenueOwner, CodeUserBanned, CodeUserSuspicious:
		return http.StatusForbidden
	case CodeQueueNotFound, CodeVenueNotFound, CodeUserNotFound:
		return http.StatusNotFound
	case CodeInvalidStatusTransition, CodeAlreadyInQueue, CodeMultipleActiveQueues,
		CodeQueueAlreadyCompleted, CodeQueueCancelled:
		return http.StatusConflict
	case CodeRateLimitExceeded, CodeNotificationRateLimit:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// As is a convenience re-export so call sites don't need a second import.
func As(err error, target any) bool { return errors.As(err, target) }
