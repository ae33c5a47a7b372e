package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOf(t *testing.T) {
	err := New(CodeQueueNotFound, "queue.Get", "no such entry", nil)
	if got := CodeOf(err); got != CodeQueueNotFound {
		t.Fatalf("CodeOf = %s, want %s", got, CodeQueueNotFound)
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeInternalError {
		t.Fatalf("CodeOf(plain) = %s, want %s", got, CodeInternalError)
	}

	// wrapped errors still resolve
	wrapped := fmt.Errorf("outer: %w", err)
	if !IsCode(wrapped, CodeQueueNotFound) {
		t.Fatalf("IsCode failed through wrapping: %+v", wrapped)
	}
}

func TestUnwrapChain(t *testing.T) {
	inner := stderrors.New("driver: connection refused")
	err := New(CodeDatabaseError, "db.Get", "select failed", inner)
	if !stderrors.Is(err, inner) {
		t.Fatalf("errors.Is lost the cause: %+v", err)
	}
}

func TestIsMatchesOnCode(t *testing.T) {
	err := New(CodeForbidden, "api.GetQueue", "actor is not the entry owner", nil)
	if !stderrors.Is(err, &Error{Code: CodeForbidden}) {
		t.Fatalf("Is by code failed")
	}
	if stderrors.Is(err, &Error{Code: CodeUnauthorized}) {
		t.Fatalf("Is matched the wrong code")
	}
	// empty target code matches any coded error
	if !stderrors.Is(err, &Error{}) {
		t.Fatalf("Is with empty code should match")
	}
}

func TestNewUserMessages(t *testing.T) {
	err := NewUser(CodeUserBanned, "queue.Enrol", "banned until 2026-01-01", "account is suspended", nil)
	if err.Msg == err.UserMessage {
		t.Fatalf("internal and user messages should differ: %+v", err)
	}
	if err.UserMessage != "account is suspended" {
		t.Fatalf("UserMessage = %q", err.UserMessage)
	}
}

func TestWithDetail(t *testing.T) {
	err := New(CodeRateLimitExceeded, "api.CheckIn", "limit hit", nil).WithDetail("retryAfter", 42)
	if err.Details["retryAfter"] != 42 {
		t.Fatalf("details = %+v", err.Details)
	}
}

func TestRetryableDefaults(t *testing.T) {
	if !Retryable(New(CodeDatabaseError, "op", "m", nil)) {
		t.Fatalf("database errors should be retryable")
	}
	if Retryable(New(CodeInvalidStatusTransition, "op", "m", nil)) {
		t.Fatalf("transition conflicts must not be retryable")
	}
	if Retryable(stderrors.New("plain")) {
		t.Fatalf("unknown errors must not be retryable")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeMissingRequiredField, http.StatusBadRequest},
		{CodeInvalidCoordinates, http.StatusBadRequest},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeNotVenueOwner, http.StatusForbidden},
		{CodeQueueNotFound, http.StatusNotFound},
		{CodeInvalidStatusTransition, http.StatusConflict},
		{CodeAlreadyInQueue, http.StatusConflict},
		{CodeRateLimitExceeded, http.StatusTooManyRequests},
		{CodeServiceUnavailable, http.StatusServiceUnavailable},
		{CodeInternalError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(New(tc.code, "op", "m", nil)); got != tc.want {
			t.Fatalf("HTTPStatus(%s) = %d, want %d", tc.code, got, tc.want)
		}
	}
	if got := HTTPStatus(stderrors.New("plain")); got != http.StatusInternalServerError {
		t.Fatalf("HTTPStatus(plain) = %d", got)
	}
}
