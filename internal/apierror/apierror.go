// Package apierror defines the error responses returned by the API.
package apierror

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Codes for the taxonomy of request failures.
const (
	CodeRateLimited         = "RATE_LIMITED"
	CodeForbidden           = "FORBIDDEN"
	CodeInvalidSubmission   = "INVALID_SUBMISSION"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeAuthRequired        = "AUTH_REQUIRED"
	CodeAuthInvalid         = "AUTH_INVALID"
)

// Error is an HTTP-facing failure. Auth errors are rendered as
// {error, message, code}; everything else as {message}.
type Error struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration

	authShape bool
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// WriteJSON writes the error response.
func (e *Error) WriteJSON(w http.ResponseWriter) {
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds(e.RetryAfter)))
	}

	var body interface{}
	if e.authShape {
		body = struct {
			Error   string `json:"error"`
			Message string `json:"message"`
			Code    string `json:"code"`
		}{Error: http.StatusText(e.Status), Message: e.Message, Code: e.Code}
	} else {
		body = struct {
			Message string `json:"message"`
		}{Message: e.Message}
	}
	WriteJSON(w, e.Status, body)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RetryAfterSeconds rounds d up to whole seconds, never below 1.
func RetryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func RateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Status:     http.StatusTooManyRequests,
		Code:       CodeRateLimited,
		Message:    "Too many requests. Please try again later.",
		RetryAfter: retryAfter,
	}
}

func Forbidden(message string) *Error {
	if message == "" {
		message = "Request origin is not allowed."
	}
	return &Error{Status: http.StatusForbidden, Code: CodeForbidden, Message: message}
}

func InvalidSubmission(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeInvalidSubmission, Message: message}
}

func UpstreamUnavailable(message string) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeUpstreamUnavailable, Message: message}
}

func AuthRequired(message string) *Error {
	if message == "" {
		message = "Authentication required."
	}
	return &Error{Status: http.StatusUnauthorized, Code: CodeAuthRequired, Message: message, authShape: true}
}

func AuthInvalid(message string) *Error {
	if message == "" {
		message = "Invalid credentials."
	}
	return &Error{Status: http.StatusForbidden, Code: CodeAuthInvalid, Message: message, authShape: true}
}
