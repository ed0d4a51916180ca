package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeBadRequest  ErrorType = "bad_request"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Kind is the failure class a caller reacts to
type Kind string

const (
	// TransientFailure survived every retry attempt; the run must stop
	TransientFailure Kind = "transient_failure"
	// FatalFailure is never retried and stops the run
	FatalFailure Kind = "fatal_failure"
	// ItemActionFailure concerns a single item and is skipped
	ItemActionFailure Kind = "item_action_failure"
)

// Error represents an API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	// Op is the remote operation that failed, e.g. app.bsky.feed.getActorLikes
	Op string
	// RetryAfter is the server's hint for when to try again, zero if none
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s error (code %d): %s", e.Op, e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// Failure wraps an error with its failure class
type Failure struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	if f.Attempts > 1 {
		return fmt.Sprintf("%s after %d attempts: %v", f.Kind, f.Attempts, f.Err)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure wraps err with the given kind
func NewFailure(kind Kind, attempts int, err error) *Failure {
	return &Failure{Kind: kind, Attempts: attempts, Err: err}
}

// KindOf reports the failure class of err. Errors that carry no class are
// fatal: an unknown condition is never safe to continue past.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Type == ErrorTypeNotFound:
			return ItemActionFailure
		case IsRetryable(apiErr.Type):
			return TransientFailure
		}
	}
	return FatalFailure
}

// IsType reports whether err wraps an *Error of the given type
func IsType(err error, t ErrorType) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Type == t
}

// RetryAfterOf returns the retry hint carried by err, or zero
func RetryAfterOf(err error) time.Duration {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing, ErrorTypeBadRequest:
		return false
	default:
		return false
	}
}

// FromStatus maps an HTTP status and the XRPC error name to a typed error
func FromStatus(statusCode int, xrpcError, message string) *Error {
	e := &Error{Code: statusCode, Message: message}
	if e.Message == "" {
		e.Message = http.StatusText(statusCode)
	}

	switch xrpcError {
	case "ExpiredToken", "InvalidToken", "AuthenticationRequired", "AccountTakedown":
		e.Type = ErrorTypeAuth
		return e
	case "RecordNotFound", "NotFound":
		e.Type = ErrorTypeNotFound
		return e
	case "RateLimitExceeded":
		e.Type = ErrorTypeRateLimit
		return e
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		e.Type = ErrorTypeRateLimit
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Type = ErrorTypeAuth
	case statusCode == http.StatusNotFound:
		e.Type = ErrorTypeNotFound
	case statusCode == http.StatusBadRequest:
		e.Type = ErrorTypeBadRequest
	case statusCode >= 500:
		e.Type = ErrorTypeServerError
	default:
		e.Type = ErrorTypeUnknown
	}
	return e
}
