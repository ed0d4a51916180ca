package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		xrpc     string
		expected ErrorType
	}{
		{"rate limited", http.StatusTooManyRequests, "", ErrorTypeRateLimit},
		{"rate limited by name", http.StatusBadRequest, "RateLimitExceeded", ErrorTypeRateLimit},
		{"bad gateway", http.StatusBadGateway, "", ErrorTypeServerError},
		{"gateway timeout", http.StatusGatewayTimeout, "", ErrorTypeServerError},
		{"unauthorized", http.StatusUnauthorized, "", ErrorTypeAuth},
		{"expired token", http.StatusBadRequest, "ExpiredToken", ErrorTypeAuth},
		{"record not found", http.StatusBadRequest, "RecordNotFound", ErrorTypeNotFound},
		{"plain 404", http.StatusNotFound, "", ErrorTypeNotFound},
		{"malformed request", http.StatusBadRequest, "InvalidRequest", ErrorTypeBadRequest},
		{"teapot", http.StatusTeapot, "", ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromStatus(tt.status, tt.xrpc, "")
			assert.Equal(t, tt.expected, err.Type)
			assert.Equal(t, tt.status, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, TransientFailure, KindOf(&Error{Type: ErrorTypeRateLimit}))
	assert.Equal(t, TransientFailure, KindOf(&Error{Type: ErrorTypeNetwork}))
	assert.Equal(t, FatalFailure, KindOf(&Error{Type: ErrorTypeAuth}))
	assert.Equal(t, FatalFailure, KindOf(&Error{Type: ErrorTypeBadRequest}))
	assert.Equal(t, ItemActionFailure, KindOf(&Error{Type: ErrorTypeNotFound}))
	assert.Equal(t, FatalFailure, KindOf(errors.New("boom")))

	wrapped := fmt.Errorf("delete post: %w", NewFailure(TransientFailure, 3, &Error{Type: ErrorTypeServerError}))
	assert.Equal(t, TransientFailure, KindOf(wrapped))
	assert.True(t, IsType(wrapped, ErrorTypeServerError))
	assert.False(t, IsType(wrapped, ErrorTypeAuth))
}

func TestFailureError(t *testing.T) {
	f := NewFailure(TransientFailure, 3, &Error{Type: ErrorTypeServerError, Code: 502, Message: "bad gateway", Op: "app.bsky.feed.getAuthorFeed"})
	assert.Contains(t, f.Error(), "after 3 attempts")
	assert.Contains(t, f.Error(), "app.bsky.feed.getAuthorFeed")

	single := NewFailure(FatalFailure, 1, &Error{Type: ErrorTypeAuth, Code: 401, Message: "authentication required"})
	assert.NotContains(t, single.Error(), "attempts")
}

func TestRetryAfterOf(t *testing.T) {
	hinted := &Error{Type: ErrorTypeRateLimit, Code: 429, RetryAfter: time.Minute}
	assert.Equal(t, time.Minute, RetryAfterOf(hinted))
	assert.Equal(t, time.Minute, RetryAfterOf(fmt.Errorf("listing likes: %w", hinted)))
	assert.Zero(t, RetryAfterOf(errors.New("plain")))
	assert.Zero(t, RetryAfterOf(nil))
}
