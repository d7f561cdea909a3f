package llm

import (
	"fmt"
	"time"
)

// Error taxonomy for the completion API. Only RateLimitError and ServerError
// are retried; everything else propagates to the caller immediately.

type BadRequestError struct{ Message string }

func (e *BadRequestError) Error() string { return "llm: bad request: " + e.Message }

type AuthError struct{ Message string }

func (e *AuthError) Error() string { return "llm: authentication failed: " + e.Message }

type RateLimitError struct {
	Message    string
	RetryAfter time.Duration // 0 when the API gave no hint
}

func (e *RateLimitError) Error() string { return "llm: rate limited: " + e.Message }

type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("llm: upstream server error (%d): %s", e.Status, e.Message)
}

type NetworkError struct{ Err error }

func (e *NetworkError) Error() string { return "llm: network error: " + e.Err.Error() }

func (e *NetworkError) Unwrap() error { return e.Err }

// retryable reports whether the error class is transient.
func retryable(err error) bool {
	switch err.(type) {
	case *RateLimitError, *ServerError:
		return true
	}
	return false
}
