package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// HTTPError is a non-2xx response from the upload API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the server may accept the same request later.
func (e *HTTPError) Retryable() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// NetworkError wraps a transport failure where no response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Retryable is false only when the caller cancelled the request.
func (e *NetworkError) Retryable() bool {
	return !errors.Is(e.Err, context.Canceled)
}

// Timeout reports whether the transport gave up waiting.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}
