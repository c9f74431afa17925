package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Use errors.Is; HTTP failures are also *Error.
var (
	// ErrUnauthorized matches any *Error with status 401.
	ErrUnauthorized = errors.New("apiclient: unauthorized")

	// ErrUnavailable wraps transport failures: no response was received.
	ErrUnavailable = errors.New("apiclient: backend unavailable")

	// ErrBadResponse is returned when a 2xx body cannot be decoded.
	ErrBadResponse = errors.New("apiclient: malformed response")
)

// Error is a non-2xx response. Message is the backend's {error} or
// {message} text and may be empty.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("apiclient: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("apiclient: %d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Is makes errors.Is(err, ErrUnauthorized) true for 401 responses.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
