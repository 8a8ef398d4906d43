package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrBadRequest matches backend responses with status 400.
	ErrBadRequest = errors.New("bad request")
	// ErrNotFound matches backend responses with status 404.
	ErrNotFound = errors.New("not found")
	// ErrConflict matches backend responses with status 409.
	ErrConflict = errors.New("conflict")
	// ErrMalformedResponse indicates a successful response whose body does not match its schema.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrEmptyArgument is returned before any request is issued when a required argument is empty.
	ErrEmptyArgument = errors.New("required argument is empty")
)

// StatusError reports a non-2xx response from the backend.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: unexpected status %d %s: %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Is lets callers match status classes with errors.Is.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// StatusCode extracts the backend status from err, or 0 when err is not a StatusError.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
