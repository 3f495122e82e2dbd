package rest

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// ErrUnauthorized is returned for 401 responses. The session credential is no
// longer valid and the caller must not retry.
var ErrUnauthorized = errors.New("rest: unauthorized")

// StatusError is a non-2xx response.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
}

// IsConflict reports whether err means the target was already gone or
// already in the requested state.
func IsConflict(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusNotFound || se.Code == http.StatusConflict
}

// IsTransient reports whether a retry could succeed.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrUnauthorized) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
