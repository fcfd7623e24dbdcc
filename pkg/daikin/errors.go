package daikin

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidCredentials indicates the API rejected the credentials, or didn't return a usable token.
	// Retrying won't help: the client needs to be reconfigured.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrServerNotReachable indicates a transport-level failure. The request may succeed later.
	ErrServerNotReachable = errors.New("server not reachable")
)

// APIError is returned when the API answers a request with a non-2xx status.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	msg := e.Method + " " + e.Path + ": " + e.Status
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

type reachabilityError struct {
	err error
}

func (e *reachabilityError) Error() string {
	return fmt.Sprintf("%s: %s", ErrServerNotReachable, e.err)
}

func (e *reachabilityError) Is(err error) bool {
	return err == ErrServerNotReachable
}

func (e *reachabilityError) Unwrap() error {
	return e.err
}
