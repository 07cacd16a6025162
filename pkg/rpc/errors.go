package rpc

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks a call that exhausted its attempt budget.
	ErrNetwork = errors.New("rpc network error")
	// ErrNoEndpoints is returned when neither the pool nor the main URL can serve a call.
	ErrNoEndpoints = errors.New("no rpc endpoint available")
)

// Error is returned by HTTPClient.Call once every attempt failed.
type Error struct {
	Path     string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc %s failed after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrNetwork, e.Err}
}

// StatusError is a non-2xx answer from an endpoint.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http %d", e.Endpoint, e.Code)
}
