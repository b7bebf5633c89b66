package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrConflict           = errors.New("concurrent update conflict")
	ErrInvalidTransition  = errors.New("invalid job status transition")
	ErrInvalidExecContext = errors.New("invalid db execution context")

	// Provider errors
	ErrNotConfigured     = errors.New("provider not configured")
	ErrCorruptCredential = errors.New("stored credential could not be decrypted")
	ErrAuth              = errors.New("provider rejected credential")
	ErrConnection        = errors.New("provider unreachable")
	ErrUpstream          = errors.New("provider returned an error")
	ErrTimeout           = errors.New("operation timed out")
	ErrUnsupported       = errors.New("operation not supported by provider")
)

// ValidationError reports bad caller input. It matches ErrInvalidArgument.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid argument: " + e.Reason
	}
	return fmt.Sprintf("invalid argument: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// UpstreamError carries the status and body a reachable backend answered with.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: http %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// Kind names the taxonomy bucket of err, for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidTransition):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadyExists):
		return "conflict"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	}
	return "internal"
}
