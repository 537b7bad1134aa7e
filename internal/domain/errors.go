package domain

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error identifier returned to clients
// in the "code" field of error bodies.
type Code string

const (
	CodeNotAuthenticated Code = "not_authenticated"
	CodeValidation       Code = "validation"
	CodeNotFound         Code = "not_found"
	CodeRemote           Code = "remote_error"
	CodeCircuitOpen      Code = "backend_unavailable"
	CodeInternal         Code = "internal"
)

// ErrNotAuthenticated means the call carries no owner session.
type ErrNotAuthenticated struct {
	Reason string
}

func (e *ErrNotAuthenticated) Error() string {
	if e.Reason == "" {
		return "no active session"
	}
	return "no active session: " + e.Reason
}

func (e *ErrNotAuthenticated) Code() Code { return CodeNotAuthenticated }

// ErrValidation rejects malformed input. Field names the offending input.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ErrValidation) Code() Code { return CodeValidation }

// ErrNotFound reports a category, transaction or file that does not exist
// for the owner.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *ErrNotFound) Code() Code { return CodeNotFound }

// ErrExternalService wraps a failed backend call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error { return e.Err }

func (e *ErrExternalService) Code() Code { return CodeRemote }

// ErrCircuitOpen is returned without calling the backend while its
// circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return e.Service + ": circuit open"
}

func (e *ErrCircuitOpen) Code() Code { return CodeCircuitOpen }

// ErrorCode returns the code of the first coded error in err's chain, or
// CodeInternal.
func ErrorCode(err error) Code {
	var coded interface{ Code() Code }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeInternal
}

// IsNotFound reports whether err is, or wraps, an ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}
