package core

import (
	"errors"
	"fmt"
)

// Code is the taxonomy surfaced to clients. Command errors are returned
// synchronously to the issuing client only, never broadcast.
type Code string

const (
	CodeUnauthorized    Code = "unauthorized"
	CodeNotFound        Code = "not_found"
	CodeInvalidState    Code = "invalid_state"
	CodeExternalService Code = "external_service_error"
	CodeTimeout         Code = "timeout"
)

// Error is a coded command error. Sentinels below are the match targets for
// errors.Is; wrap them with fmt.Errorf("%w: detail") to add context.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

var (
	ErrUnauthorized    = &Error{Code: CodeUnauthorized, Message: "actor lacks required role"}
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "session or participant not found"}
	ErrInvalidState    = &Error{Code: CodeInvalidState, Message: "action not permitted in current lifecycle state"}
	ErrExternalService = &Error{Code: CodeExternalService, Message: "external service failed"}
	ErrTimeout         = &Error{Code: CodeTimeout, Message: "operation timed out"}
)

// CodeOf maps an error chain to its taxonomy code, or empty when uncoded.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
