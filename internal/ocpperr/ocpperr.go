// Package ocpperr models the CALLERROR vocabulary exchanged over the
// OCPP-J RPC layer (spec §7) as a typed Go error.
package ocpperr

import "fmt"

// Code is one of the standardized OCPP-J error codes.
type Code string

const (
	NotImplemented               Code = "NotImplemented"
	NotSupported                 Code = "NotSupported"
	InternalError                Code = "InternalError"
	ProtocolError                Code = "ProtocolError"
	SecurityError                Code = "SecurityError"
	FormationViolation           Code = "FormationViolation"
	PropertyConstraintViolation  Code = "PropertyConstraintViolation"
	OccurenceConstraintViolation Code = "OccurenceConstraintViolation"
	TypeConstraintViolation      Code = "TypeConstraintViolation"
	GenericError                 Code = "GenericError"
)

// Error is a CALLERROR: a code, a human description and optional details.
type Error struct {
	Code        Code
	Description string
	Details     any
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// New builds an *Error for the given code.
func New(code Code, description string) *Error {
	return &Error{Code: code, Description: description}
}

// NewWithDetails builds an *Error carrying error details.
func NewWithDetails(code Code, description string, details any) *Error {
	return &Error{Code: code, Description: description, Details: details}
}

// As extracts an *Error from err, if any.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
