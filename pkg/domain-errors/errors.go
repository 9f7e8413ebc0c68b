// Package domainerrors carries the stable error taxonomy shared by the realm
// engine. Callers branch on codes, never on message text.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure. The numeric identifier is stable across
// releases and is what external systems log and alert on.
type Code string

const (
	CodeInvalidInput     Code = "invalid_input"
	CodeValidation       Code = "validation_failure"
	CodeNotFound         Code = "not_found"
	CodeAlreadyExists    Code = "already_exists"
	CodeReadOnly         Code = "read_only_violation"
	CodePolicyViolation  Code = "policy_violation"
	CodeUnsupported      Code = "unsupported_operation"
	CodeDownstream       Code = "downstream_failure"
	CodeInvalidDomain    Code = "invalid_domain"
	CodeConfiguration    Code = "configuration"
	CodeAuthentication   Code = "authentication_error"
	CodeUnsupportedCred  Code = "unsupported_credential_type"
	CodeTenantDeactived  Code = "tenant_deactivated"
	CodeInternal         Code = "internal"
)

// ids maps codes to their stable numeric identifiers.
var ids = map[Code]string{
	CodeUnsupportedCred: "30001",
	CodeReadOnly:        "30002",
	CodeValidation:      "30003",
	CodeAlreadyExists:   "30004",
	CodeNotFound:        "30007",
	CodePolicyViolation: "30010",
	CodeAuthentication:  "31001",
	CodeTenantDeactived: "31003",
	CodeInvalidDomain:   "34010",
	CodeInvalidInput:    "30016",
	CodeUnsupported:     "30017",
	CodeDownstream:      "30018",
	CodeConfiguration:   "30019",
	CodeInternal:        "30020",
}

// ID returns the stable numeric identifier for the code, or the code text
// when no numeric mapping exists.
func (c Code) ID() string {
	if id, ok := ids[c]; ok {
		return id
	}
	return string(c)
}

// Error is a code-carrying error. It wraps an optional cause so errors.Is
// and errors.As keep working through the realm call graph.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code.ID(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code.ID(), e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error with a code and a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and context to an existing error. A nil err yields
// nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
		de = nil
	}
	return false
}

// CodeOf returns the code of the outermost coded error, or CodeInternal
// when the chain carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
