package model

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a stable, machine-readable error category.
//
// Callers should branch on Code (via CodeOf or IsCode) rather than matching
// Error() strings, which are for humans and may change.
type Code string

const (
	CodeDuplicateSelector     Code = "DUPLICATE_SELECTOR"
	CodeSelectorAlreadyExists Code = "SELECTOR_ALREADY_EXISTS"
	CodeSelectorNotFound      Code = "SELECTOR_NOT_FOUND"
	CodeFacetNotCallable      Code = "FACET_NOT_CALLABLE"
	CodeNoOpReplace           Code = "NO_OP_REPLACE"
	CodeFunctionNotFound      Code = "FUNCTION_NOT_FOUND"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeSelfRenounceOnly      Code = "SELF_RENOUNCE_ONLY"
	CodeInitializerMismatch   Code = "INITIALIZER_MISMATCH"
	CodeInitializerFailed     Code = "INITIALIZER_FAILED"
	CodeEmptySelectors        Code = "EMPTY_SELECTORS"
	CodeRemoveFacetNotZero    Code = "REMOVE_FACET_NOT_ZERO"
	CodeImmutableSelector     Code = "IMMUTABLE_SELECTOR"
	CodeInvalidAction         Code = "INVALID_ACTION"
	CodeInvalidRoleAdmin      Code = "INVALID_ROLE_ADMIN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeInternal              Code = "INTERNAL"
)

// Error is the structured error returned by the routing table, the access
// gate and the router. The optional fields name the offending value so a
// failure can be diagnosed without inspecting router state.
type Error struct {
	Code     Code
	Message  string
	Selector *Selector
	Facet    *Address
	Role     *RoleID
	Account  *Address
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Selector != nil {
		fmt.Fprintf(&b, " (selector %s)", e.Selector)
	}
	if e.Facet != nil {
		fmt.Fprintf(&b, " (facet %s)", e.Facet)
	}
	if e.Role != nil {
		fmt.Fprintf(&b, " (role %s)", e.Role)
	}
	if e.Account != nil {
		fmt.Fprintf(&b, " (account %s)", e.Account)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError returns an *Error with the given code and message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithSelector records the offending selector and returns e.
func (e *Error) WithSelector(s Selector) *Error { e.Selector = &s; return e }

// WithFacet records the offending facet address and returns e.
func (e *Error) WithFacet(a Address) *Error { e.Facet = &a; return e }

// WithRole records the offending role and returns e.
func (e *Error) WithRole(r RoleID) *Error { e.Role = &r; return e }

// WithAccount records the offending account and returns e.
func (e *Error) WithAccount(a Address) *Error { e.Account = &a; return e }

// WithCause records the underlying error and returns e.
func (e *Error) WithCause(err error) *Error { e.Cause = err; return e }

// CodeOf returns the Code of a structured error, or "" if err is not one.
func CodeOf(err error) Code {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
