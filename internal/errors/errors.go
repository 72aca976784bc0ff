// Package errors defines the domain error taxonomy shared by services and
// the HTTP layer. Import it as apperrors to avoid clashing with the standard
// library package.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a DomainError. The HTTP layer maps kinds to status codes.
type Kind string

const (
	KindBadRequest          Kind = "BAD_REQUEST"
	KindNotFound            Kind = "NOT_FOUND"
	KindOwnershipViolation  Kind = "OWNERSHIP_VIOLATION"
	KindInvalidState        Kind = "INVALID_STATE"
	KindExpired             Kind = "EXPIRED"
	KindInsufficientFunds   Kind = "INSUFFICIENT_FUNDS"
	KindIdempotencyConflict Kind = "IDEMPOTENCY_CONFLICT"
	KindConflict            Kind = "CONFLICT"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindForbidden           Kind = "FORBIDDEN"
	KindInternal            Kind = "INTERNAL"
)

// DomainError is a business error with a stable machine code.
type DomainError struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Kind and Code so sentinels can be compared with errors.Is
// even after being copied with a different message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithMessage returns a copy of e carrying msg.
func (e *DomainError) WithMessage(msg string) *DomainError {
	cp := *e
	cp.Message = msg
	return &cp
}

// WithField returns a copy of e with a field-level validation detail attached.
func (e *DomainError) WithField(field, msg string) *DomainError {
	cp := *e
	cp.Fields = make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		cp.Fields[k] = v
	}
	cp.Fields[field] = msg
	return &cp
}

func newError(kind Kind, code, msg string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: msg}
}

func BadRequest(msg string) *DomainError {
	return newError(KindBadRequest, "BAD_REQUEST", msg)
}

func NotFound(msg string) *DomainError {
	return newError(KindNotFound, "NOT_FOUND", msg)
}

func OwnershipViolation(msg string) *DomainError {
	return newError(KindOwnershipViolation, "OWNERSHIP_VIOLATION", msg)
}

func InvalidState(msg string) *DomainError {
	return newError(KindInvalidState, "INVALID_STATE", msg)
}

func Expired(msg string) *DomainError {
	return newError(KindExpired, "EXPIRED", msg)
}

func InsufficientFunds(msg string) *DomainError {
	return newError(KindInsufficientFunds, "INSUFFICIENT_FUNDS", msg)
}

func IdempotencyConflict(msg string) *DomainError {
	return newError(KindIdempotencyConflict, "IDEMPOTENCY_CONFLICT", msg)
}

func Conflict(msg string) *DomainError {
	return newError(KindConflict, "CONFLICT", msg)
}

func Unauthorized(msg string) *DomainError {
	return newError(KindUnauthorized, "UNAUTHORIZED", msg)
}

func Forbidden(msg string) *DomainError {
	return newError(KindForbidden, "FORBIDDEN", msg)
}

// KindOf returns the Kind of the first DomainError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// As extracts the DomainError from err's chain.
func As(err error) (*DomainError, bool) {
	var de *DomainError
	ok := errors.As(err, &de)
	return de, ok
}
