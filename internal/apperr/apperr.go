// Package apperr defines the engine's error taxonomy. Every failure returned by
// a service carries a stable Kind (how the caller should react) and a Code
// (which business rule was violated), plus a human-readable message.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for the HTTP layer.
type Kind string

const (
	KindValidation          Kind = "ValidationError"
	KindNotFound            Kind = "NotFoundError"
	KindConflict            Kind = "ConflictError"
	KindConcurrencyConflict Kind = "ConcurrencyConflictError"
	KindTraversalLimit      Kind = "TraversalLimitExceeded"
)

// Code identifies the specific rule that failed.
type Code string

const (
	CodeValidation            Code = "ValidationError"
	CodeInsufficientQuantity  Code = "InsufficientQuantity"
	CodeLotNotAvailable       Code = "LotNotAvailable"
	CodeLotDepleted           Code = "LotDepleted"
	CodeInvalidState          Code = "InvalidState"
	CodeInvalidTransition     Code = "InvalidTransition"
	CodeDuplicateLotNumber    Code = "DuplicateLotNumber"
	CodeDuplicateSerialNumber Code = "DuplicateSerialNumber"
	CodeEntityNotFound        Code = "EntityNotFound"
	CodeInvalidRelationship   Code = "InvalidRelationship"
	CodeSelfLoop              Code = "SelfLoop"
	CodeMaterialOrLotNotFound Code = "MaterialOrLotNotFound"
	CodeConcurrencyConflict   Code = "ConcurrencyConflict"
	CodeTraversalLimit        Code = "TraversalLimitExceeded"
)

// Error is the concrete error type returned by the engine.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Code so callers can write errors.Is(err, apperr.ErrConcurrencyConflict).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newf(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrConcurrencyConflict is the sentinel for optimistic-lock failures.
var ErrConcurrencyConflict = &Error{
	Kind:    KindConcurrencyConflict,
	Code:    CodeConcurrencyConflict,
	Message: "the record was modified concurrently, retry the operation",
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, CodeValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, CodeEntityNotFound, format, args...)
}

func InsufficientQuantity(format string, args ...any) *Error {
	return newf(KindConflict, CodeInsufficientQuantity, format, args...)
}

func LotNotAvailable(format string, args ...any) *Error {
	return newf(KindConflict, CodeLotNotAvailable, format, args...)
}

func LotDepleted(format string, args ...any) *Error {
	return newf(KindConflict, CodeLotDepleted, format, args...)
}

func InvalidState(format string, args ...any) *Error {
	return newf(KindConflict, CodeInvalidState, format, args...)
}

func InvalidTransition(format string, args ...any) *Error {
	return newf(KindConflict, CodeInvalidTransition, format, args...)
}

func DuplicateLotNumber(lotNumber string) *Error {
	return newf(KindConflict, CodeDuplicateLotNumber, "lot number %q already exists", lotNumber)
}

func DuplicateSerialNumber(serialNumber string) *Error {
	return newf(KindConflict, CodeDuplicateSerialNumber, "serial number %q already exists", serialNumber)
}

func InvalidRelationship(format string, args ...any) *Error {
	return newf(KindValidation, CodeInvalidRelationship, format, args...)
}

func SelfLoop(format string, args ...any) *Error {
	return newf(KindValidation, CodeSelfLoop, format, args...)
}

func MaterialOrLotNotFound(format string, args ...any) *Error {
	return newf(KindNotFound, CodeMaterialOrLotNotFound, format, args...)
}

func TraversalLimit(format string, args ...any) *Error {
	return newf(KindTraversalLimit, CodeTraversalLimit, format, args...)
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the Code of err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether the caller may retry the whole operation.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConcurrencyConflict
}
