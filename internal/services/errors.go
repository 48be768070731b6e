package services

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorConflict     ErrorCode = "conflict"
	ErrorUnauthorized ErrorCode = "unauthorized"
	ErrorInvalidLink  ErrorCode = "invalid_link"
	ErrorValidation   ErrorCode = "validation"
	ErrorPersistence  ErrorCode = "persistence"
	ErrorClosed       ErrorCode = "closed"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
	// Violations is populated for validation failures.
	Violations []Violation
	err        error
}

func (e *ServiceError) Error() string { return e.Message }

func (e *ServiceError) Unwrap() error { return e.err }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewInvalidLinkError(msg string) error { return &ServiceError{Code: ErrorInvalidLink, Message: msg} }
func NewClosedError(msg string) error      { return &ServiceError{Code: ErrorClosed, Message: msg} }

func NewValidationError(violations []Violation) error {
	msg := "validation failed"
	if len(violations) > 0 {
		msg = violations[0].Message
	}
	return &ServiceError{Code: ErrorValidation, Message: msg, Violations: violations}
}

// NewPersistenceError wraps a document store failure.
func NewPersistenceError(op string, err error) error {
	return &ServiceError{Code: ErrorPersistence, Message: fmt.Sprintf("%s: %v", op, err), err: err}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HasCode reports whether err is a ServiceError carrying code.
func HasCode(err error, code ErrorCode) bool {
	se, ok := AsServiceError(err)
	return ok && se.Code == code
}
