package services

import (
	"errors"
	"fmt"

	"nexosql-backend/pkg/apperr"
)

// Custom errors shared by the services. Handlers map them with errors.Is.
var (
	ErrValidation         = errors.New("input validation failed")
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNotFound       = errors.New("user not found")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrUnsupportedEngine  = errors.New("unsupported database engine")
	ErrChatNotFound       = errors.New("chat not found")
	ErrDuplicateThread    = errors.New("thread id already in flight")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrForbidden          = errors.New("operation not allowed")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

// PlanError is a refusal tied to the caller's subscription. Code is one of
// the apperr plan codes and travels to the client in the envelope.
type PlanError struct {
	Code   string
	Detail string
}

func (e *PlanError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return e.Code
}

// Message is the Spanish copy for the code.
func (e *PlanError) Message() string {
	return apperr.MessageFor(e.Code, "")
}

func planErr(code string) error {
	return &PlanError{Code: code}
}

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
