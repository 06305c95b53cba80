package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when an operation is attempted without a resolved principal.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoteNotFound covers both a missing note and a note owned by someone else.
	ErrNoteNotFound = errors.New("note not found")
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is returned when attempting to register with an existing email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUserNotFound is returned when a user id does not resolve.
	ErrUserNotFound = errors.New("user not found")
	// ErrStorageDisabled is returned by export operations when no bucket is configured.
	ErrStorageDisabled = errors.New("export storage is not configured")
)

// ValidationError reports a user-correctable problem with one input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
