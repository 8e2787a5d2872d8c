package core

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	// ErrUnauthorized is returned when the acting user lacks the capability an operation requires.
	ErrUnauthorized = errors.New("you are not allowed to perform this action")
	// ErrConflict is returned on uniqueness violations.
	ErrConflict = errors.New("conflict")
	// ErrNotFound is returned when a profile or a referenced entity is missing.
	ErrNotFound = errors.New("not found")
	// ErrBackendUnavailable is the cause of every storage, network or timeout failure.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// IsValidation reports whether err is a validation failure, either ours or the validator's.
func IsValidation(err error) bool {
	switch errors.Cause(err).(type) {
	case *ValidationError, validator.ValidationErrors:
		return true
	}
	return false
}

// unavailable keeps the original failure while reporting ErrBackendUnavailable as its cause.
type unavailable struct {
	err error
}

// Unavailable wraps a driver, network or timeout failure.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return &unavailable{err: err}
}

func (u *unavailable) Error() string { return ErrBackendUnavailable.Error() + ": " + u.err.Error() }
func (u *unavailable) Cause() error  { return ErrBackendUnavailable }
func (u *unavailable) Unwrap() error { return u.err }

func (u *unavailable) Is(target error) bool { return target == ErrBackendUnavailable }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
