package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidName     = errors.New("donor name is required")
	ErrInvalidAmount   = errors.New("amount must be a positive number")
	ErrInvalidCurrency = errors.New("unsupported currency")
	ErrInvalidRate     = errors.New("invalid exchange rate")

	ErrNotFound     = errors.New("donation not found")
	ErrNotConfirmed = errors.New("destructive action was not confirmed")

	ErrImportFormat = errors.New("spreadsheet is unreadable or empty")
	ErrNoValidRows  = errors.New("spreadsheet has no valid donations")
	ErrBackupFormat = errors.New("invalid backup document")
)

// PersistenceError reports a failed durable write or read. The in-memory
// state it refers to is kept as attempted.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is one of the input validation errors.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidCurrency) ||
		errors.Is(err, ErrInvalidRate)
}

// IsPersistence reports whether err carries a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
