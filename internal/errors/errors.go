package errors

import (
	"errors"
)

// Failure kinds shared across packages, match with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrStorage      = errors.New("storage failure")
	ErrNotFound     = errors.New("not found")
	ErrTransport    = errors.New("transport failure")
	ErrInProgress   = errors.New("already in progress")
)
