package domain

import "errors"

var (
	// ErrValidation marks rejected input; handlers translate it to 400.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing record; handlers translate it to 404.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a state transition or uniqueness conflict; handlers translate it to 409.
	ErrConflict = errors.New("conflict")
)
