package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	// ErrConflict is returned when a write violates a unique constraint.
	ErrConflict = errors.New("conflict")
	// ErrWaitInterrupted is returned when a completion wait is canceled before it finishes.
	ErrWaitInterrupted = errors.New("wait interrupted")
)
