package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.
// Four categories, matching how callers must react:
//
//	ErrValidation    — bad input, rejected before any mutation
//	ErrStateConflict — stale read; refetch and retry
//	ErrNotFound      — unknown user/assignment/template id
//	ErrPersistence   — store failure; the whole decision unit rolls back

var (
	ErrValidation    = errors.New("validation failed")
	ErrStateConflict = errors.New("state conflict")
	ErrNotFound      = errors.New("not found")
	ErrPersistence   = errors.New("persistence failure")
)

// Validationf wraps ErrValidation with detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Conflictf wraps ErrStateConflict with detail.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrStateConflict}, args...)...)
}

// NotFoundf wraps ErrNotFound with detail.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Persistencef wraps ErrPersistence around an underlying store error.
func Persistencef(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}
