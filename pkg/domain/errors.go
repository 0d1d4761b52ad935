package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSemester is returned when the semester is neither 1 nor 2.
	ErrInvalidSemester = errors.New("invalid semester")
	// ErrInvalidYear is returned when the year is outside [MinYear, MaxYear].
	ErrInvalidYear = errors.New("invalid year")
	// ErrUnauthorized is returned when the caller identity cannot be resolved.
	ErrUnauthorized = errors.New("unauthorized caller")
	// ErrDuplicateIdentifier is returned when a derived identifier already exists
	// in the primary map of its kind. It indicates a broken invariant and is never retried.
	ErrDuplicateIdentifier = errors.New("duplicate record identifier")
	// ErrUnknownKind is returned for record kinds outside RecordKinds.
	ErrUnknownKind = errors.New("unknown record kind")
	// ErrInvalidTerm is returned when a term key cannot be parsed.
	ErrInvalidTerm = errors.New("invalid term")
)

// LedgerError scopes a failure to the ledger operation that produced it.
type LedgerError struct {
	Op   string
	Kind RecordKind
	Err  error
}

// NewLedgerError wraps err with the operation name and record kind.
func NewLedgerError(op string, kind RecordKind, err error) *LedgerError {
	return &LedgerError{Op: op, Kind: kind, Err: err}
}

func (e *LedgerError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// IsFatal reports whether err signals a broken store invariant rather than bad input.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDuplicateIdentifier)
}

// IsInvalidInput reports whether err was caused by caller supplied values.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidSemester) ||
		errors.Is(err, ErrInvalidYear) ||
		errors.Is(err, ErrInvalidTerm) ||
		errors.Is(err, ErrUnknownKind)
}
