package radar

import (
	"errors"
	"fmt"

	"cinegenio/models"
)

// ErrNoSnapshot means no refresh has ever persisted the radar.
var ErrNoSnapshot = errors.New("radar: no snapshot")

// OracleError is a failed or unusable curated selection. The curated category
// is skipped for the cycle.
type OracleError struct {
	Err error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle selection failed: %v", e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

// PersistenceError is a failed atomic replace. It aborts the cycle; the
// previous snapshot stays authoritative.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("radar persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// CategoryError records why one category was skipped in a cycle.
type CategoryError struct {
	Category models.Category
	Err      error
}

func (e *CategoryError) Error() string {
	return fmt.Sprintf("category %s: %v", e.Category, e.Err)
}

func (e *CategoryError) Unwrap() error {
	return e.Err
}

// IsOracleError reports whether err came from the curated-selection oracle.
func IsOracleError(err error) bool {
	var oe *OracleError
	return errors.As(err, &oe)
}

// IsPersistenceError reports whether err is a failed replace.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
