package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// DuplicateError represents a unique-constraint violation. For the uploads
// ledger this is the backstop against two concurrent batches for the same
// (filename, user) both passing the dedupe lookup.
type DuplicateError struct {
	Resource   string
	Constraint string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s already exists (constraint %s)", e.Resource, e.Constraint)
}

func (e *DuplicateError) IsTransient() bool {
	return false
}

// IsDuplicate reports whether err is a DuplicateError or a raw Postgres
// unique violation (SQLSTATE 23505).
func IsDuplicate(err error) bool {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// classifyUniqueViolation wraps 23505 errors in a DuplicateError and leaves
// everything else untouched.
func classifyUniqueViolation(err error, resource string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return &DuplicateError{Resource: resource, Constraint: pqErr.Constraint}
	}
	return err
}
