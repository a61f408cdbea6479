/*
errors.go - Error types for group assignment

ERROR CATEGORIES:
  1. Precondition - the caller handed in a record that cannot be assigned
  2. Storage      - the store failed; the whole unit of work was rolled back
  3. Conflict     - a concurrent writer won the race for a group or sequence
  4. Integrity    - the store holds a group over Capacity (never expected)

Store implementations return the conflict sentinels (ErrGroupFull,
ErrDuplicateGroup) and the precondition sentinels (ErrRecordLinked,
ErrKeyMismatch). The Assigner wraps them in ConflictError or
PreconditionError and wraps any other store failure in StorageError.

USAGE:
  var conflict *cig.ConflictError
  if errors.As(err, &conflict) {
      // retry conflict.RecordID
  }
*/
package cig

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrPrecondition  = errors.New("assignment precondition failed")
	ErrStorage       = errors.New("group store failure")
	ErrConflict      = errors.New("concurrent assignment conflict")
	ErrDataIntegrity = errors.New("group data integrity violation")

	// ErrGroupFull is returned by LinkRecord when the group already holds Capacity members.
	ErrGroupFull = fmt.Errorf("%w: group is full", ErrConflict)

	// ErrDuplicateGroup is returned by CreateGroup when the sequence number is taken.
	ErrDuplicateGroup = fmt.Errorf("%w: group sequence already exists", ErrConflict)

	// ErrRecordLinked is returned by LinkRecord when the record belongs to another group.
	// Retrying cannot help, so it is a precondition failure.
	ErrRecordLinked = fmt.Errorf("%w: record already linked to a different group", ErrPrecondition)

	// ErrKeyMismatch is returned by LinkRecord when the record's stored key no
	// longer matches the group's, e.g. the farm moved after the record was read.
	ErrKeyMismatch = fmt.Errorf("%w: record key differs from group key", ErrPrecondition)

	// ErrNotFound is returned when a referenced record or group does not exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PreconditionError rejects a record. Nothing it touched is left written.
type PreconditionError struct {
	RecordID RecordID
	Field    string
	Reason   string
	Err      error // store sentinel, if the store rejected the record
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("record %d: invalid %s: %s", e.RecordID, e.Field, e.Reason)
}

func (e *PreconditionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPrecondition}
	}
	return []error{ErrPrecondition, e.Err}
}

// StorageError reports a failed store call. The transaction was rolled back.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// ConflictError reports a lost capacity or sequence race, or a deadlock.
// The caller should retry the assignment of RecordID. RecordID is zero when
// the conflict surfaced at commit of a batch.
type ConflictError struct {
	RecordID RecordID
	Key      GroupKey
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("record %d in %s: %v", e.RecordID, e.Key, e.Err)
}

func (e *ConflictError) Unwrap() []error { return []error{ErrConflict, e.Err} }

// DataIntegrityError reports a group observed above Capacity.
type DataIntegrityError struct {
	Key     GroupKey
	GroupID GroupID
	Seq     int
	Count   int
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("group %d (%s #%d) has %d members, capacity is %d",
		e.GroupID, e.Key, e.Seq, e.Count, Capacity)
}

func (e *DataIntegrityError) Unwrap() error { return ErrDataIntegrity }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// storeError classifies a raw store error for the given record.
func storeError(op string, rec ProduceRecord, err error) error {
	var (
		conflict  *ConflictError
		pre       *PreconditionError
		integrity *DataIntegrityError
		se        *StorageError
	)
	switch {
	case errors.As(err, &conflict), errors.As(err, &pre),
		errors.As(err, &integrity), errors.As(err, &se):
		return err
	case errors.Is(err, ErrConflict):
		return &ConflictError{RecordID: rec.ID, Key: rec.Key(), Err: err}
	case errors.Is(err, ErrPrecondition):
		return &PreconditionError{RecordID: rec.ID, Field: "group", Reason: err.Error(), Err: err}
	}
	return &StorageError{Op: op, Err: err}
}
