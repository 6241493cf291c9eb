// Package errors provides the archive's error taxonomy: request validation,
// capability violations, query session state errors and retrieval failures.
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidTagPath      = errors.New("dicomarc: invalid tag path")
	ErrUnknownKeyword      = errors.New("dicomarc: unknown attribute keyword")
	ErrInvalidValue        = errors.New("dicomarc: value does not match value representation")
	ErrInvalidRange        = errors.New("dicomarc: malformed date/time range")
	ErrNotOrderable        = errors.New("dicomarc: attribute cannot be used for ordering")
	ErrUnsupportedTransfer = errors.New("dicomarc: unsupported transfer syntax")
	ErrObjectNotFound      = errors.New("dicomarc: object not found")
	ErrMalformedObject     = errors.New("dicomarc: malformed DICOM object")
	ErrNotAcceptable       = errors.New("dicomarc: no acceptable media type")
	ErrQueryAlreadyBuilt   = errors.New("dicomarc: query already built")
	ErrQueryNotBuilt       = errors.New("dicomarc: query not built")
	ErrQueryNotExecuted    = errors.New("dicomarc: query not executed")
	ErrQueryExecuted       = errors.New("dicomarc: query already executed")
	ErrNoMoreMatches       = errors.New("dicomarc: no more matches")
	ErrSessionClosed       = errors.New("dicomarc: query session closed")
)

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// ValidationError reports a malformed search or retrieve request. Param names
// the offending request parameter as "name=value".
type ValidationError struct {
	Param string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("invalid request: %v", e.Err)
	}
	return fmt.Sprintf("invalid request parameter %s: %v", e.Param, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(param string, err error) *ValidationError {
	return &ValidationError{
		Param: param,
		Err:   err,
	}
}

// CapabilityError reports a request the target application entity may not
// serve: the AE is unknown or disabled, lacks the query role, or does not
// support a requested query option.
type CapabilityError struct {
	AETitle string
	Reason  string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability violation for %s: %s", e.AETitle, e.Reason)
}

// NewCapabilityError creates a new capability error
func NewCapabilityError(aet, reason string) *CapabilityError {
	return &CapabilityError{
		AETitle: aet,
		Reason:  reason,
	}
}

// StateError reports a query session operation invoked in the wrong state
type StateError struct {
	Op    string
	State string
	Err   error
}

func (e *StateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("query session %s in state %s: %v", e.Op, e.State, e.Err)
	}
	return fmt.Sprintf("query session %s not allowed in state %s", e.Op, e.State)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// NewStateError creates a new state error
func NewStateError(op, state string, err error) *StateError {
	return &StateError{
		Op:    op,
		State: state,
		Err:   err,
	}
}

// RetrieveError reports a failure to read, decode or re-encode a stored object
type RetrieveError struct {
	SOPInstanceUID string
	Op             string
	Err            error
}

func (e *RetrieveError) Error() string {
	return fmt.Sprintf("retrieve %s failed during %s: %v", e.SOPInstanceUID, e.Op, e.Err)
}

func (e *RetrieveError) Unwrap() error {
	return e.Err
}

// NewRetrieveError creates a new retrieve error
func NewRetrieveError(iuid, op string, err error) *RetrieveError {
	return &RetrieveError{
		SOPInstanceUID: iuid,
		Op:             op,
		Err:            err,
	}
}

// StorageError reports a failure of the match store or object storage
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage error
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{
		Op:  op,
		Err: err,
	}
}
