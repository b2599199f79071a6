// Package apperr implements the error-kind taxonomy: callers use errors.As
// to recover the kind instead of matching on strings, while internal I/O
// boundaries keep wrapping with github.com/pkg/errors the way the rest of
// the codebase does.
package apperr

import "fmt"

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

type AccessDeniedError struct {
	Subject  string
	Resource string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("%s may not access %s", e.Subject, e.Resource)
}

func NewAccessDenied(subject, resource string) *AccessDeniedError {
	return &AccessDeniedError{Subject: subject, Resource: resource}
}

// DuplicateError is a non-fatal outcome of Apply, not a caller mistake;
// handlers translate it to a 409, not a 400.
type DuplicateError struct {
	ShipmentID uint64
	EventCode  string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate event %s for shipment %d", e.EventCode, e.ShipmentID)
}

func NewDuplicate(shipmentID uint64, code string) *DuplicateError {
	return &DuplicateError{ShipmentID: shipmentID, EventCode: code}
}

// TransientUpstreamError marks a source-adapter failure the caller should
// retry with backoff (connect timeout, 5xx, rate-limited).
type TransientUpstreamError struct {
	Source string
	Cause  error
}

func (e *TransientUpstreamError) Error() string {
	return fmt.Sprintf("transient upstream error (%s): %v", e.Source, e.Cause)
}

func (e *TransientUpstreamError) Unwrap() error { return e.Cause }

func NewTransientUpstream(source string, cause error) *TransientUpstreamError {
	return &TransientUpstreamError{Source: source, Cause: cause}
}

// PermanentUpstreamError marks a source-adapter failure that will not
// succeed on retry (auth rejected, non-429 4xx, malformed payload).
type PermanentUpstreamError struct {
	Source string
	Cause  error
}

func (e *PermanentUpstreamError) Error() string {
	return fmt.Sprintf("permanent upstream error (%s): %v", e.Source, e.Cause)
}

func (e *PermanentUpstreamError) Unwrap() error { return e.Cause }

func NewPermanentUpstream(source string, cause error) *PermanentUpstreamError {
	return &PermanentUpstreamError{Source: source, Cause: cause}
}

// StoreError wraps an unexpected store failure; the operation that produced
// it has already been rolled back.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

func NewStore(op string, cause error) *StoreError {
	return &StoreError{Op: op, Cause: cause}
}
