package domain

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of domain failure
type ErrorCode string

const (
	// Assignment errors (1xxx)
	ErrCodeNotFound               ErrorCode = "ASSIGN_1001"
	ErrCodeSpecializationMismatch ErrorCode = "ASSIGN_1002"
	ErrCodeCapacityExhausted      ErrorCode = "ASSIGN_1003"
	ErrCodePartialWrite           ErrorCode = "ASSIGN_1004"
	ErrCodeVersionConflict        ErrorCode = "ASSIGN_1005"
	ErrCodeAlreadyAssigned        ErrorCode = "ASSIGN_1006"
	ErrCodeOfficerInactive        ErrorCode = "ASSIGN_1007"
	ErrCodeBatchInProgress        ErrorCode = "ASSIGN_1008"

	// Validation errors (2xxx)
	ErrCodeInvalidRequest ErrorCode = "ASSIGN_2001"

	// Storage errors (5xxx)
	ErrCodeStoreUnavailable ErrorCode = "STORE_5001"
)

// DomainError represents a domain-specific error.
// Two DomainErrors match under errors.Is when their codes are equal.
type DomainError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the cause error
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same error code
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// WithCause returns a copy of e wrapping cause
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Cause: cause}
}

// WithMessage returns a copy of e with a more specific message
func (e *DomainError) WithMessage(format string, args ...interface{}) *DomainError {
	return &DomainError{Code: e.Code, Message: fmt.Sprintf(format, args...), Cause: e.Cause}
}

func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Custom errors
var (
	ErrOfficerNotFound        = NewDomainError(ErrCodeNotFound, "officer not found")
	ErrCustomerNotFound       = NewDomainError(ErrCodeNotFound, "customer not found")
	ErrSpecializationMismatch = NewDomainError(ErrCodeSpecializationMismatch, "officer specialization does not match customer product type")
	ErrCapacityExhausted      = NewDomainError(ErrCodeCapacityExhausted, "no officer has remaining capacity")
	ErrPartialWrite           = NewDomainError(ErrCodePartialWrite, "assignment partially written")
	ErrVersionConflict        = NewDomainError(ErrCodeVersionConflict, "officer modified concurrently")
	ErrAlreadyAssigned        = NewDomainError(ErrCodeAlreadyAssigned, "customer already assigned")
	ErrOfficerInactive        = NewDomainError(ErrCodeOfficerInactive, "officer is not active")
	ErrBatchInProgress        = NewDomainError(ErrCodeBatchInProgress, "another assignment batch is in progress")
	ErrInvalidRequest         = NewDomainError(ErrCodeInvalidRequest, "invalid request")
	ErrStoreUnavailable       = NewDomainError(ErrCodeStoreUnavailable, "storage operation failed")
)

// CodeOf extracts the error code from err, or ErrCodeStoreUnavailable
// when err is not a DomainError.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeStoreUnavailable
}

// ReasonOf returns the caller-visible reason for err. Errors that are not
// DomainErrors are reported with a generic storage message so that raw
// driver errors never leak into outcomes.
func ReasonOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return ErrStoreUnavailable.Message
}
