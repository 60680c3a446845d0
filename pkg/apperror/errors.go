package apperror

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a domain error
type ErrorType string

const (
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeUpstreamUnavailable ErrorType = "upstream_unavailable"
	ErrorTypeMalformedChunk      ErrorType = "malformed_chunk"
	ErrorTypeIndexInconsistency  ErrorType = "index_inconsistency"
	ErrorTypeDimensionMismatch   ErrorType = "dimension_mismatch"
	ErrorTypeConflict            ErrorType = "conflict"
	ErrorTypeInternal            ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on Type so errors.Is(err, ErrUpstreamUnavailable) works for any wrapped cause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail returns a copy of the error carrying the extra detail.
// Sentinels are shared, so they are never mutated in place.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Type: e.Type, Message: e.Message, Err: e.Err, Details: details}
}

// Wrap returns a copy of the error with err as its cause.
func (e *DomainError) Wrap(err error) *DomainError {
	return &DomainError{Type: e.Type, Message: e.Message, Err: err, Details: e.Details}
}

func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

var (
	ErrInvalidInput        = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyQuestion       = NewDomainError(ErrorTypeValidation, "question cannot be empty", nil)
	ErrDocumentNotFound    = NewDomainError(ErrorTypeNotFound, "document not found", nil)
	ErrUpstreamUnavailable = NewDomainError(ErrorTypeUpstreamUnavailable, "upstream unavailable", nil)
	ErrEmbeddingFailed     = NewDomainError(ErrorTypeUpstreamUnavailable, "embedding provider failed", nil)
	ErrModelFailed         = NewDomainError(ErrorTypeUpstreamUnavailable, "language model failed", nil)
	ErrStorageUnavailable  = NewDomainError(ErrorTypeUpstreamUnavailable, "storage unavailable", nil)
	ErrMalformedChunk      = NewDomainError(ErrorTypeMalformedChunk, "chunk missing provenance", nil)
	ErrDimensionMismatch   = NewDomainError(ErrorTypeDimensionMismatch, "embedding dimension mismatch", nil)
	ErrMissingEmbedding    = NewDomainError(ErrorTypeConflict, "chunk set changed during ingestion", nil)
	ErrIndexInconsistency  = NewDomainError(ErrorTypeIndexInconsistency, "vector and text index disagree", nil)
	ErrInternal            = NewDomainError(ErrorTypeInternal, "internal error", nil)
)

// TypeOf returns the ErrorType of the first DomainError in the chain, or ErrorTypeInternal.
func TypeOf(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ErrorTypeInternal
}

func IsValidationError(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

func IsUpstreamError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == ErrorTypeUpstreamUnavailable
}

func IsNotFoundError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == ErrorTypeNotFound
}
