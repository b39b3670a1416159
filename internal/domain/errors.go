package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeDocumentOpen      ErrorType = "document_open"
	ErrorTypeConversion        ErrorType = "conversion"
	ErrorTypeModelInvocation   ErrorType = "model_invocation"
	ErrorTypeMissingCredential ErrorType = "missing_credential"
	ErrorTypeConfig            ErrorType = "config"
	ErrorTypeIO                ErrorType = "io"
	ErrorTypeState             ErrorType = "state"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func DocumentOpenError(message string, err error) *DomainError {
	return NewError(ErrorTypeDocumentOpen, message, err)
}

func ConversionError(message string, err error) *DomainError {
	return NewError(ErrorTypeConversion, message, err)
}

func ModelInvocationError(message string, err error) *DomainError {
	return NewError(ErrorTypeModelInvocation, message, err)
}

func MissingCredentialError(message string, err error) *DomainError {
	return NewError(ErrorTypeMissingCredential, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

func StateError(message string, err error) *DomainError {
	return NewError(ErrorTypeState, message, err)
}

// Interaction guard violations.
var (
	ErrEmptyQuery     = ValidationError("query must not be empty", nil)
	ErrNoDocument     = StateError("no document is ready, upload a PDF first", nil)
	ErrQueryInFlight  = StateError("a query is already in progress for this session", nil)
	ErrUploadInFlight = StateError("a document is still being processed for this session", nil)
)

// TypeOf returns the ErrorType of the outermost DomainError in err's chain,
// or the empty string if there is none.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// IsType reports whether err carries a DomainError of the given type.
func IsType(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}
