package eavcache

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeSource        ErrorType = "source"
	ErrorTypeCache         ErrorType = "cache"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
)

// Error is the structured error returned by the metadata cache and its adapters.
type Error struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
	if e.Field != "" {
		msg = fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to an Error
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to an Error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

const (
	ErrCodeEntityTypeNotFound   = "ENTITY_TYPE_NOT_FOUND"
	ErrCodeMetadataSourceFailed = "METADATA_SOURCE_FAILED"
	ErrCodeCacheError           = "CACHE_ERROR"
	ErrCodeCacheCorrupted       = "CACHE_CORRUPTED"
	ErrCodeUnknownModel         = "UNKNOWN_ATTRIBUTE_MODEL"
	ErrCodeInvalidConfiguration = "INVALID_CONFIGURATION"
	ErrCodeInvalidReference     = "INVALID_REFERENCE"
)

// NewError creates a new Error
func NewError(errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:    errorType,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewEntityTypeNotFoundError reports an entity type code or ID that does not resolve.
func NewEntityTypeNotFoundError(value any) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeEntityTypeNotFound,
		Message: fmt.Sprintf("invalid entity_type specified: %v", value),
		Details: map[string]any{
			"entity_type": value,
		},
	}
}

// NewSourceError wraps a metadata source failure.
func NewSourceError(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeSource,
		Code:    ErrCodeMetadataSourceFailed,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewCacheError creates a secondary cache error
func NewCacheError(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeCache,
		Code:    ErrCodeCacheError,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewCacheCorruptedError reports a secondary cache payload that cannot be adopted.
func NewCacheCorruptedError(key, message string) *Error {
	return &Error{
		Type:    ErrorTypeCache,
		Code:    ErrCodeCacheCorrupted,
		Message: message,
		Details: map[string]any{
			"key": key,
		},
	}
}

// NewUnknownModelError reports an attribute model identifier missing from the registry.
func NewUnknownModelError(model string) *Error {
	return &Error{
		Type:    ErrorTypeConfiguration,
		Code:    ErrCodeUnknownModel,
		Message: fmt.Sprintf("attribute model '%s' is not registered", model),
		Details: map[string]any{
			"model": model,
		},
	}
}

// NewConfigurationError creates a configuration error for a field
func NewConfigurationError(field, message string) *Error {
	return &Error{
		Type:    ErrorTypeConfiguration,
		Code:    ErrCodeInvalidConfiguration,
		Message: message,
		Field:   field,
		Details: make(map[string]any),
	}
}

// NewInvalidReferenceError reports a reference of an unsupported kind, such as nil.
func NewInvalidReferenceError(kind string, ref any) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInvalidReference,
		Message: fmt.Sprintf("unsupported %s reference %T", kind, ref),
		Details: make(map[string]any),
	}
}

// IsNotFound checks if an error is an entity type not found error
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeNotFound
	}
	return false
}

// IsSourceError checks if an error came from the metadata source
func IsSourceError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeSource
	}
	return false
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeConfiguration
	}
	return false
}
