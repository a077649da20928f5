// Package errors provides the error kind shared by the ODM and the HTTP layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for domain errors.
const (
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeInternal   = "INTERNAL_ERROR"
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeConflict   = "CONFLICT"

	// ODM codes.
	ErrCodeRecordNotNew      = "RECORD_NOT_NEW"
	ErrCodeRecordIsNew       = "RECORD_IS_NEW"
	ErrCodeMissingPrimaryKey = "MISSING_PRIMARY_KEY"
	ErrCodePartialVersion    = "PARTIAL_VERSION"
	ErrCodeInvalidPrimaryKey = "INVALID_PRIMARY_KEY"
	ErrCodeUnknownScope      = "UNKNOWN_SCOPE"
	ErrCodeUnknownModel      = "UNKNOWN_MODEL"
	ErrCodeDriver            = "DRIVER_ERROR"
)

// DomainError represents a domain-specific error. Err holds the driver error
// payload, if any.
type DomainError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource, identifier string) *DomainError {
	return &DomainError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Details:    identifier,
		HTTPStatus: http.StatusNotFound,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeValidation,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *DomainError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &DomainError{
		Code:       ErrCodeInternal,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewBadRequestError creates a new bad request error.
func NewBadRequestError(message string, details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeBadRequest,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeConflict,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusConflict,
	}
}

// NewRecordNotNewError is returned when inserting a record that is already persisted.
func NewRecordNotNewError(collection string) *DomainError {
	return &DomainError{
		Code:       ErrCodeRecordNotNew,
		Message:    "the record cannot be inserted because it is not new",
		Details:    collection,
		HTTPStatus: http.StatusConflict,
	}
}

// NewRecordIsNewError is returned when mutating a record that was never persisted.
func NewRecordIsNewError(operation, collection string) *DomainError {
	return &DomainError{
		Code:       ErrCodeRecordIsNew,
		Message:    fmt.Sprintf("the record cannot be %s because it is new", operation),
		Details:    collection,
		HTTPStatus: http.StatusConflict,
	}
}

// NewMissingPrimaryKeyError is returned when a record has no primary key to address it by.
func NewMissingPrimaryKeyError(collection string) *DomainError {
	return &DomainError{
		Code:       ErrCodeMissingPrimaryKey,
		Message:    "the record cannot be updated because its primary key is not set",
		Details:    collection,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewPartialVersionError is returned when a versioned partial record is
// updated without its version field projected.
func NewPartialVersionError(versionField string) *DomainError {
	return &DomainError{
		Code:       ErrCodePartialVersion,
		Message:    "cannot update a versioned partial document unless the version field is projected",
		Details:    versionField,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidPrimaryKeyError is returned for malformed primary key values.
func NewInvalidPrimaryKeyError(details string, err error) *DomainError {
	return &DomainError{
		Code:       ErrCodeInvalidPrimaryKey,
		Message:    "invalid primary key",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
	}
}

// NewUnknownScopeError is returned when a scope name is not declared on a model.
func NewUnknownScopeError(collection, scope string) *DomainError {
	return &DomainError{
		Code:       ErrCodeUnknownScope,
		Message:    fmt.Sprintf("scope %q is not defined", scope),
		Details:    collection,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewUnknownModelError is returned when a registry has no model under a name.
func NewUnknownModelError(name string) *DomainError {
	return &DomainError{
		Code:       ErrCodeUnknownModel,
		Message:    "model is not registered",
		Details:    name,
		HTTPStatus: http.StatusNotFound,
	}
}

// NewDriverError wraps a failure reported by the database driver.
func NewDriverError(operation string, err error) *DomainError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &DomainError{
		Code:       ErrCodeDriver,
		Message:    fmt.Sprintf("%s failed", operation),
		Details:    details,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsDomainError checks if the error is a domain error.
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

// GetDomainError extracts the domain error from an error.
func GetDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// HasCode reports whether err is a domain error carrying code.
func HasCode(err error, code string) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Code == code
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

// IsValidationError checks if the error is a validation error.
func IsValidationError(err error) bool {
	return HasCode(err, ErrCodeValidation)
}
