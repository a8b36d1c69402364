// Package errors provides custom error types for the leadsync system.
// These errors enable programmatic error checking across the cache,
// queue, sync and notification layers, and give the HTTP layer a single
// place to map failures onto status codes.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is, As and Join are the standard library helpers, re-exported so callers need
// a single errors import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)

// Common sentinel errors for the leadsync system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrNetworkUnavailable indicates a transient connectivity failure
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrStorageUnavailable indicates the durable store could not be opened or written
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrCacheInstall indicates a cache generation could not be fully installed
	ErrCacheInstall = errors.New("cache install failed")

	// ErrDelivery indicates a queued submission could not be delivered
	ErrDelivery = errors.New("delivery failed")

	// ErrAuthRejected indicates the remote API refused the submission credentials
	ErrAuthRejected = errors.New("authorization rejected")

	// ErrDrainInProgress indicates another drain pass holds the queue
	ErrDrainInProgress = errors.New("drain in progress")

	// ErrLeaseLost indicates a drain pass lost its lease to another process
	ErrLeaseLost = errors.New("drain lease lost")

	// ErrClosed indicates use of a component after it was closed
	ErrClosed = errors.New("closed")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// AlreadyExistsError represents an attempt to create a duplicate resource
type AlreadyExistsError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s with ID %s already exists", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// CacheInstallError reports a failed install of a cache generation.
// The generation it names must never become current.
type CacheInstallError struct {
	Generation string
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *CacheInstallError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("cache install %s: fetch %s: unexpected status %d", e.Generation, e.URL, e.StatusCode)
	case e.URL != "":
		return fmt.Sprintf("cache install %s: fetch %s: %v", e.Generation, e.URL, e.Err)
	default:
		return fmt.Sprintf("cache install %s: %v", e.Generation, e.Err)
	}
}

// Unwrap implements errors.Unwrap
func (e *CacheInstallError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *CacheInstallError) Is(target error) bool {
	return target == ErrCacheInstall
}

// NetworkError represents a request that never produced a response.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("network unavailable for %s %s: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("network unavailable for %s: %v", e.URL, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetworkUnavailable
}

// NewNetworkError creates a new NetworkError
func NewNetworkError(method, url string, err error) *NetworkError {
	return &NetworkError{Method: method, URL: url, Err: err}
}

// StorageError represents a failure of the durable store
type StorageError struct {
	Operation string // "open", "enqueue", "list", "remove", "lease", "migrate"
	Err       error
}

// Error implements the error interface
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// NewStorageError creates a new StorageError
func NewStorageError(operation string, err error) *StorageError {
	return &StorageError{Operation: operation, Err: err}
}

// DeliveryError represents a failed delivery of one submission to the remote API.
// StatusCode is zero when no response was received.
type DeliveryError struct {
	SubmissionID string
	Endpoint     string
	StatusCode   int
	Message      string
	Err          error
}

// Error implements the error interface
func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("delivery of %s to %s failed (status %d): %s", e.SubmissionID, e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("delivery of %s to %s failed: %v", e.SubmissionID, e.Endpoint, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *DeliveryError) Is(target error) bool {
	switch target {
	case ErrDelivery:
		return true
	case ErrAuthRejected:
		return e.StatusCode == 401 || e.StatusCode == 403
	}
	return false
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsNetworkUnavailable checks if an error is a connectivity failure
func IsNetworkUnavailable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable)
}

// IsStorageUnavailable checks if an error is a durable store failure
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// IsAuthRejected checks if the remote API refused the credentials
func IsAuthRejected(err error) bool {
	return errors.Is(err, ErrAuthRejected)
}

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapStorage wraps an error as a StorageError
func WrapStorage(operation string, err error) error {
	if err == nil {
		return nil
	}
	return NewStorageError(operation, err)
}
