// Package errors provides structured error handling for netsweep operations.
// It defines error codes, typed errors for the scan pipeline, and the
// recovery policy that maps error categories to retry/fallback decisions.
package errors

import (
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"
	CodePermission    ErrorCode = "PERMISSION"
	CodeNotFound      ErrorCode = "NOT_FOUND"

	// Network and probe errors.
	CodeNetworkUnreachable ErrorCode = "NETWORK_UNREACHABLE"
	CodeHostUnreachable    ErrorCode = "HOST_UNREACHABLE"
	CodeConnectionRefused  ErrorCode = "CONNECTION_REFUSED"
	CodeTargetInvalid      ErrorCode = "TARGET_INVALID"
	CodeInterfaceNotFound  ErrorCode = "INTERFACE_NOT_FOUND"

	// External tool errors.
	CodeToolMissing ErrorCode = "TOOL_MISSING"
	CodeToolFailed  ErrorCode = "TOOL_FAILED"
	CodeScanFailed  ErrorCode = "SCAN_FAILED"

	// History storage errors.
	CodeStorageConnection ErrorCode = "STORAGE_CONNECTION"
	CodeStorageQuery      ErrorCode = "STORAGE_QUERY"
)

// ScanError represents an error that occurred during a scan phase.
type ScanError struct {
	Code      ErrorCode
	Message   string
	Phase     string
	Target    string
	Operation string
	Cause     error
	Context   map[string]interface{}
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	switch {
	case e.Target != "":
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	case e.Phase != "":
		return fmt.Sprintf("[%s] %s (phase: %s)", e.Code, e.Message, e.Phase)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value interface{}) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithPhase tags the error with the phase it occurred in.
func (e *ScanError) WithPhase(phase string) *ScanError {
	e.Phase = phase
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Context: make(map[string]interface{}),
	}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// WrapScanErrorWithTarget wraps an error with target information.
func WrapScanErrorWithTarget(code ErrorCode, message, target string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// ConfigError represents configuration-related errors. These are the only
// errors that abort a run before scanning starts.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
	}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// StoreError represents scan history storage errors.
type StoreError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation: %s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError creates a new storage error.
func NewStoreError(code ErrorCode, message string) *StoreError {
	return &StoreError{
		Code:    code,
		Message: message,
	}
}

// WrapStoreError wraps an existing error as a storage error.
func WrapStoreError(code ErrorCode, message string, err error) *StoreError {
	return &StoreError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Utility functions for common error operations

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	switch e := err.(type) {
	case *ScanError:
		return e.Code == code
	case *ConfigError:
		return e.Code == code
	case *StoreError:
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	switch e := err.(type) {
	case *ScanError:
		return e.Code
	case *ConfigError:
		return e.Code
	case *StoreError:
		return e.Code
	}
	return CodeUnknown
}

// IsRetryable determines if an error indicates a retryable condition.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeNetworkUnreachable, CodeHostUnreachable, CodeConnectionRefused:
		return true
	default:
		return false
	}
}

// IsFatal determines if an error indicates a fatal condition that should
// abort the run.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodePermission, CodeConfiguration, CodeValidation, CodeInterfaceNotFound:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrInvalidTarget creates an error for invalid scan targets.
func ErrInvalidTarget(target string) *ScanError {
	return NewScanErrorWithTarget(CodeTargetInvalid, "Invalid target specification", target)
}

// ErrProbeTimeout creates an error for a probe that timed out.
func ErrProbeTimeout(target string) *ScanError {
	return NewScanErrorWithTarget(CodeTimeout, "Probe timed out", target)
}

// ErrHostUnreachable creates an error for unreachable hosts.
func ErrHostUnreachable(target string) *ScanError {
	return NewScanErrorWithTarget(CodeHostUnreachable, "Host is unreachable", target)
}

// ErrPermissionDenied creates an error for operations requiring privileges
// the process does not have.
func ErrPermissionDenied(operation string, err error) *ScanError {
	e := WrapScanError(CodePermission, "Insufficient privileges", err)
	e.Operation = operation
	return e
}

// ErrToolMissing creates an error for a missing external executable.
func ErrToolMissing(tool string, err error) *ScanError {
	e := WrapScanError(CodeToolMissing, fmt.Sprintf("Required tool %q not found", tool), err)
	e.Operation = tool
	return e
}

// ErrNoUsableInterface creates the fatal error returned when no network
// interface can be used for scanning.
func ErrNoUsableInterface(err error) *ConfigError {
	return WrapConfigError(CodeInterfaceNotFound, "No usable network interface found", err)
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}

// ErrConfigMissing creates an error for missing required configuration.
func ErrConfigMissing(field string) *ConfigError {
	return NewConfigFieldError(CodeConfiguration, "Required configuration field missing", field, nil)
}

// ErrStoreConnection creates an error for history store connection failures.
func ErrStoreConnection(err error) *StoreError {
	return WrapStoreError(CodeStorageConnection, "Failed to connect to history store", err)
}
