// Package errors provides standardized error types for the settlement
// engine. Sentinels categorize failures; DomainError carries code and
// context for callers that surface them over HTTP.
package errors

import (
	"errors"
	"fmt"
)

// Engine error categories
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateReference indicates an entry with the same
	// (kind, currency, reference) already exists; retry-safe, the
	// existing entry is returned alongside.
	ErrDuplicateReference = errors.New("duplicate reference")

	// ErrInsufficientBalance indicates a debit would take the wallet
	// negative; the entry is recorded FAILED and never retried.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBusy indicates transient lock contention on the wallet row;
	// the caller may retry the whole submission.
	ErrBusy = errors.New("wallet busy")

	// ErrInvalidAmount indicates a zero or malformed amount, rejected
	// before any write.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input was provided
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal engine error
	ErrInternal = errors.New("internal error")
)

// DomainError represents an engine error with additional context
type DomainError struct {
	Err       error
	Code      string
	Message   string
	Details   map[string]interface{}
	Retryable bool
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *DomainError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// WithDetails adds details to the error
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	e.Details = details
	return e
}

// DuplicateReferenceError creates a duplicate-reference error for an
// already-recorded external event
func DuplicateReferenceError(reference string) *DomainError {
	return &DomainError{
		Err:     ErrDuplicateReference,
		Code:    "DUPLICATE_REFERENCE",
		Message: fmt.Sprintf("entry with reference %q already exists", reference),
	}
}

// InsufficientBalanceError creates an insufficient-balance error
func InsufficientBalanceError(balance, delta string) *DomainError {
	return &DomainError{
		Err:     ErrInsufficientBalance,
		Code:    "INSUFFICIENT_BALANCE",
		Message: "debit would take wallet balance negative",
		Details: map[string]interface{}{
			"balance": balance,
			"delta":   delta,
		},
	}
}

// BusyError creates a transient lock-contention error
func BusyError(user, currency string) *DomainError {
	return &DomainError{
		Err:       ErrBusy,
		Code:      "WALLET_BUSY",
		Message:   fmt.Sprintf("wallet %s/%s is locked by another operation", user, currency),
		Retryable: true,
	}
}

// InvalidAmountError creates an invalid-amount error
func InvalidAmountError(reason string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidAmount,
		Code:    "INVALID_AMOUNT",
		Message: reason,
	}
}

// NotFoundError creates a not found error
func NotFoundError(resource string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    fmt.Sprintf("%s_NOT_FOUND", resource),
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// AlreadyExistsError creates an already exists error
func AlreadyExistsError(resource string) *DomainError {
	return &DomainError{
		Err:     ErrAlreadyExists,
		Code:    fmt.Sprintf("%s_ALREADY_EXISTS", resource),
		Message: fmt.Sprintf("%s already exists", resource),
	}
}

// ValidationError creates a validation error
func ValidationError(field, message string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidInput,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

// InternalError creates an internal error
func InternalError(message string, err error) *DomainError {
	de := &DomainError{
		Err:     ErrInternal,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if err != nil {
		de.Details = map[string]interface{}{"cause": err.Error()}
	}
	return de
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateReference checks if an error is a duplicate-reference error
func IsDuplicateReference(err error) bool {
	return errors.Is(err, ErrDuplicateReference)
}

// IsInsufficientBalance checks if an error is an insufficient-balance error
func IsInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

// IsBusy checks if an error is a transient lock-contention error
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsInvalidAmount checks if an error is an invalid-amount error
func IsInvalidAmount(err error) bool {
	return errors.Is(err, ErrInvalidAmount)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "UNKNOWN_ERROR"
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
