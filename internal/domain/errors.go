package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Validation errors (VALIDATION_*): bad input, synchronous reject,
	// never retried.
	ErrorCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationRateRange    ErrorCode = "VALIDATION_RATE_OUT_OF_RANGE"
	ErrorCodeValidationAmount       ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationMissingField ErrorCode = "VALIDATION_MISSING_FIELD"

	// Eligibility errors (ELIGIBILITY_*): the agent cannot take part
	// right now. Callers defer or fall back; this is not a failure of
	// the settlement machinery.
	ErrorCodeAgentNotFound  ErrorCode = "ELIGIBILITY_AGENT_NOT_FOUND"
	ErrorCodeAgentSuspended ErrorCode = "ELIGIBILITY_AGENT_SUSPENDED"
	ErrorCodePayoutUnlinked ErrorCode = "ELIGIBILITY_PAYOUT_UNLINKED"

	// Commission errors (COMMISSION_*)
	ErrorCodeCommissionNotFound     ErrorCode = "COMMISSION_NOT_FOUND"
	ErrorCodeCommissionExists       ErrorCode = "COMMISSION_DUPLICATE_ORDER"
	ErrorCodeInvalidStateTransition ErrorCode = "COMMISSION_INVALID_STATE_TRANSITION"

	// Provider errors (PROVIDER_*). A rejection is terminal for the
	// commission; a timeout escalates to rejection only after the
	// attempt-level retry/elapsed bound.
	ErrorCodeProviderRejected ErrorCode = "PROVIDER_REJECTED"
	ErrorCodeProviderTimeout  ErrorCode = "PROVIDER_TIMEOUT"

	// Limit errors (LIMIT_*): always defer and retry later. Never
	// consumes retry budget, never treated as a failure.
	ErrorCodeLimitExceeded ErrorCode = "LIMIT_EXCEEDED"

	// Concurrency (CONCURRENCY_*): a compare-and-set found an
	// unexpected prior state. Benign; another job already moved the
	// record. Debug-logged only.
	ErrorCodeConcurrencyConflict ErrorCode = "CONCURRENCY_CONFLICT"

	// Internal errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsEligibilityError checks if an error means the agent cannot take
// part right now (defer, don't fail).
func IsEligibilityError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeAgentNotFound ||
		code == ErrorCodeAgentSuspended ||
		code == ErrorCodePayoutUnlinked
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationRateRange ||
		code == ErrorCodeValidationAmount ||
		code == ErrorCodeValidationMissingField
}

// IsProviderError checks if an error came from the split-payment provider
func IsProviderError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeProviderRejected || code == ErrorCodeProviderTimeout
}

// Structured error instances
var (
	ErrRateOutOfRange = NewDomainError(ErrorCodeValidationRateRange, "commission rate must be between 0 and 0.30")
	ErrInvalidAmount  = NewDomainError(ErrorCodeValidationAmount, "invalid amount")

	ErrAgentNotFound  = NewDomainError(ErrorCodeAgentNotFound, "agent not found")
	ErrAgentSuspended = NewDomainError(ErrorCodeAgentSuspended, "agent is suspended")
	ErrPayoutUnlinked = NewDomainError(ErrorCodePayoutUnlinked, "agent has no linked payout identity")

	ErrCommissionNotFound     = NewDomainError(ErrorCodeCommissionNotFound, "commission record not found")
	ErrDuplicateCommission    = NewDomainError(ErrorCodeCommissionExists, "commission already exists for order")
	ErrInvalidStateTransition = NewDomainError(ErrorCodeInvalidStateTransition, "illegal commission state transition")

	ErrProviderRejected = NewDomainError(ErrorCodeProviderRejected, "split request rejected by provider")
	ErrProviderTimeout  = NewDomainError(ErrorCodeProviderTimeout, "split result polling exceeded retry bound")

	ErrLimitExceeded = NewDomainError(ErrorCodeLimitExceeded, "settlement limit exceeded")

	ErrConcurrencyConflict = NewDomainError(ErrorCodeConcurrencyConflict, "record was modified concurrently")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
