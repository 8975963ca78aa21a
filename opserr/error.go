// Package opserr provides structured error types for the reliability engine.
//
// It defines the error taxonomy consumed by every component (kinds, not
// concrete type names): InputError, ProviderError, JudgementError,
// PersistenceError, and CancellationRequested. PredictionLowConfidence is
// deliberately not a code here — it is surfaced as a struct flag on
// ReliabilityPrediction, never as an exception.
package opserr

import (
	"errors"
	"fmt"
	"strings"
)

// Standard error codes shared across components.
const (
	// CodeInputUnparsable indicates a raw record could not be normalised.
	CodeInputUnparsable = "INPUT_UNPARSABLE"

	// CodeUnknownDomain indicates a scenario bundle domain has no loaded version.
	CodeUnknownDomain = "UNKNOWN_DOMAIN"

	// CodeProviderTransient indicates a retryable provider failure (network, 5xx).
	CodeProviderTransient = "PROVIDER_TRANSIENT"

	// CodeProviderPermanent indicates a non-retryable provider failure (auth, malformed request).
	CodeProviderPermanent = "PROVIDER_PERMANENT"

	// CodeRateLimited indicates a provider token bucket was exhausted past the bounded wait.
	CodeRateLimited = "RATE_LIMITED"

	// CodeCostCeiling indicates the per-process cost ceiling was exceeded.
	CodeCostCeiling = "COST_CEILING"

	// CodeJudgementMalformed indicates a judge response could not be parsed even after a retry.
	CodeJudgementMalformed = "JUDGEMENT_MALFORMED"

	// CodePersistenceWrite indicates an append or checkpoint write failed.
	CodePersistenceWrite = "PERSISTENCE_WRITE"

	// CodeCancelled indicates a run stopped because cancellation was requested.
	CodeCancelled = "CANCELLED"
)

// Error is a structured error type carried by every component boundary.
// It records which component and operation failed, a stable code, an
// optional cause chain, and a classification used for recovery planning.
type Error struct {
	// Component is the package or subsystem that raised the error (e.g. "provider", "judge").
	Component string

	// Operation is the specific operation that failed (e.g. "call", "poll", "checkpoint").
	Operation string

	// Code is a stable error code constant.
	Code string

	// Message is a human-readable error description.
	Message string

	// Details carries additional structured context.
	Details map[string]any

	// Cause is the underlying error, if any.
	Cause error

	// Class categorises the error for recovery planning.
	Class ErrorClass `json:"class,omitempty"`

	// Hints lists recovery suggestions ordered by priority.
	Hints []RecoveryHint `json:"hints,omitempty"`
}

// New creates a structured error for the given component, operation and code.
func New(component, operation, code, message string) *Error {
	return &Error{
		Component: component,
		Operation: operation,
		Code:      code,
		Message:   message,
		Class:     DefaultClassForCode(code),
	}
}

// WithCause attaches an underlying error and returns the receiver for chaining.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails attaches structured context and returns the receiver for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithClass overrides the error's classification and returns the receiver for chaining.
func (e *Error) WithClass(class ErrorClass) *Error {
	e.Class = class
	return e
}

// WithHints appends recovery hints and returns the receiver for chaining.
func (e *Error) WithHints(hints ...RecoveryHint) *Error {
	e.Hints = append(e.Hints, hints...)
	return e
}

// Error implements the error interface as "component [operation/code]: message: cause".
func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("%s [%s/%s]", e.Component, e.Operation, e.Code)}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause, enabling errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same component, operation and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Component == t.Component && e.Operation == t.Operation && e.Code == t.Code
}

// As implements errors.As support.
func (e *Error) As(target any) bool {
	t, ok := target.(**Error)
	if !ok {
		return false
	}
	*t = e
	return true
}

// Sentinel errors for common scenarios.
var (
	ErrCancelled      = errors.New("cancellation requested")
	ErrCostCeiling    = errors.New("cost ceiling exceeded")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnparsableInput = errors.New("input record unparsable")
)
