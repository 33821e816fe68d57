// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNoData          = errors.New("no data")
	ErrNoQuote         = errors.New("no quote available")
	ErrSymbolNotFound  = errors.New("symbol not found")
	ErrSymbolExists    = errors.New("symbol already on watchlist")
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrStoreClosed     = errors.New("store is closed")
	ErrCycleInProgress = errors.New("monitoring cycle already in progress")
	ErrRateLimited     = errors.New("rate limited")
	ErrTimeout         = errors.New("operation timed out")
)

// TransientError marks a failure that is worth retrying: network trouble
// talking to the market-data or notification collaborators. Exhausting
// retries degrades the affected unit of work, never the whole cycle.
type TransientError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *TransientError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("transient error [%s] %s: %v", e.Op, e.Symbol, e.Err)
	}
	return fmt.Sprintf("transient error [%s]: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError creates a new TransientError.
func NewTransientError(op, symbol string, err error) *TransientError {
	return &TransientError{Op: op, Symbol: symbol, Err: err}
}

// IsTransient reports whether err is a retryable failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// DataError represents a data-quality problem: empty or partial history,
// missing quote fields. Treated as "insufficient data", never fatal.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{DataType: dataType, Symbol: symbol, Message: message, Err: err}
}

// ValidationError represents a configuration or input validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
