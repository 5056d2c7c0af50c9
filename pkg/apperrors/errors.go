// Package apperrors defines the stable error taxonomy surfaced by the pipeline.
package apperrors

import (
	"errors"
	"fmt"
)

// Category is the machine-readable classification of a pipeline failure.
type Category string

const (
	// CategoryResolutionIncomplete: entities unresolved, downstream proceeded with a warning.
	CategoryResolutionIncomplete Category = "resolution_incomplete"
	// CategoryConstructionFailed: no strategy could produce parseable SQL.
	CategoryConstructionFailed Category = "construction_failed"
	// CategoryValidationRejected: the safety gate failed the statement. Never retried.
	CategoryValidationRejected Category = "validation_rejected"
	// CategoryExecutionTimeout: the statement exceeded the execution deadline.
	CategoryExecutionTimeout Category = "execution_timeout"
	// CategoryExecutionError: the database rejected or aborted the statement.
	CategoryExecutionError Category = "execution_error"
	// CategoryUpstreamUnavailable: database or model provider unreachable. Retryable.
	CategoryUpstreamUnavailable Category = "upstream_unavailable"
	// CategoryInternal: anything that escaped classification.
	CategoryInternal Category = "internal"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConversationBusy = errors.New("conversation is processing another turn")
	ErrNoActiveDatabase = errors.New("no active database connection")
	ErrEmptyStatement   = errors.New("empty SQL statement")
	ErrPoolExhausted    = errors.New("connection pool exhausted")
	ErrExecutionRefused = errors.New("statement did not pass validation")
)

// PipelineError carries a stable category plus a human-readable message.
// Raw internal errors stay in Cause and are never exposed to callers.
type PipelineError struct {
	Category  Category
	Message   string
	Retryable bool
	Cause     error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Cause }

// IsRetryable implements the retry package's RetryableError interface.
func (e *PipelineError) IsRetryable() bool { return e.Retryable }

// New creates a PipelineError with the given category.
func New(category Category, message string, cause error) *PipelineError {
	return &PipelineError{
		Category:  category,
		Message:   message,
		Retryable: category == CategoryUpstreamUnavailable,
		Cause:     cause,
	}
}

// CategoryOf extracts the category from an error chain, defaulting to internal.
func CategoryOf(err error) Category {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return CategoryInternal
}
