// internal/extractor/errors.go
package extractor

import (
	"errors"
	"fmt"
)

// FailureCode identifies a specific workflow failure condition.
type FailureCode string

const (
	CodeSessionInit  FailureCode = "SESSION_INIT_FAILED"
	CodeAuth         FailureCode = "AUTHENTICATION_FAILED"
	CodeFormNotFound FailureCode = "FORM_NOT_FOUND"
	CodeNoText       FailureCode = "NO_TEXT_GENERATED"
	CodeSizeMismatch FailureCode = "SIZE_MISMATCH"
	CodeTimeout      FailureCode = "TIMEOUT"
)

// WorkflowError wraps workflow failures with the condition that produced
// them. Batch processing records these per item instead of unwinding.
type WorkflowError struct {
	Code       FailureCode
	Message    string
	Underlying error
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *WorkflowError) Unwrap() error {
	return e.Underlying
}

// Is checks if the error matches the target
func (e *WorkflowError) Is(target error) bool {
	if t, ok := target.(*WorkflowError); ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Underlying, target)
}

// NewWorkflowError creates a new WorkflowError
func NewWorkflowError(code FailureCode, message string, err error) *WorkflowError {
	return &WorkflowError{
		Code:       code,
		Message:    message,
		Underlying: err,
	}
}

// CodeOf returns the failure code carried by err, or an empty code.
func CodeOf(err error) FailureCode {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}
