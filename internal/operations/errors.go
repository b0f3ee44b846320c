package operations

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorType classifies a step failure
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeExecution    ErrorType = "execution"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeCancellation ErrorType = "cancellation"
)

// StepError is returned when a pipeline step fails
type StepError struct {
	Type    ErrorType
	Step    string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *StepError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Type, e.Step, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Step, e.Message)
}

// Unwrap returns the underlying error
func (e *StepError) Unwrap() error {
	return e.Cause
}

// NewValidationError reports a step whose preconditions were not met
func NewValidationError(step, message string) *StepError {
	return &StepError{Type: ErrorTypeValidation, Step: step, Message: message}
}

// WrapStepError attaches step context to err, classifying context errors as
// timeouts or cancellations.
func WrapStepError(step string, err error) *StepError {
	var se *StepError
	if stderrors.As(err, &se) {
		return se
	}
	t := ErrorTypeExecution
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		t = ErrorTypeTimeout
	case stderrors.Is(err, context.Canceled):
		t = ErrorTypeCancellation
	}
	return &StepError{Type: t, Step: step, Message: "step failed", Cause: err}
}

// GetErrorType returns the step error type of err, or "".
func GetErrorType(err error) ErrorType {
	var se *StepError
	if stderrors.As(err, &se) {
		return se.Type
	}
	return ""
}

type skipError struct {
	reason string
}

func (e *skipError) Error() string {
	return "skipped: " + e.reason
}

// SkipStep is returned by a step that has nothing to do. The step is marked
// skipped and the batch goes on.
func SkipStep(reason string) error {
	return &skipError{reason: reason}
}
