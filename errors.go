package toolplan

import (
	"errors"
	"fmt"
)

// Error codes for specific failure types
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeCatalogCycle  = "CATALOG_CYCLE"
	ErrCodePlanCycle     = "PLAN_CYCLE"
	ErrCodeToolNotFound  = "TOOL_NOT_FOUND"
	ErrCodeToolExecution = "TOOL_EXECUTION_ERROR"
	ErrCodeCancelled     = "EXECUTION_CANCELLED"
	ErrCodeTimeout       = "EXECUTION_TIMEOUT"
	ErrCodeCache         = "CACHE_ERROR"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// ErrCycle signals that the leveling pass could not place every call. It is
// caught by the plan builder and never surfaces to planner callers.
var ErrCycle = errors.New("dependency cycle detected")

// PlannerError is the error type returned by toolplan packages.
type PlannerError struct {
	Code    string // A machine-readable error code (e.g., ErrCodeCatalogCycle)
	Message string // A human-readable message
	Stage   string // The stage where the error occurred (e.g., "catalog", "execution")
	Cause   error  // The underlying error, if any
}

// Error implements the error interface.
func (e *PlannerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error, allowing for error chaining.
func (e *PlannerError) Unwrap() error {
	return e.Cause
}

// NewError creates a new PlannerError.
func NewError(code, stage, message string, cause error) *PlannerError {
	return &PlannerError{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// IsPlannerError reports whether err is or wraps a *PlannerError.
func IsPlannerError(err error) bool {
	var pe *PlannerError
	return errors.As(err, &pe)
}

// HasCode reports whether err wraps a *PlannerError with the given code.
func HasCode(err error, code string) bool {
	var pe *PlannerError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// Specific error constructors

func NewValidationError(stage, message string, cause error) *PlannerError {
	return NewError(ErrCodeValidation, stage, message, cause)
}

func NewConfigurationError(message string, cause error) *PlannerError {
	return NewError(ErrCodeConfiguration, "initialization", message, cause)
}

func NewCatalogCycleError(path []string) *PlannerError {
	return NewError(ErrCodeCatalogCycle, "catalog", fmt.Sprintf("tag dependency cycle between tools %v", path), ErrCycle)
}

func NewPlanCycleError(unplaced int) *PlannerError {
	return NewError(ErrCodePlanCycle, "scheduling", fmt.Sprintf("%d calls could not be leveled", unplaced), ErrCycle)
}

func NewToolNotFoundError(stage, toolName string) *PlannerError {
	return NewError(ErrCodeToolNotFound, stage, fmt.Sprintf("tool '%s' not found", toolName), nil)
}

func NewToolExecutionError(stage, toolName string, cause error) *PlannerError {
	return NewError(ErrCodeToolExecution, stage, fmt.Sprintf("execution failed for tool '%s'", toolName), cause)
}

func NewCancelledError(stage string, cause error) *PlannerError {
	msg := "execution cancelled"
	if cause != nil && cause.Error() != "" && cause.Error() != "context canceled" { // Add more detail if cause isn't just context.Canceled
		msg = fmt.Sprintf("execution cancelled: %v", cause)
	}
	return NewError(ErrCodeCancelled, stage, msg, cause)
}

func NewTimeoutError(stage, toolName string, cause error) *PlannerError {
	return NewError(ErrCodeTimeout, stage, fmt.Sprintf("tool '%s' timed out", toolName), cause)
}

func NewCacheError(stage, operation string, cause error) *PlannerError {
	return NewError(ErrCodeCache, stage, fmt.Sprintf("cache operation '%s' failed", operation), cause)
}

func NewInternalError(stage, message string, cause error) *PlannerError {
	return NewError(ErrCodeInternal, stage, message, cause)
}
