package core

import (
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_not_found, wait_timeout, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context (page, element, locator, expected/actual)
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an ExecutionError with the same code.
// Copies produced by WithCause/WithMessage/WithDetails match their sentinel.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithMessagef is WithMessage with formatting.
func (e *ExecutionError) WithMessagef(format string, args ...interface{}) *ExecutionError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Assertion errors
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_not_found",
		Message:  "element not found",
	}
	ErrElementNotVisible = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_not_visible",
		Message:  "element not visible",
	}
	ErrElementStillVisible = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_still_visible",
		Message:  "element is still visible",
	}
	ErrElementState = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_state",
		Message:  "element is not in the expected state",
	}
	ErrTextMismatch = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "text_mismatch",
		Message:  "text does not match expected value",
	}
	ErrAttributeMismatch = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "attribute_mismatch",
		Message:  "attribute does not match expected value",
	}
	ErrTableMismatch = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "table_mismatch",
		Message:  "table content does not match",
	}
	ErrImageMismatch = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "image_mismatch",
		Message:  "image does not match baseline",
	}
	ErrConditionNotMet = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "condition_not_met",
		Message:  "condition was not met",
	}

	// Timeout errors
	ErrTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "timeout",
		Message:  "operation timed out",
	}
	ErrWaitTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "wait_timeout",
		Message:  "wait condition timed out",
	}

	// Connection errors
	ErrSessionLost = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "session_lost",
		Message:  "webdriver session lost",
	}
	ErrServerUnreachable = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "server_unreachable",
		Message:  "could not connect to webdriver server",
	}

	// Locator errors
	ErrPageNotFound = &ExecutionError{
		Category: ErrCategoryLocator,
		Code:     "page_not_found",
		Message:  "page object not defined",
	}
	ErrElementNotDefined = &ExecutionError{
		Category: ErrCategoryLocator,
		Code:     "element_not_defined",
		Message:  "element not defined on page",
	}
	ErrFrameNotFound = &ExecutionError{
		Category: ErrCategoryLocator,
		Code:     "frame_not_found",
		Message:  "frame not found",
	}
	ErrInvalidLocator = &ExecutionError{
		Category: ErrCategoryLocator,
		Code:     "invalid_locator",
		Message:  "invalid locator",
	}
	ErrNoCurrentPage = &ExecutionError{
		Category: ErrCategoryLocator,
		Code:     "no_current_page",
		Message:  "no current page; use 'I am on the \"<page>\" page' first",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrMissingRequired = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "missing_required",
		Message:  "missing required field",
	}
	ErrUnknownEnvironment = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "unknown_environment",
		Message:  "environment not defined",
	}
	ErrAccountNotFound = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "account_not_found",
		Message:  "account not defined",
	}

	// Script errors
	ErrScript = &ExecutionError{
		Category: ErrCategoryScript,
		Code:     "script_error",
		Message:  "script evaluation failed",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// CategoryOf returns the category of the first ExecutionError in err's chain.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ErrCategoryNone
}

// CodeOf returns the machine code of the first ExecutionError in err's chain,
// or "unknown".
func CodeOf(err error) string {
	var ee *ExecutionError
	if errors.As(err, &ee) && ee.Code != "" {
		return ee.Code
	}
	return "unknown"
}
