package core

// StepStatus represents the execution status of a Gherkin step or scenario
type StepStatus int

const (
	StatusPending   StepStatus = iota // Not yet started
	StatusRunning                     // Currently executing
	StatusPassed                      // Completed successfully
	StatusFailed                      // Assertion failed (expected UI state didn't occur)
	StatusErrored                     // Unexpected error (driver unreachable, script error, bad config)
	StatusSkipped                     // Previous step failed or scenario was cancelled
	StatusUndefined                   // No step definition matches the sentence
	StatusAmbiguous                   // More than one step definition matches the sentence
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	case StatusSkipped:
		return "skipped"
	case StatusUndefined:
		return "undefined"
	case StatusAmbiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StatusPending, StatusRunning:
		return false
	default:
		return true
	}
}

// IsSuccess returns true if the status indicates success
func (s StepStatus) IsSuccess() bool {
	return s == StatusPassed
}

// IsFailure returns true for statuses that fail a scenario.
// Undefined and ambiguous steps only fail a scenario in strict mode, so
// callers decide on those separately.
func (s StepStatus) IsFailure() bool {
	return s == StatusFailed || s == StatusErrored
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone       ErrorCategory = iota // No error
	ErrCategoryAssertion                       // Element not found, text mismatch, table/image mismatch
	ErrCategoryTimeout                         // Wait condition or driver command timed out
	ErrCategoryConnection                      // WebDriver server unreachable, session lost
	ErrCategoryLocator                         // Unknown page/element, invalid selector, missing frame
	ErrCategoryConfig                          // Invalid configuration, unknown account or environment
	ErrCategoryScript                          // JavaScript evaluation failed
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryAssertion:
		return "assertion"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryLocator:
		return "locator"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryScript:
		return "script"
	default:
		return "unknown"
	}
}
