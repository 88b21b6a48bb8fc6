package webdriver

import (
	"errors"
	"fmt"
)

// W3C error codes
const (
	CodeNoSuchElement           = "no such element"
	CodeStaleElement            = "stale element reference"
	CodeNotInteractable         = "element not interactable"
	CodeClickIntercepted        = "element click intercepted"
	CodeInvalidElementState     = "invalid element state"
	CodeNoSuchFrame             = "no such frame"
	CodeNoSuchWindow            = "no such window"
	CodeNoSuchAlert             = "no such alert"
	CodeUnexpectedAlert         = "unexpected alert open"
	CodeTimeout                 = "timeout"
	CodeScriptTimeout           = "script timeout"
	CodeJavaScriptError         = "javascript error"
	CodeInvalidSelector         = "invalid selector"
	CodeInvalidSessionID        = "invalid session id"
	CodeSessionNotCreated       = "session not created"
	CodeUnknownCommand          = "unknown command"
	CodeUnknownError            = "unknown error"
	CodeMoveTargetOutOfBounds   = "move target out of bounds"
	CodeElementNotSelectable    = "element not selectable"
	CodeUnableToSetCookie       = "unable to set cookie"
	CodeUnableToCaptureScreen   = "unable to capture screen"
	CodeInvalidCookieDomain     = "invalid cookie domain"
	CodeElementNotVisibleLegacy = "element not visible"
)

// legacyStatus maps JSON Wire Protocol numeric statuses (still returned by
// WinAppDriver) to W3C codes.
var legacyStatus = map[int]string{
	6:  CodeInvalidSessionID,
	7:  CodeNoSuchElement,
	8:  CodeNoSuchFrame,
	9:  CodeUnknownCommand,
	10: CodeStaleElement,
	11: CodeNotInteractable,
	12: CodeInvalidElementState,
	13: CodeUnknownError,
	15: CodeElementNotSelectable,
	17: CodeJavaScriptError,
	19: CodeInvalidSelector,
	21: CodeTimeout,
	23: CodeNoSuchWindow,
	24: CodeInvalidCookieDomain,
	25: CodeUnableToSetCookie,
	26: CodeUnexpectedAlert,
	27: CodeNoSuchAlert,
	28: CodeScriptTimeout,
	32: CodeInvalidSelector,
	33: CodeSessionNotCreated,
	34: CodeMoveTargetOutOfBounds,
}

// Error is a WebDriver error response.
type Error struct {
	Code       string // W3C error code
	Message    string
	Status     int // HTTP status
	Stacktrace string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode returns the W3C code of err, or "" when err is not a
// WebDriver error.
func ErrorCode(err error) string {
	var wdErr *Error
	if errors.As(err, &wdErr) {
		return wdErr.Code
	}
	return ""
}

// IsNoSuchElement reports whether no element matched the locator.
func IsNoSuchElement(err error) bool {
	return ErrorCode(err) == CodeNoSuchElement
}

// IsStale reports whether the element reference is no longer attached.
func IsStale(err error) bool {
	return ErrorCode(err) == CodeStaleElement
}

// IsNotInteractable reports whether a native interaction was refused,
// including intercepted clicks and invalid state.
func IsNotInteractable(err error) bool {
	switch ErrorCode(err) {
	case CodeNotInteractable, CodeClickIntercepted, CodeInvalidElementState, CodeElementNotVisibleLegacy,
		CodeMoveTargetOutOfBounds:
		return true
	}
	return false
}

// IsNoSuchFrame reports whether a frame switch failed.
func IsNoSuchFrame(err error) bool {
	return ErrorCode(err) == CodeNoSuchFrame
}

// IsNoSuchAlert reports whether no alert was open.
func IsNoSuchAlert(err error) bool {
	return ErrorCode(err) == CodeNoSuchAlert
}

// IsInvalidSession reports whether the session is gone.
func IsInvalidSession(err error) bool {
	switch ErrorCode(err) {
	case CodeInvalidSessionID, CodeNoSuchWindow:
		return true
	}
	return false
}

// IsRetryable reports whether a lookup or interaction may succeed when
// repeated after the page settles.
func IsRetryable(err error) bool {
	return IsNoSuchElement(err) || IsStale(err) || IsNoSuchFrame(err) || IsNotInteractable(err)
}
