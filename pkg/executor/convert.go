package executor

import (
	"errors"

	"github.com/cucumber/godog"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/report"
)

// stepStatus converts a godog step outcome. Failures caused by the
// environment rather than the application are errored.
func stepStatus(status godog.StepResultStatus, err error) core.StepStatus {
	switch status {
	case godog.StepPassed:
		return core.StatusPassed
	case godog.StepFailed:
		switch core.CategoryOf(err) {
		case core.ErrCategoryConnection, core.ErrCategoryConfig, core.ErrCategoryScript:
			return core.StatusErrored
		}
		return core.StatusFailed
	case godog.StepUndefined:
		return core.StatusUndefined
	default:
		return core.StatusSkipped
	}
}

// reportStatus converts a step status to its report form.
func reportStatus(s core.StepStatus) report.Status {
	switch s {
	case core.StatusPassed:
		return report.StatusPassed
	case core.StatusFailed, core.StatusErrored:
		return report.StatusFailed
	case core.StatusUndefined, core.StatusAmbiguous:
		return report.StatusUndefined
	case core.StatusRunning:
		return report.StatusRunning
	case core.StatusPending:
		return report.StatusPending
	default:
		return report.StatusSkipped
	}
}

// scenarioStatus is the report status of a finished scenario. A scenario
// held back only by undefined steps shows as undefined.
func scenarioStatus(res *core.ScenarioResult) report.Status {
	switch res.Status {
	case core.StatusPassed:
		return report.StatusPassed
	case core.StatusFailed, core.StatusErrored:
		return report.StatusFailed
	}
	for _, s := range res.Steps {
		if s.Status == core.StatusUndefined || s.Status == core.StatusAmbiguous {
			return report.StatusUndefined
		}
	}
	return report.StatusSkipped
}

// elementToReport converts the element a step acted on.
func elementToReport(info *core.ElementInfo) *report.Element {
	if info == nil {
		return nil
	}
	el := &report.Element{
		Ref:     info.Name,
		Locator: info.Locator,
		Frame:   info.Frame,
		Text:    info.Text,
	}
	if !info.Bounds.IsEmpty() {
		el.Bounds = &report.Bounds{
			X:      info.Bounds.X,
			Y:      info.Bounds.Y,
			Width:  info.Bounds.Width,
			Height: info.Bounds.Height,
		}
	}
	return el
}

// errorToReport converts a step error, keeping the category, machine code
// and details of an ExecutionError.
func errorToReport(err error) *report.Error {
	if err == nil {
		return nil
	}
	category := core.CategoryOf(err)
	errType := category.String()
	if category == core.ErrCategoryNone {
		errType = "unknown"
	}
	code := core.CodeOf(err)
	out := &report.Error{
		Type:       errType,
		Code:       code,
		Message:    err.Error(),
		Suggestion: suggestions[code],
	}
	var ee *core.ExecutionError
	if errors.As(err, &ee) && len(ee.Details) > 0 {
		out.Details = ee.Details
	}
	return out
}

var suggestions = map[string]string{
	"element_not_found":   "Check the element's locators against the page, or raise timeouts.element",
	"element_not_visible": "The element exists but is hidden; wait for it or check overlays",
	"frame_not_found":     "Check the frame locator of the element in its page file",
	"page_not_found":      "Define the page under the pages directory or fix its name",
	"element_not_defined": "Add the element to the page file or fix the reference",
	"no_current_page":     "Start the scenario with: I am on the \"<page>\" page",
	"account_not_found":   "Add the account to the accounts file for this environment",
	"server_unreachable":  "Start the WebDriver server or fix remoteUrl",
	"session_lost":        "The driver session ended; check the browser or driver logs",
	"image_mismatch":      "Inspect the attached image diff; rerun with updateBaselines to accept the change",
	"wait_timeout":        "The driver kept failing while waiting; check the attached page source",
	"timeout":             "Raise timeouts.script or shorten the script",
}
