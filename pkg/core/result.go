package core

import (
	"time"
)

// StepResult captures the outcome of executing a single Gherkin step
type StepResult struct {
	Index   int    `json:"index"`   // 0-based position in the scenario
	Keyword string `json:"keyword"` // Given, When, Then, And, But
	Text    string `json:"text"`    // Sentence as written (after outline substitution)

	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Element     *ElementInfo `json:"element,omitempty"`
	Error       string       `json:"error,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ScenarioResult captures the outcome of executing a scenario (one pickle)
type ScenarioResult struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Feature string   `json:"feature"`
	URI     string   `json:"uri"`
	Line    int      `json:"line,omitempty"`
	Tags    []string `json:"tags,omitempty"`

	PlatformInfo *PlatformInfo `json:"platformInfo,omitempty"`

	Status    StepStatus    `json:"status"`
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`

	Steps []StepResult `json:"steps"`

	TotalSteps   int `json:"totalSteps"`
	PassedSteps  int `json:"passedSteps"`
	FailedSteps  int `json:"failedSteps"`
	SkippedSteps int `json:"skippedSteps"`

	Error string `json:"error,omitempty"`
}

// ComputeSummary calculates step counts from the Steps slice
func (r *ScenarioResult) ComputeSummary() {
	r.TotalSteps = len(r.Steps)
	r.PassedSteps = 0
	r.FailedSteps = 0
	r.SkippedSteps = 0

	for _, step := range r.Steps {
		switch step.Status {
		case StatusPassed:
			r.PassedSteps++
		case StatusFailed, StatusErrored, StatusUndefined, StatusAmbiguous:
			r.FailedSteps++
		case StatusSkipped, StatusPending:
			r.SkippedSteps++
		}
	}
}

// AggregateStatus determines the scenario status from step results.
// Rules:
// - Any failed/errored step → StatusFailed
// - Undefined/ambiguous steps → StatusFailed when strict, else StatusSkipped
// - No steps executed → StatusSkipped
// - Otherwise → StatusPassed
func (r *ScenarioResult) AggregateStatus(strict bool) StepStatus {
	executed := false
	undefined := false
	for _, step := range r.Steps {
		switch step.Status {
		case StatusFailed, StatusErrored:
			return StatusFailed
		case StatusUndefined, StatusAmbiguous:
			undefined = true
		case StatusPassed:
			executed = true
		}
	}
	if undefined {
		if strict {
			return StatusFailed
		}
		return StatusSkipped
	}
	if !executed {
		return StatusSkipped
	}
	return StatusPassed
}

// SuiteResult captures the complete outcome of a test run
type SuiteResult struct {
	Name  string `json:"name"`
	RunID string `json:"runId"`

	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Scenarios []ScenarioResult `json:"scenarios"`

	TotalScenarios   int `json:"totalScenarios"`
	PassedScenarios  int `json:"passedScenarios"`
	FailedScenarios  int `json:"failedScenarios"`
	SkippedScenarios int `json:"skippedScenarios"`
	FlakyScenarios   int `json:"flakyScenarios,omitempty"` // Passed after retry
}

// ComputeSummary calculates scenario counts from the Scenarios slice
func (s *SuiteResult) ComputeSummary() {
	s.TotalScenarios = len(s.Scenarios)
	s.PassedScenarios = 0
	s.FailedScenarios = 0
	s.SkippedScenarios = 0
	s.FlakyScenarios = 0

	for _, sc := range s.Scenarios {
		switch sc.Status {
		case StatusPassed:
			s.PassedScenarios++
			if sc.Attempts > 1 {
				s.FlakyScenarios++
			}
		case StatusFailed, StatusErrored, StatusUndefined, StatusAmbiguous:
			s.FailedScenarios++
		default:
			s.SkippedScenarios++
		}
	}
}

// Success returns true if at least one scenario ran and none failed
func (s *SuiteResult) Success() bool {
	for _, sc := range s.Scenarios {
		if sc.Status.IsFailure() || sc.Status == StatusUndefined || sc.Status == StatusAmbiguous {
			return false
		}
	}
	return len(s.Scenarios) > 0
}
