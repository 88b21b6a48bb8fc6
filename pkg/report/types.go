// Package report writes a live JSON report while scenarios run.
//
// Layout of a report directory:
//   - report.json: run index (small, frequently rewritten, mutex-protected)
//   - scenarios/scenario-NNN.json: per-scenario detail with step records
//   - assets/scenario-NNN/: screenshots, page sources and image diffs
//   - report.html: rendered from the JSON files
//
// The index is the single source of truth for status. Consumers poll
// report.json and fetch only the scenario files whose updateSeq changed.
package report

import "time"

// Version is the report schema version.
const Version = "1.0.0"

// Status is the execution status of a run, scenario or step.
type Status string

// Status values.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusUndefined Status = "undefined"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusSkipped, StatusUndefined:
		return true
	}
	return false
}

// Index is report.json.
type Index struct {
	Version     string          `json:"version"`
	RunID       string          `json:"runId"`
	UpdateSeq   uint64          `json:"updateSeq"`
	Status      Status          `json:"status"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     *time.Time      `json:"endTime,omitempty"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Environment Environment     `json:"environment"`
	Runner      RunnerInfo      `json:"runner"`
	CI          *CI             `json:"ci,omitempty"`
	Summary     Summary         `json:"summary"`
	Scenarios   []ScenarioEntry `json:"scenarios"`
}

// Environment describes what the run targeted.
type Environment struct {
	Name     string `json:"name"`
	BaseURL  string `json:"baseUrl,omitempty"`
	Target   string `json:"target"`            // browser, desktop, appium
	Browser  string `json:"browser,omitempty"` // Browser name for web targets
	Platform string `json:"platform,omitempty"`
	Remote   string `json:"remote,omitempty"` // WebDriver server URL
}

// CI contains CI/CD build information.
type CI struct {
	Provider string `json:"provider,omitempty"`
	BuildID  string `json:"buildId,omitempty"`
	BuildURL string `json:"buildUrl,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Commit   string `json:"commit,omitempty"`
}

// RunnerInfo identifies the runner build.
type RunnerInfo struct {
	Version string `json:"version"`
	Driver  string `json:"driver"` // webdriver, winappdriver, appium
}

// Summary contains aggregated scenario counts.
type Summary struct {
	Total     int `json:"total"`
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Undefined int `json:"undefined"`
	Running   int `json:"running"`
	Pending   int `json:"pending"`
}

// ScenarioEntry is the index entry for a scenario.
type ScenarioEntry struct {
	Index          int            `json:"index"`
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Feature        string         `json:"feature"`
	SourceFile     string         `json:"sourceFile"`
	Line           int64          `json:"line"`
	Tags           []string       `json:"tags,omitempty"`
	DataFile       string         `json:"dataFile"`
	AssetsDir      string         `json:"assetsDir"`
	Status         Status         `json:"status"`
	UpdateSeq      uint64         `json:"updateSeq"`
	StartTime      *time.Time     `json:"startTime,omitempty"`
	EndTime        *time.Time     `json:"endTime,omitempty"`
	Duration       *int64         `json:"duration,omitempty"` // milliseconds
	LastUpdated    *time.Time     `json:"lastUpdated,omitempty"`
	Steps          StepSummary    `json:"steps"`
	Attempts       int            `json:"attempts"`
	AttemptHistory []AttemptEntry `json:"attemptHistory,omitempty"`
	Error          *string        `json:"error,omitempty"`
}

// Location returns "file:line".
func (e ScenarioEntry) Location() string {
	return e.SourceFile + ":" + itoa(e.Line)
}

// StepSummary contains step counts for a scenario.
type StepSummary struct {
	Total     int  `json:"total"`
	Passed    int  `json:"passed"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Undefined int  `json:"undefined"`
	Running   int  `json:"running"`
	Pending   int  `json:"pending"`
	Current   *int `json:"current,omitempty"` // Index of the running step
}

// AttemptEntry records one finished attempt of a retried scenario.
type AttemptEntry struct {
	Attempt  int    `json:"attempt"`
	DataFile string `json:"dataFile"`
	Status   Status `json:"status"`
	Duration int64  `json:"duration"` // milliseconds
	Error    string `json:"error,omitempty"`
}

// ScenarioDetail is scenarios/scenario-NNN.json.
type ScenarioDetail struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Feature    string     `json:"feature"`
	SourceFile string     `json:"sourceFile"`
	Line       int64      `json:"line"`
	Tags       []string   `json:"tags,omitempty"`
	Attempt    int        `json:"attempt"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	Duration   *int64     `json:"duration,omitempty"` // milliseconds
	Steps      []Step     `json:"steps"`
}

// Step is one executed Gherkin step.
type Step struct {
	ID          string       `json:"id"`
	Index       int          `json:"index"`
	Keyword     string       `json:"keyword"`
	Text        string       `json:"text"`
	Line        int64        `json:"line,omitempty"`
	Status      Status       `json:"status"`
	StartTime   *time.Time   `json:"startTime,omitempty"`
	EndTime     *time.Time   `json:"endTime,omitempty"`
	Duration    *int64       `json:"duration,omitempty"` // milliseconds
	DataTable   [][]string   `json:"dataTable,omitempty"`
	DocString   string       `json:"docString,omitempty"`
	Element     *Element     `json:"element,omitempty"`
	Error       *Error       `json:"error,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Element describes the element a step acted on.
type Element struct {
	Ref     string  `json:"ref"` // Page.element
	Locator string  `json:"locator,omitempty"`
	Frame   []int   `json:"frame,omitempty"`
	Text    string  `json:"text,omitempty"`
	Bounds  *Bounds `json:"bounds,omitempty"`
}

// Bounds represents element bounds.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Error contains failure details.
type Error struct {
	Type       string                 `json:"type"` // Error category: assertion, timeout, locator, ...
	Code       string                 `json:"code,omitempty"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
}

// Attachment is an artifact file stored under assets/. Paths are relative
// to the report directory.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Path        string `json:"path"`
}

// ScenarioUpdate contains the index fields to update for a scenario.
type ScenarioUpdate struct {
	Status    Status
	StartTime *time.Time
	EndTime   *time.Time
	Duration  *int64
	Steps     StepSummary
	Error     *string
}
