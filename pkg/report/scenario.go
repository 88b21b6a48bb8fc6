package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
)

// StepResult is the outcome of a step.
type StepResult struct {
	Status      Status
	Element     *Element
	Error       *Error
	Attachments []Attachment
}

// ScenarioWriter writes updates for a single scenario and forwards
// progress to the index.
type ScenarioWriter struct {
	mu        sync.Mutex
	detail    *ScenarioDetail
	outputDir string
	dataFile  string // Relative to outputDir
	assetsDir string // Relative to outputDir
	index     *IndexWriter
}

// NewScenarioWriter creates a writer for detail, whose skeleton file is
// listed in the index entry with the same ID.
func NewScenarioWriter(detail *ScenarioDetail, outputDir string, index *IndexWriter) (*ScenarioWriter, error) {
	w := &ScenarioWriter{
		detail:    detail,
		outputDir: outputDir,
		dataFile:  filepath.Join("scenarios", detail.ID+".json"),
		assetsDir: filepath.Join("assets", detail.ID),
		index:     index,
	}
	if detail.Attempt == 0 {
		detail.Attempt = 1
	}
	if err := ensureDir(filepath.Join(outputDir, w.assetsDir)); err != nil {
		return nil, err
	}
	return w, nil
}

// ID returns the scenario ID.
func (w *ScenarioWriter) ID() string {
	return w.detail.ID
}

// Attempt returns the current attempt number, starting at 1.
func (w *ScenarioWriter) Attempt() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.detail.Attempt
}

// Start marks the scenario as running.
func (w *ScenarioWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.detail.StartTime = now
	w.flushLocked()
	w.index.UpdateScenario(w.detail.ID, &ScenarioUpdate{
		Status:    StatusRunning,
		StartTime: &now,
		Steps:     w.stepSummaryLocked(),
	})
}

// StepStart marks a step as running.
func (w *ScenarioWriter) StepStart(i int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if i < 0 || i >= len(w.detail.Steps) {
		return
	}
	now := time.Now()
	step := &w.detail.Steps[i]
	step.Status = StatusRunning
	step.StartTime = &now
	w.flushLocked()
	w.progressLocked()
}

// StepEnd records a step outcome.
func (w *ScenarioWriter) StepEnd(i int, res StepResult) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if i < 0 || i >= len(w.detail.Steps) {
		return
	}
	now := time.Now()
	step := &w.detail.Steps[i]
	step.Status = res.Status
	step.EndTime = &now
	if step.StartTime != nil {
		d := now.Sub(*step.StartTime).Milliseconds()
		step.Duration = &d
	}
	step.Element = res.Element
	step.Error = res.Error
	step.Attachments = append(step.Attachments, res.Attachments...)
	w.flushLocked()
	w.progressLocked()
}

// Attach adds an attachment to a step without changing its status.
func (w *ScenarioWriter) Attach(i int, a Attachment) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if i < 0 || i >= len(w.detail.Steps) {
		return
	}
	w.detail.Steps[i].Attachments = append(w.detail.Steps[i].Attachments, a)
	w.flushLocked()
}

// SaveAsset writes data under the scenario's assets directory and returns
// the path relative to the report directory.
func (w *ScenarioWriter) SaveAsset(stepIndex int, name, ext string, data []byte) (string, error) {
	abs, rel := w.AssetPath(stepIndex, name, ext)
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", filepath.Base(abs), err)
	}
	return rel, nil
}

// AssetPath returns where an asset for a step is stored, as an absolute
// path and relative to the report directory. Later attempts get their
// own names.
func (w *ScenarioWriter) AssetPath(stepIndex int, name, ext string) (abs, rel string) {
	w.mu.Lock()
	attempt := w.detail.Attempt
	w.mu.Unlock()

	filename := fmt.Sprintf("step-%03d-%s", stepIndex, sanitize(name))
	if attempt > 1 {
		filename += fmt.Sprintf("-a%d", attempt)
	}
	filename += "." + strings.TrimPrefix(ext, ".")
	rel = filepath.Join(w.assetsDir, filename)
	return filepath.Join(w.outputDir, rel), filepath.ToSlash(rel)
}

// SkipRemaining marks pending steps from index from onwards as skipped.
func (w *ScenarioWriter) SkipRemaining(from int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := from; i < len(w.detail.Steps); i++ {
		if w.detail.Steps[i].Status == StatusPending || w.detail.Steps[i].Status == StatusRunning {
			w.detail.Steps[i].Status = StatusSkipped
		}
	}
	w.flushLocked()
}

// End finishes the scenario.
func (w *ScenarioWriter) End(status Status) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.detail.EndTime = &now
	var d int64
	if !w.detail.StartTime.IsZero() {
		d = now.Sub(w.detail.StartTime).Milliseconds()
	}
	w.detail.Duration = &d
	w.flushLocked()

	update := &ScenarioUpdate{
		Status:   status,
		EndTime:  &now,
		Duration: &d,
		Steps:    w.stepSummaryLocked(),
	}
	if msg := w.firstErrorLocked(); msg != "" && status != StatusPassed {
		update.Error = &msg
	}
	w.index.UpdateScenario(w.detail.ID, update)
}

// Retry archives the finished attempt in the index and resets the detail
// for the next attempt, which is written to a new file.
func (w *ScenarioWriter) Retry(status Status) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var d int64
	if w.detail.Duration != nil {
		d = *w.detail.Duration
	}
	w.index.RecordAttempt(w.detail.ID, AttemptEntry{
		Attempt:  w.detail.Attempt,
		DataFile: filepath.ToSlash(w.dataFile),
		Status:   status,
		Duration: d,
		Error:    w.firstErrorLocked(),
	})

	w.detail.Attempt++
	w.detail.StartTime = time.Time{}
	w.detail.EndTime = nil
	w.detail.Duration = nil
	for i := range w.detail.Steps {
		s := &w.detail.Steps[i]
		*s = Step{ID: s.ID, Index: s.Index, Keyword: s.Keyword, Text: s.Text, Line: s.Line,
			DataTable: s.DataTable, DocString: s.DocString, Status: StatusPending}
	}
	w.dataFile = filepath.Join("scenarios", fmt.Sprintf("%s-attempt-%d.json", w.detail.ID, w.detail.Attempt))
	w.index.SetDataFile(w.detail.ID, filepath.ToSlash(w.dataFile), w.detail.Attempt)
	w.flushLocked()
}

// Detail returns a copy of the scenario detail.
func (w *ScenarioWriter) Detail() ScenarioDetail {
	w.mu.Lock()
	defer w.mu.Unlock()
	d := *w.detail
	d.Steps = append([]Step(nil), w.detail.Steps...)
	return d
}

func (w *ScenarioWriter) flushLocked() {
	if err := atomicWriteJSON(filepath.Join(w.outputDir, w.dataFile), w.detail); err != nil {
		logger.Warn("Failed to write scenario %s: %v", w.detail.ID, err)
	}
}

func (w *ScenarioWriter) progressLocked() {
	w.index.UpdateScenario(w.detail.ID, &ScenarioUpdate{
		Status: StatusRunning,
		Steps:  w.stepSummaryLocked(),
	})
}

func (w *ScenarioWriter) firstErrorLocked() string {
	for _, s := range w.detail.Steps {
		if s.Error != nil {
			return s.Error.Message
		}
	}
	return ""
}

func (w *ScenarioWriter) stepSummaryLocked() StepSummary {
	var s StepSummary
	s.Total = len(w.detail.Steps)
	for i, step := range w.detail.Steps {
		switch step.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusUndefined:
			s.Undefined++
		case StatusRunning:
			s.Running++
			idx := i
			s.Current = &idx
		case StatusPending:
			s.Pending++
		}
	}
	return s
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}
