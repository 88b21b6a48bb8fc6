package report

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
)

// DefaultDebounce delays progress-only index writes.
const DefaultDebounce = 100 * time.Millisecond

// IndexWriter provides thread-safe updates to report.json. Scenario
// goroutines update it concurrently.
type IndexWriter struct {
	mu        sync.Mutex
	outputDir string
	path      string
	index     *Index
	liveHTML  bool
	debounce  time.Duration

	pending map[string]*ScenarioUpdate
	timer   *time.Timer
	closed  bool
}

// IndexOption configures an IndexWriter.
type IndexOption func(*IndexWriter)

// WithLiveHTML regenerates report.html on every index write.
func WithLiveHTML(enabled bool) IndexOption {
	return func(w *IndexWriter) { w.liveHTML = enabled }
}

// WithDebounce sets the delay for progress-only writes.
func WithDebounce(d time.Duration) IndexOption {
	return func(w *IndexWriter) { w.debounce = d }
}

// NewIndexWriter creates an IndexWriter for an existing skeleton index.
func NewIndexWriter(outputDir string, index *Index, opts ...IndexOption) *IndexWriter {
	w := &IndexWriter{
		outputDir: outputDir,
		path:      filepath.Join(outputDir, "report.json"),
		index:     index,
		debounce:  DefaultDebounce,
		pending:   make(map[string]*ScenarioUpdate),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start marks the run as started.
func (w *IndexWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.Status = StatusRunning
	w.index.StartTime = now
	w.flushLocked()
}

// UpdateScenario records a scenario update. Terminal states are written
// immediately; progress updates are debounced.
func (w *IndexWriter) UpdateScenario(id string, update *ScenarioUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.pending[id]; ok {
		mergeUpdate(update, prev)
	}
	w.pending[id] = update
	if update.Status.IsTerminal() || w.closed {
		w.flushLocked()
		return
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flush)
	}
}

// mergeUpdate carries timestamps from an unflushed update into its successor.
func mergeUpdate(next, prev *ScenarioUpdate) {
	if next.StartTime == nil {
		next.StartTime = prev.StartTime
	}
	if next.EndTime == nil {
		next.EndTime = prev.EndTime
	}
	if next.Duration == nil {
		next.Duration = prev.Duration
	}
	if next.Error == nil {
		next.Error = prev.Error
	}
}

// RecordAttempt appends a finished attempt to the scenario's history.
func (w *IndexWriter) RecordAttempt(id string, entry AttemptEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e := w.entry(id); e != nil {
		e.Attempts = entry.Attempt
		e.AttemptHistory = append(e.AttemptHistory, entry)
	}
	w.flushLocked()
}

// SetDataFile points the scenario entry at a new detail file.
func (w *IndexWriter) SetDataFile(id, dataFile string, attempt int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e := w.entry(id); e != nil {
		e.DataFile = dataFile
		e.Attempts = attempt
		e.Error = nil
	}
}

// End marks the run as complete. Scenarios that never started, such as
// those excluded by tags, become skipped.
func (w *IndexWriter) End() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.applyPending()
	for i := range w.index.Scenarios {
		if w.index.Scenarios[i].Status == StatusPending {
			w.index.Scenarios[i].Status = StatusSkipped
		}
	}
	w.index.Summary = w.computeSummary()
	now := time.Now()
	w.index.EndTime = &now
	w.index.Status = w.computeRunStatus()
	w.flushLocked()
}

// Close stops the debounce timer and writes pending updates.
func (w *IndexWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.flushLocked()
}

// Snapshot returns a copy of the current index.
func (w *IndexWriter) Snapshot() Index {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.applyPending()
	idx := *w.index
	idx.Scenarios = append([]ScenarioEntry(nil), w.index.Scenarios...)
	return idx
}

func (w *IndexWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

func (w *IndexWriter) flushLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.applyPending()
	w.index.UpdateSeq++
	w.index.LastUpdated = time.Now()

	if err := atomicWriteJSON(w.path, w.index); err != nil {
		logger.Warn("Failed to write report index: %v", err)
		return
	}
	if w.liveHTML {
		if err := GenerateHTML(w.outputDir, HTMLConfig{}); err != nil {
			logger.Warn("Failed to render live HTML report: %v", err)
		}
	}
}

func (w *IndexWriter) applyPending() {
	for id, update := range w.pending {
		w.applyUpdate(id, update)
	}
	w.pending = make(map[string]*ScenarioUpdate)
	w.index.Summary = w.computeSummary()
}

func (w *IndexWriter) entry(id string) *ScenarioEntry {
	for i := range w.index.Scenarios {
		if w.index.Scenarios[i].ID == id {
			return &w.index.Scenarios[i]
		}
	}
	return nil
}

func (w *IndexWriter) applyUpdate(id string, update *ScenarioUpdate) {
	e := w.entry(id)
	if e == nil {
		return
	}
	e.Status = update.Status
	if update.StartTime != nil {
		e.StartTime = update.StartTime
	}
	if update.EndTime != nil {
		e.EndTime = update.EndTime
	}
	if update.Duration != nil {
		e.Duration = update.Duration
	}
	if update.Error != nil {
		e.Error = update.Error
	}
	e.Steps = update.Steps
	e.UpdateSeq++
	now := time.Now()
	e.LastUpdated = &now
}

func (w *IndexWriter) computeSummary() Summary {
	var s Summary
	for _, e := range w.index.Scenarios {
		s.Total++
		switch e.Status {
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
		case StatusPending:
			s.Pending++
		}
	}
	return s
}

// computeRunStatus derives the run status. Undefined steps fail the run.
func (w *IndexWriter) computeRunStatus() Status {
	failed := false
	for _, e := range w.index.Scenarios {
		switch e.Status {
		case StatusFailed, StatusUndefined:
			failed = true
		case StatusRunning:
			return StatusRunning
		}
	}
	if failed {
		return StatusFailed
	}
	return StatusPassed
}
