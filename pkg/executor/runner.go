// Package executor runs validated scenarios as a godog suite and keeps the
// live report in step with it.
package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cucumber/godog"
	"github.com/google/uuid"

	"github.com/devicelab-dev/gherkin-runner/pkg/config"
	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
	"github.com/devicelab-dev/gherkin-runner/pkg/page"
	"github.com/devicelab-dev/gherkin-runner/pkg/report"
	"github.com/devicelab-dev/gherkin-runner/pkg/steps"
	"github.com/devicelab-dev/gherkin-runner/pkg/validator"
)

// SuiteName is the godog suite name, used by the junit and cucumber formatters.
const SuiteName = "gherkin-runner"

// FormatNone silences the console formatter.
const FormatNone = "none"

// RunnerConfig configures the test runner.
type RunnerConfig struct {
	Workspace *config.Config
	Pages     *page.Registry
	Accounts  *config.Accounts
	Data      *config.TestData

	// Scenarios are the validated scenarios selected for the run. The
	// report skeleton lists them in this order.
	Scenarios []validator.Scenario
	// Paths are the feature paths handed to godog. Empty uses the files
	// of Scenarios.
	Paths []string

	OutputDir string    // Report output directory
	Format    string    // Console formatter: pretty, progress, none
	Output    io.Writer // Console output; defaults to stdout
	NoColors  bool
	LiveHTML  bool // Rewrite report.html while the run progresses

	// Open starts a driver session. Nil opens a WebDriver session from
	// Workspace.
	Open       steps.Opener
	HTTPClient *http.Client

	CI            *report.CI
	RunnerVersion string

	// Live progress callbacks
	OnScenarioStart func(idx, total int, name, location string)
	OnStepEnd       func(step core.StepResult)
	OnScenarioEnd   func(result core.ScenarioResult)
}

// RunResult contains the outcome of a test run.
type RunResult struct {
	core.SuiteResult
	Status    report.Status
	ReportDir string
}

// Runner orchestrates a run: one godog pass over every selected scenario,
// then a pass per retry over the ones that failed.
type Runner struct {
	config    RunnerConfig
	workspace *config.Config
	sessions  *sessionPool

	index   *report.IndexWriter
	writers []*report.ScenarioWriter

	mu      sync.Mutex
	queue   map[string][]int // Scenario key -> indexes waiting for their pickle
	active  map[int]*scenarioRun
	results []core.ScenarioResult
	ran     []bool
}

// New creates a new Runner.
func New(cfg RunnerConfig) *Runner {
	ws := cfg.Workspace
	if ws == nil {
		ws = config.Default()
	}
	open := cfg.Open
	if open == nil {
		open = webdriverOpener(ws)
	}
	shared := !ws.Session.PerScenario && ws.Run.Concurrency <= 1
	return &Runner{
		config:    cfg,
		workspace: ws,
		sessions:  newSessionPool(open, shared),
	}
}

// Run executes all scenarios and generates the report.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	if len(r.config.Scenarios) == 0 {
		return nil, core.ErrMissingRequired.WithMessage("no scenarios to run")
	}
	outputDir := r.config.OutputDir
	if outputDir == "" {
		outputDir = r.workspace.Paths.Reports
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	r.config.OutputDir = outputDir

	start := time.Now()
	runID := uuid.NewString()
	index, details := report.BuildSkeleton(scenarioSources(r.config.Scenarios), report.BuilderConfig{
		RunID:         runID,
		Environment:   r.environment(),
		CI:            r.config.CI,
		RunnerVersion: r.config.RunnerVersion,
		DriverName:    driverName(r.workspace.Target),
	})
	if err := report.WriteSkeleton(outputDir, index, details); err != nil {
		return nil, err
	}

	r.index = report.NewIndexWriter(outputDir, index, report.WithLiveHTML(r.config.LiveHTML))
	defer r.index.Close()

	r.writers = make([]*report.ScenarioWriter, len(details))
	for i := range details {
		w, err := report.NewScenarioWriter(&details[i], outputDir, r.index)
		if err != nil {
			return nil, err
		}
		r.writers[i] = w
	}
	r.results = make([]core.ScenarioResult, len(details))
	r.ran = make([]bool, len(details))
	r.active = make(map[int]*scenarioRun)

	defer func() {
		if err := r.sessions.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to close shared session: %v", err)
		}
	}()

	logger.Info("Run %s: %d scenario(s), report at %s", runID, len(details), outputDir)
	r.index.Start()

	all := make([]int, len(details))
	for i := range all {
		all[i] = i
	}
	if code := r.pass(ctx, 1, all); code == exitOptionsError {
		r.index.End()
		return nil, core.ErrInvalidConfig.WithMessage("godog rejected the run options; check tags and formatters")
	}

	failed := r.failed(all)
	for attempt := 2; attempt <= r.workspace.Run.Retries+1 && len(failed) > 0; attempt++ {
		if ctx.Err() != nil {
			break
		}
		logger.Info("Retrying %d failed scenario(s), attempt %d", len(failed), attempt)
		for _, i := range failed {
			r.writers[i].Retry(report.StatusFailed)
		}
		r.pass(ctx, attempt, failed)
		failed = r.failed(failed)
	}

	r.index.End()
	if err := report.GenerateHTML(outputDir, report.HTMLConfig{}); err != nil {
		logger.Warn("Failed to generate HTML report: %v", err)
	}

	return r.buildRunResult(runID, start), nil
}

// exitOptionsError is the godog exit code for options it cannot run with.
const exitOptionsError = 2

// pass runs one godog suite over the scenarios in set.
func (r *Runner) pass(ctx context.Context, attempt int, set []int) int {
	r.mu.Lock()
	r.queue = make(map[string][]int, len(set))
	for _, i := range set {
		key := r.config.Scenarios[i].Key()
		r.queue[key] = append(r.queue[key], i)
	}
	r.mu.Unlock()

	paths := r.config.Paths
	if attempt > 1 || len(paths) == 0 {
		paths = scenarioPaths(r.config.Scenarios, set, attempt > 1)
	}

	run := r.workspace.Run
	concurrency := run.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	format, output := r.formatters(attempt, concurrency)

	suite := godog.TestSuite{
		Name:                SuiteName,
		ScenarioInitializer: r.initScenario,
		Options: &godog.Options{
			Format:         format,
			Paths:          paths,
			Tags:           run.Tags,
			Concurrency:    concurrency,
			Randomize:      run.Randomize,
			StopOnFailure:  run.StopOnFailure,
			Strict:         run.Strict,
			NoColors:       r.config.NoColors,
			Output:         output,
			DefaultContext: ctx,
		},
	}
	code := suite.Run()
	r.finishStragglers(context.WithoutCancel(ctx))
	logger.Debug("godog pass %d finished with exit code %d", attempt, code)
	return code
}

// formatters returns the godog format string and console writer. The
// first attempt writes junit.xml and cucumber.json; retries write
// numbered copies next to them.
func (r *Runner) formatters(attempt, concurrency int) (string, io.Writer) {
	console := r.config.Format
	if console == "" {
		console = "pretty"
	}
	output := r.config.Output
	if output == nil {
		output = os.Stdout
	}
	if console == FormatNone {
		console = "progress"
		output = io.Discard
	}
	if concurrency > 1 && console == "pretty" {
		console = "progress"
	}

	junit, cucumber := "junit.xml", "cucumber.json"
	if attempt > 1 {
		junit = fmt.Sprintf("junit-retry-%d.xml", attempt-1)
		cucumber = fmt.Sprintf("cucumber-retry-%d.json", attempt-1)
	}
	dir := r.config.OutputDir
	return strings.Join([]string{
		console,
		"junit:" + filepath.Join(dir, junit),
		"cucumber:" + filepath.Join(dir, cucumber),
	}, ","), output
}

func (r *Runner) initScenario(sc *godog.ScenarioContext) {
	steps.Register(sc)
	sc.Before(r.beforeScenario)
	sc.After(r.afterScenario)
	sc.StepContext().Before(r.beforeStep)
	sc.StepContext().After(r.afterStep)
}

// claim hands out the next skeleton index waiting for key.
func (r *Runner) claim(key string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	waiting := r.queue[key]
	if len(waiting) == 0 {
		return 0, false
	}
	r.queue[key] = waiting[1:]
	return waiting[0], true
}

func (r *Runner) record(i int, res core.ScenarioResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[i] = res
	r.ran[i] = true
}

// failed returns the members of set whose last attempt failed.
func (r *Runner) failed(set []int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, i := range set {
		if r.ran[i] && r.results[i].Status.IsFailure() {
			out = append(out, i)
		}
	}
	return out
}

func (r *Runner) environment() report.Environment {
	ws := r.workspace
	env := report.Environment{
		Name:    ws.Environment,
		BaseURL: ws.ResolveBaseURL(),
		Target:  ws.Target,
		Remote:  ws.ResolveRemoteURL(),
	}
	if ws.Target == config.TargetBrowser {
		env.Browser = ws.Browser.Name
	}
	if name, ok := ws.MergedCapabilities()["platformName"].(string); ok {
		env.Platform = name
	}
	return env
}

// buildRunResult aggregates scenario results into a run result. Scenarios
// that never ran are reported as skipped.
func (r *Runner) buildRunResult(runID string, start time.Time) *RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := &RunResult{
		ReportDir: r.config.OutputDir,
		SuiteResult: core.SuiteResult{
			Name:      SuiteName,
			RunID:     runID,
			StartTime: start,
			Duration:  time.Since(start),
		},
	}
	for i, sc := range r.config.Scenarios {
		if r.ran[i] {
			result.Scenarios = append(result.Scenarios, r.results[i])
			continue
		}
		result.Scenarios = append(result.Scenarios, core.ScenarioResult{
			ID:      report.ScenarioID(i),
			Name:    sc.Name,
			Feature: sc.Feature,
			URI:     sc.File,
			Line:    int(sc.Line),
			Tags:    sc.Tags,
			Status:  core.StatusSkipped,
		})
	}
	result.ComputeSummary()

	switch {
	case result.FailedScenarios > 0:
		result.Status = report.StatusFailed
	case result.PassedScenarios > 0:
		result.Status = report.StatusPassed
	default:
		result.Status = report.StatusSkipped
	}
	return result
}

func scenarioSources(scenarios []validator.Scenario) []report.ScenarioSource {
	out := make([]report.ScenarioSource, len(scenarios))
	for i, sc := range scenarios {
		src := report.ScenarioSource{
			Feature:    sc.Feature,
			SourceFile: sc.File,
			Line:       sc.Line,
			Name:       sc.Name,
			Tags:       sc.Tags,
			Steps:      make([]report.StepSource, len(sc.Steps)),
		}
		for j, st := range sc.Steps {
			src.Steps[j] = report.StepSource{
				Keyword:   st.Keyword,
				Text:      st.Text,
				Line:      st.Line,
				DataTable: st.DataTable,
				DocString: st.DocString,
			}
		}
		out[i] = src
	}
	return out
}

// scenarioPaths lists the godog paths covering set. With byLine each
// scenario definition is addressed as file:line.
func scenarioPaths(scenarios []validator.Scenario, set []int, byLine bool) []string {
	seen := make(map[string]bool)
	var paths []string
	for _, i := range set {
		sc := scenarios[i]
		p := sc.File
		if byLine {
			p = fmt.Sprintf("%s:%d", sc.File, sc.DefinitionLine)
		}
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

func driverName(target string) string {
	switch target {
	case config.TargetDesktop:
		return "winappdriver"
	case config.TargetAppium:
		return "appium"
	default:
		return "webdriver"
	}
}
