package executor

import (
	"context"
	"errors"
	"time"

	"github.com/cucumber/godog"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
	"github.com/devicelab-dev/gherkin-runner/pkg/report"
	"github.com/devicelab-dev/gherkin-runner/pkg/steps"
	"github.com/devicelab-dev/gherkin-runner/pkg/validator"
)

// scenarioRun is the report side of one running pickle. Steps of a
// scenario run one after another, so its fields need no locking.
type scenarioRun struct {
	index  int
	writer *report.ScenarioWriter
	world  *steps.World
	source validator.Scenario

	positions map[string]int // Pickle step ID -> skeleton step index
	stepStart time.Time
	stepsDone int
	result    core.ScenarioResult

	// godog runs the after-scenario hook before the after-step hook of the
	// last or failing step; the scenario is finished once both are in.
	ended       bool
	finished    bool
	scenarioErr error
}

type runKey struct{}

func runFrom(ctx context.Context) *scenarioRun {
	run, _ := ctx.Value(runKey{}).(*scenarioRun)
	return run
}

func (r *Runner) beforeScenario(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
	texts := make([]string, len(sc.Steps))
	for i, st := range sc.Steps {
		texts[i] = st.Text
	}
	i, ok := r.claim(validator.ScenarioKey(sc.Uri, sc.Name, texts))
	if !ok {
		return ctx, godog.ErrSkip
	}

	w := r.writers[i]
	src := r.config.Scenarios[i]
	run := &scenarioRun{
		index:     i,
		writer:    w,
		source:    src,
		positions: make(map[string]int, len(sc.Steps)),
		result: core.ScenarioResult{
			ID:        w.ID(),
			Name:      src.Name,
			Feature:   src.Feature,
			URI:       src.File,
			Line:      int(src.Line),
			Tags:      src.Tags,
			StartTime: time.Now(),
			Attempts:  w.Attempt(),
		},
	}
	for pos, st := range sc.Steps {
		run.positions[st.Id] = pos
	}
	run.world = steps.NewWorld(steps.Options{
		Config:     r.workspace,
		Pages:      r.config.Pages,
		Accounts:   r.config.Accounts,
		Data:       r.config.Data,
		Open:       r.sessions.opener(),
		Shared:     r.sessions.shared,
		HTTPClient: r.config.HTTPClient,
	})

	r.track(run)
	logger.Info("Scenario %s started: %s (%s, attempt %d)", w.ID(), src.Name, src.Location(), run.result.Attempts)
	w.Start()
	if r.config.OnScenarioStart != nil {
		r.config.OnScenarioStart(i, len(r.config.Scenarios), src.Name, src.Location())
	}

	ctx = steps.WithWorld(ctx, run.world)
	return context.WithValue(ctx, runKey{}, run), nil
}

func (r *Runner) beforeStep(ctx context.Context, st *godog.Step) (context.Context, error) {
	run := runFrom(ctx)
	if run == nil {
		return ctx, nil
	}
	pos, ok := run.positions[st.Id]
	if !ok {
		return ctx, nil
	}
	run.stepStart = time.Now()
	run.writer.StepStart(pos)
	run.world.BeginStep(func(name, ext string) (string, string) {
		return run.writer.AssetPath(pos, name, ext)
	})
	return ctx, nil
}

func (r *Runner) afterStep(ctx context.Context, st *godog.Step, status godog.StepResultStatus, err error) (context.Context, error) {
	run := runFrom(ctx)
	if run == nil {
		return ctx, nil
	}
	pos, ok := run.positions[st.Id]
	if !ok {
		return ctx, nil
	}

	result := core.StepResult{
		Index:     pos,
		Text:      st.Text,
		Status:    stepStatus(status, err),
		Category:  core.CategoryOf(err),
		StartTime: run.stepStart,
		Duration:  time.Since(run.stepStart),
	}
	if pos < len(run.source.Steps) {
		result.Keyword = run.source.Steps[pos].Keyword
	}
	if err != nil && result.Status != core.StatusSkipped {
		result.Error = err.Error()
	}

	state := run.world.TakeStepState()
	result.Element = state.Element
	result.Attachments = state.Attachments
	if r.workspace.Artifacts.ShouldCapture(result.Status) {
		if d := run.world.Driver(); d != nil {
			result.Attachments = append(result.Attachments, captureArtifacts(ctx, d, r.workspace.Artifacts)...)
		}
	}
	attachments := r.saveAttachments(run, pos, result.Attachments)

	var reportErr *report.Error
	if result.Error != "" {
		reportErr = errorToReport(err)
	}
	run.writer.StepEnd(pos, report.StepResult{
		Status:      reportStatus(result.Status),
		Element:     elementToReport(state.Element),
		Error:       reportErr,
		Attachments: attachments,
	})

	for i := range result.Attachments {
		result.Attachments[i].Body = nil
	}
	run.result.Steps = append(run.result.Steps, result)
	run.stepsDone++
	if r.config.OnStepEnd != nil {
		r.config.OnStepEnd(result)
	}
	r.maybeFinish(ctx, run)
	return ctx, nil
}

func (r *Runner) afterScenario(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
	run := runFrom(ctx)
	if run == nil {
		return ctx, nil
	}
	run.ended = true
	run.scenarioErr = err
	r.maybeFinish(ctx, run)
	return ctx, nil
}

func (r *Runner) maybeFinish(ctx context.Context, run *scenarioRun) {
	if run.finished || !run.ended || run.stepsDone < len(run.positions) {
		return
	}
	run.finished = true
	r.untrack(run)
	err := run.scenarioErr

	res := &run.result
	if d := run.world.Driver(); d != nil {
		res.PlatformInfo = d.GetPlatformInfo()
	}
	if cerr := run.world.Close(ctx); cerr != nil {
		logger.Warn("Failed to close session for %s: %v", res.ID, cerr)
	}

	run.writer.SkipRemaining(0)
	res.Duration = time.Since(res.StartTime)
	res.Status = res.AggregateStatus(r.workspace.Run.Strict)
	if err != nil && res.Status == core.StatusPassed && !isSoftError(err) {
		res.Status = core.StatusFailed
	}
	res.Error = firstStepError(res.Steps)
	if res.Error == "" && err != nil && res.Status.IsFailure() {
		res.Error = err.Error()
	}
	res.ComputeSummary()

	status := scenarioStatus(res)
	run.writer.End(status)
	r.record(run.index, *res)
	logger.Info("Scenario %s %s in %s", res.ID, status, res.Duration.Round(time.Millisecond))

	if r.config.OnScenarioEnd != nil {
		r.config.OnScenarioEnd(*res)
	}
}

// isSoftError reports godog outcomes that do not fail a scenario on
// their own; strict mode is handled by AggregateStatus.
func isSoftError(err error) bool {
	return errors.Is(err, godog.ErrUndefined) || errors.Is(err, godog.ErrPending) || errors.Is(err, godog.ErrSkip)
}

func firstStepError(steps []core.StepResult) string {
	for _, s := range steps {
		if s.Error != "" {
			return s.Error
		}
	}
	return ""
}

func (r *Runner) track(run *scenarioRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[run.index] = run
}

func (r *Runner) untrack(run *scenarioRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, run.index)
}

// finishStragglers finishes scenarios godog left without their closing
// hooks, such as after a panic in a step.
func (r *Runner) finishStragglers(ctx context.Context) {
	r.mu.Lock()
	var left []*scenarioRun
	for _, run := range r.active {
		left = append(left, run)
	}
	r.mu.Unlock()

	for _, run := range left {
		logger.Warn("Scenario %s did not finish cleanly", run.result.ID)
		run.ended = true
		run.stepsDone = len(run.positions)
		r.maybeFinish(ctx, run)
	}
}
