package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/executor"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// Steps slower than this are flagged in the live output.
const slowThreshold = 5 * time.Second

func printBanner(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", bold("gherkin-runner"), Version)
	fmt.Fprintln(w, strings.Repeat("─", 60))
}

// progress prints scenarios and steps as they finish.
type progress struct {
	w io.Writer
}

func (p *progress) scenarioStart(idx, total int, name, location string) {
	fmt.Fprintf(p.w, "\n  %s %s %s\n", cyan(fmt.Sprintf("[%d/%d]", idx+1, total)), bold(name), gray("("+location+")"))
	fmt.Fprintln(p.w, strings.Repeat("─", 60))
}

func (p *progress) stepEnd(step core.StepResult) {
	desc := strings.TrimSpace(step.Keyword + " " + step.Text)
	dur := formatDuration(step.Duration.Milliseconds())

	switch step.Status {
	case core.StatusPassed:
		if step.Duration >= slowThreshold {
			fmt.Fprintf(p.w, "    %s %s %s\n", yellow("⚠"), desc, yellow("("+dur+")"))
			return
		}
		fmt.Fprintf(p.w, "    %s %s (%s)\n", green("✓"), desc, dur)
	case core.StatusFailed, core.StatusErrored:
		fmt.Fprintf(p.w, "    %s %s (%s)\n", red("✗"), desc, dur)
		if step.Error != "" {
			fmt.Fprintf(p.w, "      %s %s\n", gray("╰─"), step.Error)
		}
	case core.StatusUndefined:
		fmt.Fprintf(p.w, "    %s %s %s\n", yellow("?"), desc, gray("(undefined)"))
	default:
		fmt.Fprintf(p.w, "    %s %s\n", cyan("-"), gray(desc))
	}
}

func (p *progress) scenarioEnd(res core.ScenarioResult) {
	dur := gray(formatDuration(res.Duration.Milliseconds()))
	retry := ""
	if res.Attempts > 1 {
		retry = gray(fmt.Sprintf(" attempt %d", res.Attempts))
	}
	switch {
	case res.Status == core.StatusPassed:
		fmt.Fprintf(p.w, "%s %s %s%s\n", green("✓"), res.Name, dur, retry)
	case res.Status.IsFailure():
		fmt.Fprintf(p.w, "%s %s %s%s\n", red("✗"), res.Name, dur, retry)
	default:
		fmt.Fprintf(p.w, "%s %s %s\n", cyan("-"), res.Name, dur)
	}
}

func printSummary(w io.Writer, result *executor.RunResult) {
	var total, passed, failed, skipped int
	for _, sc := range result.Scenarios {
		total += sc.TotalSteps
		passed += sc.PassedSteps
		failed += sc.FailedSteps
		skipped += sc.SkippedSteps
	}
	duration := formatDuration(result.Duration.Milliseconds())

	fmt.Fprintln(w)
	if passed > 0 {
		fmt.Fprintf(w, "  %s (%s)\n", green(fmt.Sprintf("%d steps passing", passed)), duration)
	}
	if failed > 0 {
		fmt.Fprintf(w, "  %s\n", red(fmt.Sprintf("%d steps failing", failed)))
	}
	if skipped > 0 {
		fmt.Fprintf(w, "  %s\n", cyan(fmt.Sprintf("%d steps skipped", skipped)))
	}
	fmt.Fprintln(w)

	const tableWidth = 92
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
	fmt.Fprintf(w, "  %-42s %6s %7s %6s %6s %6s %10s\n", "Scenario", "Status", "Steps", "Pass", "Fail", "Skip", "Duration")
	fmt.Fprintln(w, strings.Repeat("─", tableWidth))

	for _, sc := range result.Scenarios {
		name := sc.Name
		if len(name) > 42 {
			name = name[:39] + "..."
		}
		fmt.Fprintf(w, "  %-42s %s %7d %6d %6d %6d %10s\n",
			name, statusCell(sc),
			sc.TotalSteps, sc.PassedSteps, sc.FailedSteps, sc.SkippedSteps,
			formatDuration(sc.Duration.Milliseconds()))
	}

	fmt.Fprintln(w, strings.Repeat("─", tableWidth))
	ratio := fmt.Sprintf("%6s", fmt.Sprintf("%d/%d", result.PassedScenarios, result.TotalScenarios))
	if result.FailedScenarios > 0 {
		ratio = red(ratio)
	} else {
		ratio = green(ratio)
	}
	fmt.Fprintf(w, "  %s %s %7d %6d %6d %6d %10s\n",
		bold(fmt.Sprintf("%-42s", "TOTAL")), ratio,
		total, passed, failed, skipped, duration)
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
	if result.FlakyScenarios > 0 {
		fmt.Fprintf(w, "  %s\n", yellow(fmt.Sprintf("%d scenario(s) passed on retry", result.FlakyScenarios)))
	}
}

// statusCell pads before coloring so escape codes do not skew the columns.
func statusCell(sc core.ScenarioResult) string {
	switch {
	case sc.Status == core.StatusPassed:
		return green(fmt.Sprintf("%6s", "✓ PASS"))
	case sc.Status.IsFailure():
		return red(fmt.Sprintf("%6s", "✗ FAIL"))
	case sc.Status == core.StatusUndefined:
		return yellow(fmt.Sprintf("%6s", "? UNDF"))
	default:
		return cyan(fmt.Sprintf("%6s", "- SKIP"))
	}
}

// formatDuration formats milliseconds to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
