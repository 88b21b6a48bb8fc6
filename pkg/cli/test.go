package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/gherkin-runner/pkg/config"
	"github.com/devicelab-dev/gherkin-runner/pkg/executor"
	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
	"github.com/devicelab-dev/gherkin-runner/pkg/page"
	"github.com/devicelab-dev/gherkin-runner/pkg/report"
	"github.com/devicelab-dev/gherkin-runner/pkg/validator"
)

var tagFlags = []cli.Flag{
	&cli.StringSliceFlag{
		Name:  "include-tags",
		Usage: "Only include scenarios with any of these tags",
	},
	&cli.StringSliceFlag{
		Name:  "exclude-tags",
		Usage: "Exclude scenarios with these tags",
	},
}

var testCommand = &cli.Command{
	Name:      "test",
	Usage:     "Run feature files",
	ArgsUsage: "[feature-file-or-folder]...",
	Description: `Run Gherkin scenarios. Without arguments the workspace features
directory is used. A file:line argument runs the scenario at that line.

Reports are generated in the output directory:
  - Default: <reports>/<timestamp>/
  - With --output: <output>/<timestamp>/
  - With --output and --flatten: <output>/ (no timestamp subfolder)

Examples:
  gherkin-runner test
  gherkin-runner test features/login.feature
  gherkin-runner test --include-tags smoke --exclude-tags wip features/
  gherkin-runner --env staging test --retries 2 --concurrency 4 features/
  gherkin-runner test --output ./my-reports --flatten`,
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:  "tags",
			Usage: `godog tag expression, e.g. "@smoke && ~@wip"`,
		},

		// Execution
		&cli.IntFlag{
			Name:  "retries",
			Usage: "Re-run failed scenarios up to N times",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Run N scenarios at once, each with its own session",
		},
		&cli.Int64Flag{
			Name:  "randomize",
			Usage: "Shuffle scenarios with this seed (-1 picks one)",
		},
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "Fail scenarios with undefined or pending steps",
		},
		&cli.BoolFlag{
			Name:  "stop-on-failure",
			Usage: "Stop the run at the first failing scenario",
		},

		// Browser
		&cli.StringFlag{
			Name:  "browser",
			Usage: "Browser name (chrome, firefox, edge, safari)",
		},
		&cli.BoolFlag{
			Name:  "headless",
			Usage: "Run the browser headless",
		},
		&cli.BoolFlag{
			Name:  "update-baselines",
			Usage: "Overwrite image baselines instead of comparing",
		},

		// Output
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for reports (default: workspace reports dir)",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Don't create timestamp subfolder (requires --output)",
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "Console output: pretty, progress, or none for the live step list",
			Value: executor.FormatNone,
		},
		&cli.BoolFlag{
			Name:  "live-html",
			Usage: "Keep report.html current while the run progresses",
		},
		&cli.BoolFlag{
			Name:  "allure",
			Usage: "Also write Allure results to <output>/allure-results",
		},
	}, tagFlags...),
	Action: runTest,
}

// resolveOutputDir determines the output directory based on flags.
// - No --output: <reports>/<timestamp>/
// - --output given: <output>/<timestamp>/
// - --output with --flatten: <output>/
func resolveOutputDir(output, reports string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = reports
	}
	if baseDir == "" {
		baseDir = "./reports"
	}

	if flatten {
		return filepath.Clean(baseDir), nil
	}

	// Create timestamp-based subfolder
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(baseDir, timestamp), nil
}

// workspace is everything a run reads from disk besides feature files.
type workspace struct {
	cfg      *config.Config
	pages    *page.Registry
	accounts *config.Accounts
	data     *config.TestData
}

func loadContent(cfg *config.Config) (*workspace, error) {
	pages, err := page.LoadDir(cfg.Paths.Pages)
	if err != nil {
		return nil, fmt.Errorf("failed to load pages: %w", err)
	}
	accounts, err := config.LoadAccounts(cfg.Paths.Accounts)
	if err != nil {
		return nil, err
	}
	data, err := config.LoadTestData(cfg.Paths.Data)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded %d page(s), %d account(s)", pages.Len(), len(accounts.Aliases()))
	return &workspace{cfg: cfg, pages: pages, accounts: accounts, data: data}, nil
}

// featurePaths returns the command arguments, or the features directory.
func featurePaths(c *cli.Context, cfg *config.Config) []string {
	if c.NArg() > 0 {
		return c.Args().Slice()
	}
	return []string{cfg.Paths.Features}
}

// validatePaths strips file:line suffixes, which godog understands but the
// validator does not.
func validatePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if i := strings.LastIndex(p, ":"); i > 0 && isDigits(p[i+1:]) {
			p = p[:i]
		}
		out = append(out, p)
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// combineTags ANDs the configured godog expression with the one built from
// include/exclude flags.
func combineTags(configured, selected string) string {
	switch {
	case configured == "":
		return selected
	case selected == "":
		return configured
	default:
		return configured + " && " + selected
	}
}

func printValidationErrors(errs []error) {
	fmt.Fprintf(os.Stderr, "\n  %s\n", red(fmt.Sprintf("%d validation error(s):", len(errs))))
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "    %s %v\n", red("✗"), err)
	}
	fmt.Fprintln(os.Stderr)
}

func runTest(c *cli.Context) error {
	cfg, err := loadWorkspace(c)
	if err != nil {
		return err
	}

	outputDir, err := resolveOutputDir(c.String("output"), cfg.Paths.Reports, c.Bool("flatten"))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	initLogger(cfg, outputDir, c.Bool("verbose"))
	defer logger.Close()

	out := c.App.Writer
	printBanner(out)

	logger.Info("=== Test execution started ===")
	logger.Info("Workspace: %s", cfg.Root)
	logger.Info("Output directory: %s", outputDir)
	logger.Info("Environment: %s, target: %s", cfg.Environment, cfg.Target)

	ws, err := loadContent(cfg)
	if err != nil {
		return err
	}

	include := c.StringSlice("include-tags")
	exclude := c.StringSlice("exclude-tags")
	paths := featurePaths(c, cfg)
	res := validator.New(ws.pages, include, exclude).Validate(validatePaths(paths)...)
	if !res.IsValid() {
		printValidationErrors(res.Errors)
		logger.Error("Validation failed with %d error(s)", len(res.Errors))
		return cli.Exit("validation failed", 1)
	}
	if len(res.Scenarios) == 0 {
		return fmt.Errorf("no scenarios found in %s", strings.Join(paths, ", "))
	}
	logger.Info("Validated %d scenario(s) in %d file(s)", len(res.Scenarios), len(res.Files))
	cfg.Run.Tags = combineTags(cfg.Run.Tags, validator.TagExpression(include, exclude))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc := executor.RunnerConfig{
		Workspace:     cfg,
		Pages:         ws.pages,
		Accounts:      ws.accounts,
		Data:          ws.data,
		Scenarios:     res.Scenarios,
		Paths:         paths,
		OutputDir:     outputDir,
		Format:        c.String("format"),
		Output:        out,
		NoColors:      color.NoColor,
		LiveHTML:      c.Bool("live-html"),
		CI:            detectCI(),
		RunnerVersion: Version,
	}
	if rc.Format == executor.FormatNone {
		p := &progress{w: out}
		rc.OnScenarioStart = p.scenarioStart
		rc.OnStepEnd = p.stepEnd
		rc.OnScenarioEnd = p.scenarioEnd
	}

	result, err := executor.New(rc).Run(ctx)
	if err != nil {
		logger.Error("Run failed: %v", err)
		return err
	}
	logger.Info("Run completed: %d passed, %d failed, %d skipped",
		result.PassedScenarios, result.FailedScenarios, result.SkippedScenarios)

	printSummary(out, result)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Reports:")
	fmt.Fprintf(out, "    HTML:     %s\n", filepath.Join(outputDir, "report.html"))
	fmt.Fprintf(out, "    JSON:     %s\n", filepath.Join(outputDir, "report.json"))
	fmt.Fprintf(out, "    JUnit:    %s\n", filepath.Join(outputDir, "junit.xml"))
	fmt.Fprintf(out, "    Cucumber: %s\n", filepath.Join(outputDir, "cucumber.json"))
	if c.Bool("allure") {
		if err := report.GenerateAllure(outputDir); err != nil {
			fmt.Fprintf(out, "  %s failed to write Allure results: %v\n", yellow("⚠"), err)
		} else {
			fmt.Fprintf(out, "    Allure:   %s\n", filepath.Join(outputDir, "allure-results"))
		}
	}
	fmt.Fprintln(out)

	if ctx.Err() != nil {
		return cli.Exit("interrupted", 130)
	}
	if result.Status != report.StatusPassed {
		return cli.Exit("", 1)
	}
	return nil
}
