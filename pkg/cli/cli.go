// Package cli provides the command-line interface for gherkin-runner.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/gherkin-runner/pkg/config"
	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "Path to gherkin-runner.yaml (default: searched from the workspace root)",
		EnvVars: []string{"GHERKIN_RUNNER_CONFIG"},
	},
	&cli.StringFlag{
		Name:  "root",
		Usage: "Workspace root (default: $GHERKIN_RUNNER_HOME or nearest directory with gherkin-runner.yaml)",
	},
	&cli.StringFlag{
		Name:  "env",
		Usage: "Environment from the config to run against",
	},
	&cli.StringFlag{
		Name:  "target",
		Usage: "Session target (browser, desktop, appium)",
	},
	&cli.StringFlag{
		Name:  "remote-url",
		Usage: "WebDriver server URL",
	},
	&cli.StringFlag{
		Name:  "base-url",
		Usage: "Base URL that page paths resolve against",
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"GHERKIN_RUNNER_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "gherkin-runner",
		Usage:   "BDD UI test runner for web, Windows desktop and mobile apps",
		Version: Version,
		Description: `gherkin-runner executes Gherkin feature files against W3C WebDriver,
WinAppDriver and Appium sessions using YAML page objects.

Examples:
  gherkin-runner test
  gherkin-runner --env staging test features/checkout.feature
  gherkin-runner validate --include-tags smoke
  gherkin-runner hierarchy --page Login --compact`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				color.NoColor = true
			}
			return nil
		},
		Commands: []*cli.Command{
			testCommand,
			validateCommand,
			pagesCommand,
			hierarchyCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flagKeys maps command-line flags onto config keys. A flag only overrides
// the config file and environment when it is given explicitly.
var flagKeys = []struct {
	flag string
	key  string
}{
	{"target", "target"},
	{"remote-url", "remoteUrl"},
	{"base-url", "baseUrl"},
	{"browser", "browser.name"},
	{"headless", "browser.headless"},
	{"tags", "run.tags"},
	{"retries", "run.retries"},
	{"concurrency", "run.concurrency"},
	{"randomize", "run.randomize"},
	{"strict", "run.strict"},
	{"stop-on-failure", "run.stopOnFailure"},
	{"update-baselines", "image.updateBaselines"},
}

func bindFlags(c *cli.Context, v *viper.Viper) {
	for _, fk := range flagKeys {
		if c.IsSet(fk.flag) {
			v.Set(fk.key, c.Value(fk.flag))
		}
	}
}

// loadWorkspace reads the workspace config with command-line overrides.
func loadWorkspace(c *cli.Context) (*config.Config, error) {
	v := config.NewViper()
	bindFlags(c, v)

	root := c.String("root")
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("invalid --root: %w", err)
		}
		root = abs
	}

	cfg, err := config.LoadWithViper(v, config.LoadOptions{
		File:        c.String("config"),
		Root:        root,
		Environment: c.String("env"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// initLogger points the run log at cfg.Log.File, or at logDir when none is
// configured. Verbose runs log at debug level and mirror to stderr.
func initLogger(cfg *config.Config, logDir string, verbose bool) {
	path := cfg.Log.File
	if path == "" && logDir != "" {
		path = filepath.Join(logDir, "gherkin-runner.log")
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	if err := logger.InitWithOptions(logger.Options{
		Path:       path,
		Level:      level,
		Console:    verbose,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logger: %v\n", err)
	}
}
