package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
	"github.com/devicelab-dev/gherkin-runner/pkg/validator"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check feature files against the page objects without running them",
	ArgsUsage: "[feature-file-or-folder]...",
	Description: `Parse every feature file, apply tag filters and check that every
page and "Page.element" reference resolves. No session is opened.`,
	Flags:  tagFlags,
	Action: runValidate,
}

func runValidate(c *cli.Context) error {
	cfg, err := loadWorkspace(c)
	if err != nil {
		return err
	}
	initLogger(cfg, "", c.Bool("verbose"))
	defer logger.Close()

	ws, err := loadContent(cfg)
	if err != nil {
		return err
	}

	res := validator.New(ws.pages, c.StringSlice("include-tags"), c.StringSlice("exclude-tags")).
		Validate(validatePaths(featurePaths(c, cfg))...)
	if !res.IsValid() {
		printValidationErrors(res.Errors)
		return cli.Exit("validation failed", 1)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "%s %d scenario(s) in %d file(s), %d page(s)\n",
		green("✓"), len(res.Scenarios), len(res.Files), ws.pages.Len())
	for _, sc := range res.Scenarios {
		fmt.Fprintf(out, "  %s %s\n", sc.Name, gray(sc.Location()))
	}
	return nil
}
