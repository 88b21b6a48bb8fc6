package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/gherkin-runner/pkg/config"
	"github.com/devicelab-dev/gherkin-runner/pkg/hierarchy"
	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
	"github.com/devicelab-dev/gherkin-runner/pkg/page"
	"github.com/devicelab-dev/gherkin-runner/pkg/session"
)

var hierarchyCommand = &cli.Command{
	Name:  "hierarchy",
	Usage: "Print the element tree of a page for writing locators",
	Description: `Open a session, optionally navigate, and print the current page's
element tree. HTML pages list tag, id, name, classes and a suggested css
locator; WinAppDriver and Appium sources list control type, automation id,
name and a suggested locator.

Examples:
  gherkin-runner hierarchy --page Login
  gherkin-runner hierarchy --url /checkout --compact
  gherkin-runner --target desktop hierarchy --raw > app.xml`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "page",
			Usage: "Navigate to this page object's url first",
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "Navigate to this url (relative to baseUrl) first",
		},
		&cli.BoolFlag{
			Name:  "compact",
			Usage: "Only list nodes that have an id, name or text",
		},
		&cli.IntFlag{
			Name:  "max-text",
			Usage: "Truncate node text to N characters",
			Value: 60,
		},
		&cli.BoolFlag{
			Name:  "raw",
			Usage: "Print the page source unparsed",
		},
	},
	Action: runHierarchy,
}

// sourceSession is the part of a driver session the command needs.
type sourceSession interface {
	Navigate(ctx context.Context, url string) error
	Hierarchy(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

var openSession = func(ctx context.Context, cfg *config.Config) (sourceSession, error) {
	s, err := session.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func runHierarchy(c *cli.Context) error {
	cfg, err := loadWorkspace(c)
	if err != nil {
		return err
	}
	initLogger(cfg, "", c.Bool("verbose"))
	defer logger.Close()

	target, err := navigationTarget(c, cfg)
	if err != nil {
		return err
	}

	ctx := c.Context
	s, err := openSession(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if err := s.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to close session: %v", err)
		}
	}()

	if target != "" {
		logger.Info("Navigating to %s", target)
		if err := s.Navigate(ctx, target); err != nil {
			return fmt.Errorf("failed to navigate to %s: %w", target, err)
		}
	}

	source, err := s.Hierarchy(ctx)
	if err != nil {
		return fmt.Errorf("failed to get page source: %w", err)
	}
	return writeHierarchy(c.App.Writer, source, c.Bool("raw"), hierarchy.WriteOptions{
		Compact: c.Bool("compact"),
		MaxText: c.Int("max-text"),
	})
}

// navigationTarget resolves --page or --url to an absolute url. Desktop
// and native sessions have nothing to navigate to.
func navigationTarget(c *cli.Context, cfg *config.Config) (string, error) {
	name, u := c.String("page"), c.String("url")
	if name != "" && u != "" {
		return "", fmt.Errorf("--page and --url cannot be used together")
	}
	if name == "" && u == "" {
		return "", nil
	}
	if cfg.Target != config.TargetBrowser {
		return "", fmt.Errorf("--page and --url need a browser target, not %q", cfg.Target)
	}
	if name != "" {
		registry, err := page.LoadDir(cfg.Paths.Pages)
		if err != nil {
			return "", fmt.Errorf("failed to load pages: %w", err)
		}
		p, err := registry.Page(name)
		if err != nil {
			return "", err
		}
		u = p.URL
	}
	return cfg.ResolveURL(u), nil
}

func writeHierarchy(w io.Writer, source []byte, raw bool, opts hierarchy.WriteOptions) error {
	if raw {
		_, err := w.Write(source)
		return err
	}
	tree, err := hierarchy.Parse(source)
	if err != nil {
		return fmt.Errorf("failed to parse page source: %w", err)
	}
	logger.Debug("Parsed %d node(s)", tree.Len())
	return tree.Write(w, opts)
}
