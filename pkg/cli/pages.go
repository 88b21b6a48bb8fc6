package cli

import (
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
	"github.com/devicelab-dev/gherkin-runner/pkg/page"
)

var pagesCommand = &cli.Command{
	Name:      "pages",
	Usage:     "List page objects and their elements",
	ArgsUsage: "[page-name]...",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print as JSON",
		},
	},
	Action: runPages,
}

type pageView struct {
	Name     string        `json:"name"`
	URL      string        `json:"url,omitempty"`
	Extends  string        `json:"extends,omitempty"`
	File     string        `json:"file,omitempty"`
	Elements []elementView `json:"elements"`
}

type elementView struct {
	Name      string         `json:"name"`
	Page      string         `json:"page"`
	Locators  []page.Locator `json:"locators"`
	Frame     []string       `json:"frame,omitempty"`
	Table     string         `json:"table,omitempty"`
	Template  bool           `json:"template,omitempty"`
	Inherited bool           `json:"inherited,omitempty"`
}

func runPages(c *cli.Context) error {
	cfg, err := loadWorkspace(c)
	if err != nil {
		return err
	}
	initLogger(cfg, "", c.Bool("verbose"))
	defer logger.Close()

	registry, err := page.LoadDir(cfg.Paths.Pages)
	if err != nil {
		return fmt.Errorf("failed to load pages: %w", err)
	}

	names := c.Args().Slice()
	if len(names) == 0 {
		names = registry.Names()
	}
	views := make([]pageView, 0, len(names))
	for _, name := range names {
		p, err := registry.Page(name)
		if err != nil {
			return err
		}
		v, err := viewPage(p)
		if err != nil {
			return err
		}
		views = append(views, v)
	}

	if c.Bool("json") {
		data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(views, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.App.Writer, string(data))
		return err
	}
	if len(views) == 0 {
		fmt.Fprintf(c.App.Writer, "No pages in %s\n", cfg.Paths.Pages)
		return nil
	}
	writePages(c.App.Writer, views)
	return nil
}

func viewPage(p *page.Page) (pageView, error) {
	v := pageView{Name: p.Name, URL: p.URL, Extends: p.Extends, File: p.File}
	for _, name := range p.ElementNames() {
		el, err := p.Element(name)
		if err != nil {
			return v, err
		}
		ev := elementView{
			Name:      el.Name,
			Page:      el.Page,
			Locators:  el.Locators,
			Template:  el.IsTemplate(),
			Inherited: !strings.EqualFold(el.Page, p.Name),
		}
		for _, f := range el.Frame {
			ev.Frame = append(ev.Frame, f.Name)
		}
		if el.Table != nil {
			ev.Table = el.Table.Kind
		}
		v.Elements = append(v.Elements, ev)
	}
	return v, nil
}

func writePages(w io.Writer, views []pageView) {
	for i, v := range views {
		if i > 0 {
			fmt.Fprintln(w)
		}
		header := bold(v.Name)
		if v.URL != "" {
			header += " " + cyan(v.URL)
		}
		if v.Extends != "" {
			header += gray(" extends " + v.Extends)
		}
		fmt.Fprintln(w, header)
		for _, el := range v.Elements {
			locs := make([]string, len(el.Locators))
			for j, l := range el.Locators {
				locs[j] = l.String()
			}
			var notes []string
			if el.Inherited {
				notes = append(notes, "from "+el.Page)
			}
			if len(el.Frame) > 0 {
				notes = append(notes, "frame "+strings.Join(el.Frame, " > "))
			}
			if el.Table != "" {
				notes = append(notes, el.Table+" table")
			}
			if el.Template {
				notes = append(notes, "template")
			}
			line := fmt.Sprintf("  %-24s %s", el.Name, strings.Join(locs, ", "))
			if len(notes) > 0 {
				line += gray(" (" + strings.Join(notes, "; ") + ")")
			}
			fmt.Fprintln(w, line)
		}
	}
}
