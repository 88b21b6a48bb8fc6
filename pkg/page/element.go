package page

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
)

// Table kinds
const (
	TableHTML = "html"
	TableGrid = "grid"
)

// Default grid selectors
const (
	DefaultGridHeader = `[role="columnheader"]`
	DefaultGridRow    = `[role="row"]`
	DefaultGridCell   = `[role="gridcell"], [role="cell"]`
)

// TableSpec describes how an element's content is read as a table.
type TableSpec struct {
	Kind   string `yaml:"kind" json:"kind"`
	Header string `yaml:"header" json:"header,omitempty"` // grid: header cell selector
	Row    string `yaml:"row" json:"row,omitempty"`       // grid: row selector
	Cell   string `yaml:"cell" json:"cell,omitempty"`     // grid: cell selector within a row
}

// FrameRef is one hop of a frame path.
type FrameRef struct {
	Name     string    `json:"name"`
	Locators []Locator `json:"locators"`
}

// Element is a named, locatable node on a page.
type Element struct {
	Name     string        `json:"name"`
	Page     string        `json:"page"` // Declaring page
	Locators []Locator     `json:"locators"`
	Timeout  time.Duration `json:"timeout,omitempty"`
	Frame    []FrameRef    `json:"frame,omitempty"`
	Table    *TableSpec    `json:"table,omitempty"`
	Line     int           `json:"line,omitempty"` // Line in the page file

	// PageTimeout is the timeout of the page the element was requested from.
	PageTimeout time.Duration `json:"-"`

	frameNames []string
}

// Ref returns "Page.element".
func (e *Element) Ref() string {
	return e.Page + "." + e.Name
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Placeholders returns the distinct placeholder names in locator values,
// in order of first appearance.
func (e *Element) Placeholders() []string {
	seen := map[string]bool{}
	var names []string
	for _, l := range e.Locators {
		for _, m := range placeholderPattern.FindAllStringSubmatch(l.Value, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	return names
}

// IsTemplate reports whether the element needs Bind before lookup.
func (e *Element) IsTemplate() bool {
	return len(e.Placeholders()) > 0
}

// Bind returns a copy with placeholders replaced. {0}, {1}... take args by
// index; named placeholders take the remaining args in order of appearance.
func (e *Element) Bind(args ...string) (*Element, error) {
	named := map[string]string{}
	next := 0
	used := map[int]bool{}
	for _, name := range e.Placeholders() {
		if idx, err := strconv.Atoi(name); err == nil {
			if idx < len(args) {
				named[name] = args[idx]
				used[idx] = true
			}
		}
	}
	for _, name := range e.Placeholders() {
		if _, err := strconv.Atoi(name); err == nil {
			continue
		}
		for next < len(args) && used[next] {
			next++
		}
		if next < len(args) {
			named[name] = args[next]
			used[next] = true
		}
	}
	return e.BindNamed(named)
}

// BindNamed returns a copy with {name} placeholders replaced from values.
// Any placeholder left unbound is an error.
func (e *Element) BindNamed(values map[string]string) (*Element, error) {
	bound := *e
	bound.Locators = make([]Locator, len(e.Locators))
	var missing []string
	for i, l := range e.Locators {
		l.Value = placeholderPattern.ReplaceAllStringFunc(l.Value, func(m string) string {
			name := m[1 : len(m)-1]
			if v, ok := values[name]; ok {
				return v
			}
			missing = append(missing, name)
			return m
		})
		bound.Locators[i] = l
	}
	if len(missing) > 0 {
		return nil, core.ErrInvalidLocator.
			WithMessagef("element %s has unbound placeholders: {%s}", e.Ref(), strings.Join(missing, "}, {")).
			WithDetails(map[string]interface{}{"element": e.Ref()})
	}
	return &bound, nil
}

// Describe is a compact form for logs and reports.
func (e *Element) Describe() string {
	parts := make([]string, len(e.Locators))
	for i, l := range e.Locators {
		parts[i] = l.String()
	}
	return e.Ref() + " [" + strings.Join(parts, ", ") + "]"
}
