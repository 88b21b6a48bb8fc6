package page

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"gopkg.in/yaml.v3"
)

// ParseError reports a problem in a page file.
type ParseError struct {
	File    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Reserved element keys that are not locators.
const (
	keyTimeout     = "timeout"
	keyFrame       = "frame"
	keyTable       = "table"
	keyDescription = "description"
)

// Load parses a single page file. The page name defaults to the file name.
func Load(path string) (*Page, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- workspace page file
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}

// Parse parses page YAML. file is used for the default name and errors.
func Parse(file string, data []byte) (*Page, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{File: file, Message: err.Error()}
	}
	p := &Page{
		Name:     strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)),
		File:     file,
		elements: map[string]*Element{},
	}
	if len(doc.Content) == 0 {
		return nil, &ParseError{File: file, Message: "empty page file"}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{File: file, Line: root.Line, Message: "page must be a mapping"}
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		var err error
		switch k.Value {
		case "name":
			p.Name = v.Value
		case "url":
			p.URL = v.Value
		case "extends":
			p.Extends = v.Value
		case "timeout":
			p.Timeout, err = parseDuration(v)
		case "frame":
			p.frameNames, err = parseStringList(v)
		case "elements":
			err = p.parseElements(v)
		default:
			err = fmt.Errorf("unknown page key %q", k.Value)
		}
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				return nil, pe
			}
			return nil, &ParseError{File: file, Line: k.Line, Message: err.Error()}
		}
	}
	if p.Name == "" {
		return nil, &ParseError{File: file, Message: "page name is empty"}
	}
	for _, el := range p.elements {
		el.Page = p.Name
	}
	return p, nil
}

func (p *Page) parseElements(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.New("elements must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if _, dup := p.elements[k.Value]; dup {
			return &ParseError{File: p.File, Line: k.Line, Message: fmt.Sprintf("duplicate element %q", k.Value)}
		}
		el, err := parseElement(k.Value, v)
		if err != nil {
			return &ParseError{File: p.File, Line: v.Line, Message: fmt.Sprintf("element %q: %v", k.Value, err)}
		}
		el.Line = k.Line
		p.elements[k.Value] = el
		p.order = append(p.order, k.Value)
	}
	return nil
}

func parseElement(name string, node *yaml.Node) (*Element, error) {
	el := &Element{Name: name}

	// Shorthand: "submit: //button" is an xpath, anything else css
	if node.Kind == yaml.ScalarNode {
		t := ByCSS
		if strings.HasPrefix(node.Value, "/") || strings.HasPrefix(node.Value, "(") {
			t = ByXPath
		}
		el.Locators = []Locator{{Type: t, Value: node.Value}}
		return el, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, errors.New("must be a locator map")
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		var err error
		switch k.Value {
		case keyTimeout:
			el.Timeout, err = parseDuration(v)
		case keyFrame:
			el.frameNames, err = parseStringList(v)
		case keyTable:
			el.Table, err = parseTable(v)
		case keyDescription:
		default:
			t, ok := ParseLocatorType(k.Value)
			if !ok {
				return nil, fmt.Errorf("unknown locator type %q", k.Value)
			}
			if v.Kind != yaml.ScalarNode || v.Value == "" {
				return nil, fmt.Errorf("%s locator must be a non-empty string", k.Value)
			}
			el.Locators = append(el.Locators, Locator{Type: t, Value: v.Value})
		}
		if err != nil {
			return nil, err
		}
	}
	if len(el.Locators) == 0 {
		return nil, errors.New("no locators")
	}
	return el, nil
}

func parseTable(node *yaml.Node) (*TableSpec, error) {
	spec := &TableSpec{}
	if node.Kind == yaml.ScalarNode {
		spec.Kind = node.Value
	} else if err := node.Decode(spec); err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}
	switch spec.Kind {
	case "", TableHTML:
		spec.Kind = TableHTML
	case TableGrid:
		if spec.Header == "" {
			spec.Header = DefaultGridHeader
		}
		if spec.Row == "" {
			spec.Row = DefaultGridRow
		}
		if spec.Cell == "" {
			spec.Cell = DefaultGridCell
		}
	default:
		return nil, fmt.Errorf("table kind must be %q or %q, got %q", TableHTML, TableGrid, spec.Kind)
	}
	return spec, nil
}

func parseDuration(node *yaml.Node) (time.Duration, error) {
	// Bare numbers are seconds
	var secs float64
	if err := node.Decode(&secs); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(node.Value)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", node.Value)
	}
	return d, nil
}

func parseStringList(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			return nil, nil
		}
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		var out []string
		if err := node.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, errors.New("must be a string or a list of strings")
}

// LoadDir loads every .yaml/.yml file under dir into a registry. All
// problems are reported together.
func LoadDir(dir string) (*Registry, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewRegistry()
		}
		return nil, err
	}
	sort.Strings(files)

	var pages []*Page
	var errs []error
	for _, f := range files {
		p, err := Load(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pages = append(pages, p)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return NewRegistry(pages...)
}

// Registry indexes pages by case-insensitive name.
type Registry struct {
	pages map[string]*Page
}

// NewRegistry validates names and extends chains and links the pages.
func NewRegistry(pages ...*Page) (*Registry, error) {
	r := &Registry{pages: map[string]*Page{}}
	var errs []error
	for _, p := range pages {
		if prev, dup := r.pages[key(p.Name)]; dup {
			errs = append(errs, fmt.Errorf("page %q defined in both %s and %s", p.Name, prev.File, p.File))
			continue
		}
		r.pages[key(p.Name)] = p
		p.registry = r
	}
	for _, p := range r.pages {
		if err := r.checkExtends(p); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

func (r *Registry) checkExtends(p *Page) error {
	seen := map[string]bool{key(p.Name): true}
	path := []string{p.Name}
	cur := p
	for cur.Extends != "" {
		parent, ok := r.pages[key(cur.Extends)]
		if !ok {
			return core.ErrPageNotFound.WithMessagef("page %q extends unknown page %q", cur.Name, cur.Extends)
		}
		path = append(path, parent.Name)
		if seen[key(parent.Name)] {
			return core.ErrInvalidConfig.WithMessagef("page inheritance cycle: %s", strings.Join(path, " -> "))
		}
		seen[key(parent.Name)] = true
		cur = parent
	}
	return nil
}

// Page returns the named page.
func (r *Registry) Page(name string) (*Page, error) {
	if p, ok := r.pages[key(name)]; ok {
		return p, nil
	}
	return nil, core.ErrPageNotFound.
		WithMessagef("page %q is not defined", name).
		WithDetails(map[string]interface{}{"page": name, "available": r.Names()})
}

// Names returns page names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.pages))
	for _, p := range r.pages {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of pages.
func (r *Registry) Len() int {
	return len(r.pages)
}

// Resolve looks up "Page.element", or "element" on current.
func (r *Registry) Resolve(ref string, current *Page) (*Element, error) {
	if idx := strings.Index(ref, "."); idx > 0 {
		if p, ok := r.pages[key(ref[:idx])]; ok {
			return p.Element(ref[idx+1:])
		}
	}
	if current == nil {
		return nil, core.ErrNoCurrentPage.WithDetails(map[string]interface{}{"element": ref})
	}
	return current.Element(ref)
}
