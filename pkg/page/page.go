// Package page loads YAML page objects: named pages with ordered locator
// maps per element, inheritance through extends, and optional frame paths.
package page

import (
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
)

// Page is a parsed page object.
type Page struct {
	Name    string        `json:"name"`
	URL     string        `json:"url,omitempty"`
	Extends string        `json:"extends,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
	File    string        `json:"file,omitempty"`

	frameNames []string
	elements   map[string]*Element
	order      []string
	registry   *Registry
}

// ElementNames returns the elements visible on the page (own first, then
// inherited), in declaration order.
func (p *Page) ElementNames() []string {
	var names []string
	seen := map[string]bool{}
	for _, pg := range p.chain() {
		for _, name := range pg.order {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// OwnElementNames returns only the elements declared in this page's file.
func (p *Page) OwnElementNames() []string {
	return append([]string(nil), p.order...)
}

// HasElement reports whether name resolves on the page.
func (p *Page) HasElement(name string) bool {
	for _, pg := range p.chain() {
		if _, ok := pg.elements[name]; ok {
			return true
		}
	}
	return false
}

// Element resolves name through the extends chain. The returned element is
// a copy with its frame path resolved and the requesting page's timeout set.
func (p *Page) Element(name string) (*Element, error) {
	for _, pg := range p.chain() {
		el, ok := pg.elements[name]
		if !ok {
			continue
		}
		resolved := *el
		resolved.Locators = append([]Locator(nil), el.Locators...)
		resolved.PageTimeout = p.effectiveTimeout()

		frames, err := pg.framePath(el)
		if err != nil {
			return nil, err
		}
		resolved.Frame = frames
		return &resolved, nil
	}
	return nil, core.ErrElementNotDefined.
		WithMessagef("element %q is not defined on page %q", name, p.Name).
		WithDetails(map[string]interface{}{"page": p.Name, "element": name, "available": p.ElementNames()})
}

// chain returns p followed by its ancestors. Cycles are rejected when the
// registry is built, so the walk terminates.
func (p *Page) chain() []*Page {
	pages := []*Page{p}
	cur := p
	for cur.Extends != "" && cur.registry != nil {
		parent, ok := cur.registry.pages[key(cur.Extends)]
		if !ok {
			break
		}
		pages = append(pages, parent)
		cur = parent
	}
	return pages
}

func (p *Page) effectiveTimeout() time.Duration {
	for _, pg := range p.chain() {
		if pg.Timeout > 0 {
			return pg.Timeout
		}
	}
	return 0
}

// framePath resolves the element's frame names (else the declaring page's)
// into locators. A name that is an element on this page uses its locators;
// anything else is treated as a frame name/id or CSS selector.
func (p *Page) framePath(el *Element) ([]FrameRef, error) {
	names := el.frameNames
	if len(names) == 0 {
		names = p.frameNames
	}
	if len(names) == 0 {
		return nil, nil
	}

	refs := make([]FrameRef, 0, len(names))
	for _, name := range names {
		if name == el.Name {
			return nil, core.ErrInvalidLocator.WithMessagef("element %s lists itself as its frame", el.Ref())
		}
		if frameEl, ok := p.lookupRaw(name); ok {
			refs = append(refs, FrameRef{Name: name, Locators: frameEl.Locators})
			continue
		}
		refs = append(refs, FrameRef{Name: name, Locators: rawFrameLocators(name)})
	}
	return refs, nil
}

func (p *Page) lookupRaw(name string) (*Element, bool) {
	for _, pg := range p.chain() {
		if el, ok := pg.elements[name]; ok {
			return el, true
		}
	}
	return nil, false
}

func rawFrameLocators(name string) []Locator {
	if strings.ContainsAny(name, "[.#> :") {
		return []Locator{{Type: ByCSS, Value: name}}
	}
	q := cssString(name)
	sel := fmt.Sprintf(`iframe[name=%[1]s], iframe[id=%[1]s], frame[name=%[1]s], frame[id=%[1]s]`, q)
	return []Locator{{Type: ByCSS, Value: sel}}
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
