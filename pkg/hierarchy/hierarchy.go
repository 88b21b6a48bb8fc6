// Package hierarchy turns a page source into an element tree with suggested
// page-object locators. HTML comes from browsers; XML comes from
// WinAppDriver and Appium.
package hierarchy

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/page"
)

// Kind identifies the page source format.
type Kind string

// Source kinds
const (
	KindHTML    Kind = "html"
	KindWindows Kind = "windows"
	KindAndroid Kind = "android"
	KindIOS     Kind = "ios"
)

// Node is one element of the tree.
type Node struct {
	Tag      string // HTML tag or native control type
	ID       string // id, AutomationId, resource-id or accessibility identifier
	Name     string
	Classes  []string
	Text     string
	Bounds   core.Bounds
	Enabled  bool
	Visible  bool
	Depth    int
	Children []*Node

	// Suggested is the most specific locator for the node, if any.
	Suggested *page.Locator
}

// Tree is a parsed page source.
type Tree struct {
	Kind  Kind
	Roots []*Node
}

// Parse detects the source format and parses it.
func Parse(source []byte) (*Tree, error) {
	if looksLikeHTML(source) {
		return ParseHTML(source)
	}
	tree, err := ParseXML(source)
	if err != nil {
		return ParseHTML(source)
	}
	return tree, nil
}

func looksLikeHTML(source []byte) bool {
	head := strings.ToLower(string(source[:min(len(source), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

// Walk calls fn for every node in document order. Returning false skips
// the node's children.
func (t *Tree) Walk(fn func(*Node) bool) {
	var walk func([]*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			if fn(n) {
				walk(n.Children)
			}
		}
	}
	walk(t.Roots)
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	n := 0
	t.Walk(func(*Node) bool { n++; return true })
	return n
}

// WriteOptions controls Write.
type WriteOptions struct {
	// Compact prints only nodes with an id, name or text locator.
	Compact bool
	// MaxText truncates node text. Zero means 60 characters.
	MaxText int
}

// Write prints the tree, one node per line, indented by depth.
func (t *Tree) Write(w io.Writer, opts WriteOptions) error {
	if opts.MaxText <= 0 {
		opts.MaxText = 60
	}
	var err error
	t.Walk(func(n *Node) bool {
		if err != nil {
			return false
		}
		if opts.Compact && !n.identifiable() {
			return true
		}
		indent := strings.Repeat("  ", n.Depth)
		if opts.Compact {
			indent = ""
		}
		_, err = fmt.Fprintf(w, "%s%s\n", indent, n.describe(opts.MaxText))
		return true
	})
	return err
}

func (n *Node) identifiable() bool {
	if n.Suggested == nil {
		return false
	}
	switch n.Suggested.Type {
	case page.ByCSS, page.ByClassName, page.ByTagName:
		return false
	}
	return true
}

func (n *Node) describe(maxText int) string {
	var b strings.Builder
	b.WriteString(n.Tag)
	if n.ID != "" {
		b.WriteString("#" + n.ID)
	}
	for _, c := range n.Classes {
		b.WriteString("." + c)
	}
	if n.Name != "" {
		fmt.Fprintf(&b, " name=%q", n.Name)
	}
	if n.Text != "" {
		fmt.Fprintf(&b, " %q", truncate(n.Text, maxText))
	}
	if !n.Bounds.IsEmpty() {
		fmt.Fprintf(&b, " [%d,%d %dx%d]", n.Bounds.X, n.Bounds.Y, n.Bounds.Width, n.Bounds.Height)
	}
	if !n.Enabled {
		b.WriteString(" (disabled)")
	}
	if n.Suggested != nil {
		fmt.Fprintf(&b, "  => %s: %s", n.Suggested.Type, n.Suggested.Value)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
