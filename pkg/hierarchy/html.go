package hierarchy

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/devicelab-dev/gherkin-runner/pkg/page"
)

var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"head": true, "meta": true, "link": true, "br": true, "path": true,
}

// generatedID matches ids that frameworks generate per render and that
// make poor locators.
var generatedID = regexp.MustCompile(`\d{4,}|^(ember|react|mui|rc)[-_]?\d|^[0-9a-f]{8}-`)

// ParseHTML parses an HTML document starting at <body>.
func ParseHTML(source []byte) (*Tree, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	root := doc.Find("body").First()
	if root.Length() == 0 {
		root = doc.Selection
	}
	tree := &Tree{Kind: KindHTML}
	if goquery.NodeName(root) == "body" {
		tree.Roots = []*Node{htmlNode(root, 0)}
	} else {
		tree.Roots = htmlChildren(root, 0)
	}
	return tree, nil
}

func htmlChildren(s *goquery.Selection, depth int) []*Node {
	var nodes []*Node
	s.Children().Each(func(_ int, child *goquery.Selection) {
		if skipTags[goquery.NodeName(child)] {
			return
		}
		nodes = append(nodes, htmlNode(child, depth))
	})
	return nodes
}

func htmlNode(s *goquery.Selection, depth int) *Node {
	tag := goquery.NodeName(s)
	n := &Node{
		Tag:     tag,
		ID:      s.AttrOr("id", ""),
		Name:    s.AttrOr("name", ""),
		Classes: strings.Fields(s.AttrOr("class", "")),
		Text:    ownText(s),
		Depth:   depth,
		Enabled: !s.Is("[disabled]"),
		Visible: !s.Is("[hidden]") && s.AttrOr("type", "") != "hidden",
	}
	if tag == "input" || tag == "textarea" {
		n.Text = s.AttrOr("value", s.AttrOr("placeholder", ""))
	}
	n.Suggested = suggestHTML(n)
	n.Children = htmlChildren(s, depth+1)
	return n
}

// ownText returns the element's direct text, without descendant text.
func ownText(s *goquery.Selection) string {
	var parts []string
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			if t := collapse(c.Text()); t != "" {
				parts = append(parts, t)
			}
		}
	})
	return strings.Join(parts, " ")
}

func suggestHTML(n *Node) *page.Locator {
	switch {
	case n.ID != "" && !generatedID.MatchString(n.ID):
		return &page.Locator{Type: page.ByID, Value: n.ID}
	case n.Name != "":
		return &page.Locator{Type: page.ByName, Value: n.Name}
	case n.Tag == "a" && n.Text != "":
		return &page.Locator{Type: page.ByLinkText, Value: n.Text}
	case n.Tag == "button" && n.Text != "":
		return &page.Locator{Type: page.ByText, Value: n.Text}
	case len(n.Classes) > 0:
		return &page.Locator{Type: page.ByCSS, Value: n.Tag + "." + strings.Join(n.Classes, ".")}
	}
	return nil
}
