package hierarchy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/page"
)

// ParseXML parses a WinAppDriver or Appium page source. The format is
// detected from the root element.
func ParseXML(source []byte) (*Tree, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(source); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("invalid page source: no root element")
	}

	tree := &Tree{Kind: detectKind(root)}
	switch root.Tag {
	case "hierarchy", "AppiumAUT":
		// Wrapper elements carry no attributes of interest.
		for _, child := range root.ChildElements() {
			tree.Roots = append(tree.Roots, nativeNode(child, tree.Kind, 0))
		}
	default:
		tree.Roots = []*Node{nativeNode(root, tree.Kind, 0)}
	}
	return tree, nil
}

func detectKind(root *etree.Element) Kind {
	switch {
	case root.Tag == "hierarchy":
		return KindAndroid
	case root.Tag == "AppiumAUT", strings.HasPrefix(root.Tag, "XCUIElementType"):
		return KindIOS
	}
	return KindWindows
}

func nativeNode(el *etree.Element, kind Kind, depth int) *Node {
	n := &Node{
		Tag:     el.Tag,
		Depth:   depth,
		Enabled: attrBool(el, true, "enabled", "IsEnabled"),
		Visible: attrBool(el, true, "displayed", "visible"),
	}

	switch kind {
	case KindAndroid:
		if c := el.SelectAttrValue("class", ""); c != "" {
			n.Tag = c
		}
		n.ID = el.SelectAttrValue("resource-id", "")
		n.Name = el.SelectAttrValue("content-desc", "")
		n.Text = el.SelectAttrValue("text", el.SelectAttrValue("hint", ""))
		n.Bounds = parseBounds(el.SelectAttrValue("bounds", ""))
	case KindIOS:
		if t := el.SelectAttrValue("type", ""); t != "" {
			n.Tag = t
		}
		n.ID = el.SelectAttrValue("name", "")
		n.Text = el.SelectAttrValue("label", el.SelectAttrValue("value", ""))
		n.Bounds = rectBounds(el)
	default:
		n.ID = el.SelectAttrValue("AutomationId", "")
		n.Name = el.SelectAttrValue("Name", "")
		if c := el.SelectAttrValue("ClassName", ""); c != "" {
			n.Classes = []string{c}
		}
		n.Visible = n.Visible && el.SelectAttrValue("IsOffscreen", "false") != "true"
		n.Bounds = rectBounds(el)
	}
	n.Text = collapse(n.Text)
	n.Suggested = suggestNative(n, kind)

	for _, child := range el.ChildElements() {
		n.Children = append(n.Children, nativeNode(child, kind, depth+1))
	}
	return n
}

func suggestNative(n *Node, kind Kind) *page.Locator {
	switch kind {
	case KindAndroid:
		switch {
		case n.ID != "":
			return &page.Locator{Type: page.ByID, Value: n.ID}
		case n.Name != "":
			return &page.Locator{Type: page.ByAccessibilityID, Value: n.Name}
		case n.Text != "":
			return &page.Locator{Type: page.ByText, Value: n.Text}
		}
	case KindIOS:
		switch {
		case n.ID != "":
			return &page.Locator{Type: page.ByAccessibilityID, Value: n.ID}
		case n.Text != "":
			return &page.Locator{Type: page.ByText, Value: n.Text}
		}
	default:
		switch {
		case n.ID != "":
			return &page.Locator{Type: page.ByAccessibilityID, Value: n.ID}
		case n.Name != "":
			return &page.Locator{Type: page.ByName, Value: n.Name}
		case len(n.Classes) > 0:
			return &page.Locator{Type: page.ByClassName, Value: n.Classes[0]}
		}
	}
	if n.Tag != "" {
		return &page.Locator{Type: page.ByClassName, Value: n.Tag}
	}
	return nil
}

func attrBool(el *etree.Element, def bool, keys ...string) bool {
	for _, k := range keys {
		if a := el.SelectAttr(k); a != nil {
			return strings.EqualFold(a.Value, "true")
		}
	}
	return def
}

// rectBounds reads x/y/width/height attributes.
func rectBounds(el *etree.Element) core.Bounds {
	atoi := func(k string) int {
		v, _ := strconv.Atoi(el.SelectAttrValue(k, "0"))
		return v
	}
	return core.Bounds{X: atoi("x"), Y: atoi("y"), Width: atoi("width"), Height: atoi("height")}
}

// parseBounds parses Android bounds "[x1,y1][x2,y2]".
func parseBounds(s string) core.Bounds {
	s = strings.ReplaceAll(s, "][", ",")
	s = strings.Trim(s, "[]")
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return core.Bounds{}
	}

	x1, _ := strconv.Atoi(parts[0])
	y1, _ := strconv.Atoi(parts[1])
	x2, _ := strconv.Atoi(parts[2])
	y2, _ := strconv.Atoi(parts[3])

	return core.Bounds{
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}
