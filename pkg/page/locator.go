package page

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/webdriver"
)

// LocatorType is a page-object locator key.
type LocatorType string

// Locator types
const (
	ByID              LocatorType = "id"
	ByName            LocatorType = "name"
	ByCSS             LocatorType = "css"
	ByXPath           LocatorType = "xpath"
	ByClassName       LocatorType = "className"
	ByTagName         LocatorType = "tagName"
	ByLinkText        LocatorType = "linkText"
	ByPartialLinkText LocatorType = "partialLinkText"
	ByAccessibilityID LocatorType = "accessibilityId"
	ByText            LocatorType = "text"
)

var locatorTypes = map[string]LocatorType{
	"id":              ByID,
	"name":            ByName,
	"css":             ByCSS,
	"xpath":           ByXPath,
	"classname":       ByClassName,
	"class":           ByClassName,
	"tagname":         ByTagName,
	"tag":             ByTagName,
	"linktext":        ByLinkText,
	"partiallinktext": ByPartialLinkText,
	"accessibilityid": ByAccessibilityID,
	"text":            ByText,
}

// ParseLocatorType maps a YAML key to a locator type. Keys are matched
// case-insensitively.
func ParseLocatorType(key string) (LocatorType, bool) {
	t, ok := locatorTypes[strings.ToLower(key)]
	return t, ok
}

// Platform selects how locators translate to WebDriver strategies.
type Platform string

// Platforms
const (
	PlatformWeb     Platform = "web"
	PlatformDesktop Platform = "desktop"
	PlatformMobile  Platform = "mobile"
)

// Locator is one (type, value) entry of an element's locator map.
type Locator struct {
	Type  LocatorType `json:"type"`
	Value string      `json:"value"`
}

func (l Locator) String() string {
	return string(l.Type) + "=" + l.Value
}

// Strategy translates the locator into a W3C strategy and selector.
func (l Locator) Strategy(platform Platform) (string, string, error) {
	if l.Value == "" {
		return "", "", core.ErrInvalidLocator.WithMessagef("empty %s locator", l.Type)
	}
	if platform == PlatformWeb {
		return l.webStrategy()
	}
	return l.nativeStrategy(platform)
}

func (l Locator) webStrategy() (string, string, error) {
	switch l.Type {
	case ByID:
		return webdriver.ByCSS, `[id=` + cssString(l.Value) + `]`, nil
	case ByName:
		return webdriver.ByCSS, `[name=` + cssString(l.Value) + `]`, nil
	case ByCSS:
		return webdriver.ByCSS, l.Value, nil
	case ByXPath:
		return webdriver.ByXPath, l.Value, nil
	case ByClassName:
		var b strings.Builder
		for _, cls := range strings.Fields(l.Value) {
			b.WriteString("." + cssIdent(cls))
		}
		return webdriver.ByCSS, b.String(), nil
	case ByTagName:
		return webdriver.ByCSS, l.Value, nil
	case ByLinkText:
		return webdriver.ByLinkText, l.Value, nil
	case ByPartialLinkText:
		return webdriver.ByPartialLinkText, l.Value, nil
	case ByAccessibilityID:
		return webdriver.ByCSS, `[aria-label=` + cssString(l.Value) + `]`, nil
	case ByText:
		return webdriver.ByXPath, `//*[text()[contains(normalize-space(.), ` + XPathLiteral(l.Value) + `)]]`, nil
	}
	return "", "", core.ErrInvalidLocator.WithMessagef("unknown locator type %q", l.Type)
}

func (l Locator) nativeStrategy(platform Platform) (string, string, error) {
	switch l.Type {
	case ByID:
		return webdriver.ByID, l.Value, nil
	case ByName:
		return webdriver.ByName, l.Value, nil
	case ByAccessibilityID:
		return webdriver.ByAccessibilityID, l.Value, nil
	case ByClassName:
		return webdriver.ByClassName, l.Value, nil
	case ByTagName:
		return webdriver.ByTagName, l.Value, nil
	case ByXPath:
		return webdriver.ByXPath, l.Value, nil
	case ByText:
		lit := XPathLiteral(l.Value)
		return webdriver.ByXPath, `//*[@Name=` + lit + ` or @text=` + lit + ` or @label=` + lit + `]`, nil
	case ByCSS, ByLinkText, ByPartialLinkText:
		return "", "", core.ErrInvalidLocator.WithMessagef("%s locators are not supported on %s", l.Type, platform)
	}
	return "", "", core.ErrInvalidLocator.WithMessagef("unknown locator type %q", l.Type)
}

// XPathLiteral quotes s for use in an XPath expression.
func XPathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

func cssString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func cssIdent(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '-' || r == '_' || r >= 0x80,
			r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				fmt.Fprintf(&b, `\3%c `, r)
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteRune('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}
