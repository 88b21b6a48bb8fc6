package element

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
	"github.com/devicelab-dev/gherkin-runner/pkg/page"
	"github.com/devicelab-dev/gherkin-runner/pkg/webdriver"
)

// DefaultStaleRetries is how often an action re-resolves a stale element.
const DefaultStaleRetries = 3

const (
	scriptScrollIntoView = `arguments[0].scrollIntoView({block: "center", inline: "center"});`
	scriptClick          = `arguments[0].click();`

	scriptSetValue = `var el = arguments[0];
el.focus && el.focus();
var proto = el.tagName === "TEXTAREA" ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
var desc = Object.getOwnPropertyDescriptor(proto, "value");
if (desc && desc.set && (el instanceof HTMLInputElement || el instanceof HTMLTextAreaElement)) { desc.set.call(el, arguments[1]); } else if ("value" in el) { el.value = arguments[1]; } else { el.textContent = arguments[1]; }
el.dispatchEvent(new Event("input", {bubbles: true}));
el.dispatchEvent(new Event("change", {bubbles: true}));`

	scriptText      = `var el = arguments[0]; return ("value" in el && el.tagName !== "SELECT" && el.tagName !== "BUTTON") ? String(el.value) : (el.textContent || "");`
	scriptHover     = `arguments[0].dispatchEvent(new MouseEvent("mouseover", {bubbles: true})); arguments[0].dispatchEvent(new MouseEvent("mouseenter", {bubbles: false}));`
	scriptDblClick  = `arguments[0].dispatchEvent(new MouseEvent("dblclick", {bubbles: true, cancelable: true}));`
	scriptOuterHTML = `return arguments[0].outerHTML;`

	scriptSelectText = `var s = arguments[0], want = arguments[1].trim();
for (var i = 0; i < s.options.length; i++) {
  if (s.options[i].text.trim() === want) { s.selectedIndex = i; s.dispatchEvent(new Event("change", {bubbles: true})); return true; }
}
return false;`
)

// Element is an action handle for a page-object element. It holds no node
// reference across calls; each action resolves the element again.
type Element struct {
	f   *Finder
	def *page.Element
}

// Element returns an action handle for def.
func (f *Finder) Element(def *page.Element) *Element {
	return &Element{f: f, def: def}
}

// Def returns the element definition.
func (e *Element) Def() *page.Element {
	return e.def
}

// act waits for cond, runs fn on the located node, and re-resolves when the
// node went stale in between.
func (e *Element) act(ctx context.Context, cond Condition, fn func(loc *Located) error) error {
	var err error
	for attempt := 0; attempt <= DefaultStaleRetries; attempt++ {
		var loc *Located
		loc, err = e.f.Wait(ctx, e.def, cond)
		if err != nil {
			return err
		}
		err = fn(loc)
		if err == nil || !webdriver.IsStale(err) {
			return err
		}
		logger.Debug("%s went stale, re-resolving (attempt %d)", e.def.Ref(), attempt+1)
	}
	return core.ErrElementNotFound.
		WithMessagef("element %s kept going stale", e.def.Ref()).
		WithCause(err)
}

func (e *Element) script(ctx context.Context, js string, loc *Located, args ...interface{}) (interface{}, error) {
	all := append([]interface{}{loc.ID}, args...)
	out, err := e.f.remote.ExecuteScript(ctx, js, all...)
	if err != nil && !webdriver.IsStale(err) {
		return nil, core.ErrScript.WithMessagef("script on %s failed", e.def.Ref()).WithCause(err)
	}
	return out, err
}

// Click clicks the element. A click that the browser refuses is retried
// after scrolling the element into view, then dispatched through script.
func (e *Element) Click(ctx context.Context) error {
	err := e.act(ctx, Clickable(), func(loc *Located) error {
		err := e.f.remote.Click(ctx, loc.ID)
		if err == nil || !webdriver.IsNotInteractable(err) || !e.f.web() {
			return err
		}
		logger.Debug("Click on %s refused (%v), scrolling into view", e.def.Ref(), err)
		if _, serr := e.script(ctx, scriptScrollIntoView, loc); serr != nil {
			return serr
		}
		if err = e.f.remote.Click(ctx, loc.ID); err == nil || !webdriver.IsNotInteractable(err) {
			return err
		}
		logger.Debug("Click on %s refused again, using script click", e.def.Ref())
		_, err = e.script(ctx, scriptClick, loc)
		return err
	})
	if err != nil && e.f.web() && (errors.Is(err, core.ErrElementNotVisible) || errors.Is(err, core.ErrElementState)) {
		// Present but never clickable: covered or styled invisible.
		return e.scriptFallback(ctx, "click", scriptClick)
	}
	return err
}

// DoubleClick double-clicks the element.
func (e *Element) DoubleClick(ctx context.Context) error {
	return e.act(ctx, Clickable(), func(loc *Located) error {
		err := e.f.remote.DoubleClick(ctx, loc.ID)
		if err == nil || !e.f.web() || !webdriver.IsNotInteractable(err) {
			return err
		}
		_, err = e.script(ctx, scriptDblClick, loc)
		return err
	})
}

// Hover moves the pointer over the element.
func (e *Element) Hover(ctx context.Context) error {
	return e.act(ctx, Visible(), func(loc *Located) error {
		err := e.f.remote.MoveTo(ctx, loc.ID)
		if err == nil || !e.f.web() || !webdriver.IsNotInteractable(err) {
			return err
		}
		_, err = e.script(ctx, scriptHover, loc)
		return err
	})
}

// Type replaces the element's content with text.
func (e *Element) Type(ctx context.Context, text string) error {
	return e.act(ctx, Visible(), func(loc *Located) error {
		err := e.f.remote.Clear(ctx, loc.ID)
		if err == nil {
			err = e.f.remote.SendKeys(ctx, loc.ID, text)
		}
		if err == nil || !e.f.web() || webdriver.IsStale(err) {
			return err
		}
		logger.Debug("Typing into %s failed (%v), setting value by script", e.def.Ref(), err)
		_, err = e.script(ctx, scriptSetValue, loc, text)
		return err
	})
}

// Clear empties the element.
func (e *Element) Clear(ctx context.Context) error {
	return e.act(ctx, Visible(), func(loc *Located) error {
		err := e.f.remote.Clear(ctx, loc.ID)
		if err == nil || !e.f.web() || webdriver.IsStale(err) {
			return err
		}
		_, err = e.script(ctx, scriptSetValue, loc, "")
		return err
	})
}

// PressKey sends a named key or chord such as "ENTER" or "CTRL+A".
func (e *Element) PressKey(ctx context.Context, key string) error {
	seq, ok := webdriver.KeyByName(key)
	if !ok {
		return core.ErrInvalidConfig.WithMessagef("unknown key %q", key)
	}
	return e.act(ctx, Visible(), func(loc *Located) error {
		return e.f.remote.SendKeys(ctx, loc.ID, seq)
	})
}

// Select picks the option with visible text option.
func (e *Element) Select(ctx context.Context, option string) error {
	return e.act(ctx, Clickable(), func(loc *Located) error {
		if !e.f.web() {
			return e.selectNative(ctx, loc, option)
		}
		xpath := fmt.Sprintf(".//option[normalize-space(.)=%s]", page.XPathLiteral(strings.TrimSpace(option)))
		opts, err := e.f.remote.FindElementsFrom(ctx, loc.ID, webdriver.ByXPath, xpath)
		if err != nil && !webdriver.IsNoSuchElement(err) {
			return err
		}
		if len(opts) > 0 {
			if err := e.f.remote.Click(ctx, opts[0]); err == nil || !webdriver.IsNotInteractable(err) {
				return err
			}
		}
		out, err := e.script(ctx, scriptSelectText, loc, option)
		if err != nil {
			return err
		}
		if ok, _ := out.(bool); !ok {
			return core.ErrElementNotFound.
				WithMessagef("option %q not found in %s", option, e.def.Ref()).
				WithDetails(map[string]interface{}{"element": e.def.Ref(), "option": option})
		}
		return nil
	})
}

// selectNative opens a combo box and clicks the list item named option.
func (e *Element) selectNative(ctx context.Context, loc *Located, option string) error {
	if err := e.f.remote.Click(ctx, loc.ID); err != nil {
		return err
	}
	xpath := fmt.Sprintf("//*[@Name=%s or @text=%s]", page.XPathLiteral(option), page.XPathLiteral(option))
	items, err := e.f.remote.FindElements(ctx, webdriver.ByXPath, xpath)
	if err != nil && !webdriver.IsNoSuchElement(err) {
		return err
	}
	if len(items) == 0 {
		return core.ErrElementNotFound.WithMessagef("option %q not found in %s", option, e.def.Ref())
	}
	return e.f.remote.Click(ctx, items[0])
}

// Text returns the element's visible text. Inputs and hidden nodes fall
// back to their value or textContent.
func (e *Element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.act(ctx, Present(), func(loc *Located) error {
		var err error
		text, err = e.f.readText(ctx, loc)
		return err
	})
	return text, err
}

func (f *Finder) readText(ctx context.Context, loc *Located) (string, error) {
	text, err := f.remote.Text(ctx, loc.ID)
	if err != nil && webdriver.IsStale(err) {
		return "", err
	}
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if !f.web() {
		name, aerr := f.remote.Attribute(ctx, loc.ID, "Name")
		if aerr != nil {
			if err != nil {
				return "", err
			}
			return text, nil
		}
		return name, nil
	}
	out, serr := f.remote.ExecuteScript(ctx, scriptText, loc.ID)
	if serr != nil {
		if err != nil {
			return "", err
		}
		return text, nil
	}
	if s, ok := out.(string); ok {
		return strings.TrimSpace(s), nil
	}
	return text, nil
}

// Attribute returns the named attribute.
func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	var value string
	err := e.act(ctx, Present(), func(loc *Located) error {
		var err error
		value, err = e.f.remote.Attribute(ctx, loc.ID, name)
		return err
	})
	return value, err
}

// IsDisplayed reports whether the element is present and displayed.
// It does not wait.
func (e *Element) IsDisplayed(ctx context.Context) (bool, error) {
	loc, err := e.f.Find(ctx, e.def)
	if errors.Is(err, core.ErrElementNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.f.remote.IsDisplayed(ctx, loc.ID)
}

// IsEnabled reports whether the element accepts input.
func (e *Element) IsEnabled(ctx context.Context) (bool, error) {
	var ok bool
	err := e.act(ctx, Present(), func(loc *Located) error {
		var err error
		ok, err = e.f.remote.IsEnabled(ctx, loc.ID)
		return err
	})
	return ok, err
}

// IsSelected reports whether the element is selected or checked.
func (e *Element) IsSelected(ctx context.Context) (bool, error) {
	var ok bool
	err := e.act(ctx, Present(), func(loc *Located) error {
		var err error
		ok, err = e.f.remote.IsSelected(ctx, loc.ID)
		return err
	})
	return ok, err
}

// WaitFor waits until the element satisfies cond.
func (e *Element) WaitFor(ctx context.Context, cond Condition) error {
	_, err := e.f.Wait(ctx, e.def, cond)
	return err
}

// Info returns a snapshot of the element's state.
func (e *Element) Info(ctx context.Context) (*core.ElementInfo, error) {
	var info *core.ElementInfo
	err := e.act(ctx, Present(), func(loc *Located) error {
		rect, err := e.f.remote.Rect(ctx, loc.ID)
		if err != nil {
			return err
		}
		text, err := e.f.readText(ctx, loc)
		if err != nil {
			return err
		}
		visible, err := e.f.remote.IsDisplayed(ctx, loc.ID)
		if err != nil {
			return err
		}
		enabled, err := e.f.remote.IsEnabled(ctx, loc.ID)
		if err != nil {
			return err
		}
		tag, _ := e.f.remote.TagName(ctx, loc.ID)
		info = &core.ElementInfo{
			ID:      string(loc.ID),
			Text:    text,
			Tag:     tag,
			Bounds:  rect.Bounds(),
			Visible: visible,
			Enabled: enabled,
			Locator: loc.Locator.String(),
			Frame:   loc.FramePath,
			Name:    e.def.Ref(),
		}
		return nil
	})
	return info, err
}

// Screenshot captures the element as PNG.
func (e *Element) Screenshot(ctx context.Context) ([]byte, error) {
	var data []byte
	err := e.act(ctx, Visible(), func(loc *Located) error {
		var err error
		data, err = e.f.remote.ElementScreenshot(ctx, loc.ID)
		return err
	})
	return data, err
}

// OuterHTML returns the element's markup.
func (e *Element) OuterHTML(ctx context.Context) (string, error) {
	if !e.f.web() {
		return "", core.ErrInvalidLocator.WithMessagef("%s: markup is only available on web targets", e.def.Ref())
	}
	var markup string
	err := e.act(ctx, Present(), func(loc *Located) error {
		out, err := e.script(ctx, scriptOuterHTML, loc)
		if err != nil {
			return err
		}
		markup, _ = out.(string)
		return nil
	})
	return markup, err
}

func (e *Element) scriptFallback(ctx context.Context, action, js string) error {
	logger.Debug("%s on %s: element never became interactable, using script", action, e.def.Ref())
	return e.act(ctx, Present(), func(loc *Located) error {
		_, err := e.script(ctx, js, loc)
		return err
	})
}
