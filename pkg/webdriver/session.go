package webdriver

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Session is an open WebDriver session.
type Session struct {
	client       *Client
	ID           string
	Capabilities map[string]interface{}
}

// Delete ends the session.
func (s *Session) Delete(ctx context.Context) error {
	_, err := s.client.do(ctx, http.MethodDelete, s.path(""), nil)
	return err
}

// Client returns the client that opened the session.
func (s *Session) Client() *Client {
	return s.client
}

// Navigation

// Navigate loads url in the current browsing context.
func (s *Session) Navigate(ctx context.Context, u string) error {
	return s.post(ctx, "/url", map[string]interface{}{"url": u}, nil)
}

// CurrentURL returns the current document URL.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := s.get(ctx, "/url", &u)
	return u, err
}

// Title returns the document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var t string
	err := s.get(ctx, "/title", &t)
	return t, err
}

// Back navigates back in history.
func (s *Session) Back(ctx context.Context) error {
	return s.post(ctx, "/back", nil, nil)
}

// Forward navigates forward in history.
func (s *Session) Forward(ctx context.Context) error {
	return s.post(ctx, "/forward", nil, nil)
}

// Refresh reloads the current document.
func (s *Session) Refresh(ctx context.Context) error {
	return s.post(ctx, "/refresh", nil, nil)
}

// Element lookup

// FindElement finds a single element from the document root.
func (s *Session) FindElement(ctx context.Context, strategy, value string) (Element, error) {
	return s.findElement(ctx, "/element", strategy, value)
}

// FindElements finds all matching elements from the document root.
func (s *Session) FindElements(ctx context.Context, strategy, value string) ([]Element, error) {
	return s.findElements(ctx, "/elements", strategy, value)
}

// FindElementFrom finds a single descendant of parent.
func (s *Session) FindElementFrom(ctx context.Context, parent Element, strategy, value string) (Element, error) {
	return s.findElement(ctx, elementPath(parent)+"/element", strategy, value)
}

// FindElementsFrom finds all matching descendants of parent.
func (s *Session) FindElementsFrom(ctx context.Context, parent Element, strategy, value string) ([]Element, error) {
	return s.findElements(ctx, elementPath(parent)+"/elements", strategy, value)
}

func (s *Session) findElement(ctx context.Context, path, strategy, value string) (Element, error) {
	resp, err := s.client.do(ctx, http.MethodPost, s.path(path), map[string]interface{}{
		"using": strategy,
		"value": value,
	})
	if err != nil {
		return "", err
	}
	return decodeElement(resp.Value)
}

func (s *Session) findElements(ctx context.Context, path, strategy, value string) ([]Element, error) {
	var refs []map[string]interface{}
	err := s.post(ctx, path, map[string]interface{}{
		"using": strategy,
		"value": value,
	}, &refs)
	if err != nil {
		return nil, err
	}
	els := make([]Element, 0, len(refs))
	for _, ref := range refs {
		if id := extractElementID(ref); id != "" {
			els = append(els, id)
		}
	}
	return els, nil
}

// ActiveElement returns the currently focused element.
func (s *Session) ActiveElement(ctx context.Context) (Element, error) {
	resp, err := s.client.do(ctx, http.MethodGet, s.path("/element/active"), nil)
	if err != nil {
		return "", err
	}
	return decodeElement(resp.Value)
}

// Element interaction

// Click clicks an element.
func (s *Session) Click(ctx context.Context, el Element) error {
	return s.post(ctx, elementPath(el)+"/click", nil, nil)
}

// Clear clears an editable element.
func (s *Session) Clear(ctx context.Context, el Element) error {
	return s.post(ctx, elementPath(el)+"/clear", nil, nil)
}

// SendKeys types text into an element. Key constants from keys.go may be
// embedded in text.
func (s *Session) SendKeys(ctx context.Context, el Element, text string) error {
	chars := make([]string, 0, len(text))
	for _, r := range text {
		chars = append(chars, string(r))
	}
	return s.post(ctx, elementPath(el)+"/value", map[string]interface{}{
		"text":  text,
		"value": chars, // JSON Wire
	}, nil)
}

// Text returns the rendered text of an element.
func (s *Session) Text(ctx context.Context, el Element) (string, error) {
	var text string
	err := s.get(ctx, elementPath(el)+"/text", &text)
	return text, err
}

// Attribute returns an attribute value. Missing attributes return "".
func (s *Session) Attribute(ctx context.Context, el Element, name string) (string, error) {
	var v interface{}
	if err := s.get(ctx, elementPath(el)+"/attribute/"+url.PathEscape(name), &v); err != nil {
		return "", err
	}
	return stringValue(v), nil
}

// Property returns a DOM property value.
func (s *Session) Property(ctx context.Context, el Element, name string) (interface{}, error) {
	var v interface{}
	err := s.get(ctx, elementPath(el)+"/property/"+url.PathEscape(name), &v)
	return v, err
}

// CSSValue returns a computed style value.
func (s *Session) CSSValue(ctx context.Context, el Element, name string) (string, error) {
	var v string
	err := s.get(ctx, elementPath(el)+"/css/"+url.PathEscape(name), &v)
	return v, err
}

// TagName returns the element tag (control type on desktop).
func (s *Session) TagName(ctx context.Context, el Element) (string, error) {
	var v string
	err := s.get(ctx, elementPath(el)+"/name", &v)
	return v, err
}

// Rect returns the element rectangle.
func (s *Session) Rect(ctx context.Context, el Element) (Rect, error) {
	var r Rect
	err := s.get(ctx, elementPath(el)+"/rect", &r)
	return r, err
}

// IsDisplayed reports element visibility.
func (s *Session) IsDisplayed(ctx context.Context, el Element) (bool, error) {
	var v bool
	err := s.get(ctx, elementPath(el)+"/displayed", &v)
	return v, err
}

// IsEnabled reports whether the element is enabled.
func (s *Session) IsEnabled(ctx context.Context, el Element) (bool, error) {
	var v bool
	err := s.get(ctx, elementPath(el)+"/enabled", &v)
	return v, err
}

// IsSelected reports whether a checkbox, radio or option is selected.
func (s *Session) IsSelected(ctx context.Context, el Element) (bool, error) {
	var v bool
	err := s.get(ctx, elementPath(el)+"/selected", &v)
	return v, err
}

// ElementScreenshot returns a PNG of the element.
func (s *Session) ElementScreenshot(ctx context.Context, el Element) ([]byte, error) {
	resp, err := s.client.do(ctx, http.MethodGet, s.path(elementPath(el)+"/screenshot"), nil)
	if err != nil {
		return nil, err
	}
	return decodeBase64PNG(resp.Value)
}

// Document

// ExecuteScript runs a synchronous script. Element arguments are sent as
// web element references and element results are returned as Element.
func (s *Session) ExecuteScript(ctx context.Context, script string, args ...interface{}) (interface{}, error) {
	wireArgs := make([]interface{}, len(args))
	for i, a := range args {
		wireArgs[i] = toWire(a)
	}
	var result interface{}
	if err := s.post(ctx, "/execute/sync", map[string]interface{}{
		"script": script,
		"args":   wireArgs,
	}, &result); err != nil {
		return nil, err
	}
	return fromWire(result), nil
}

// Source returns the page source (HTML on web, XML on native).
func (s *Session) Source(ctx context.Context) (string, error) {
	var src string
	err := s.get(ctx, "/source", &src)
	return src, err
}

// Screenshot returns a PNG of the viewport.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	resp, err := s.client.do(ctx, http.MethodGet, s.path("/screenshot"), nil)
	if err != nil {
		return nil, err
	}
	return decodeBase64PNG(resp.Value)
}

// Frames and windows

// SwitchToFrame switches into a frame. frame is nil (top document), an
// int index or an Element.
func (s *Session) SwitchToFrame(ctx context.Context, frame interface{}) error {
	var id interface{}
	switch f := frame.(type) {
	case nil:
		id = nil
	case Element:
		id = elementRef(f)
	default:
		id = f
	}
	return s.post(ctx, "/frame", map[string]interface{}{"id": id}, nil)
}

// SwitchToParentFrame switches to the parent browsing context.
func (s *Session) SwitchToParentFrame(ctx context.Context) error {
	return s.post(ctx, "/frame/parent", nil, nil)
}

// WindowHandle returns the current window handle.
func (s *Session) WindowHandle(ctx context.Context) (string, error) {
	var h string
	err := s.get(ctx, "/window", &h)
	return h, err
}

// WindowHandles returns all window handles.
func (s *Session) WindowHandles(ctx context.Context) ([]string, error) {
	var hs []string
	err := s.get(ctx, "/window/handles", &hs)
	return hs, err
}

// SwitchToWindow focuses a window.
func (s *Session) SwitchToWindow(ctx context.Context, handle string) error {
	return s.post(ctx, "/window", map[string]interface{}{
		"handle": handle,
		"name":   handle, // JSON Wire
	}, nil)
}

// CloseWindow closes the current window.
func (s *Session) CloseWindow(ctx context.Context) error {
	_, err := s.client.do(ctx, http.MethodDelete, s.path("/window"), nil)
	return err
}

// WindowRect returns the current window rectangle.
func (s *Session) WindowRect(ctx context.Context) (Rect, error) {
	var r Rect
	err := s.get(ctx, "/window/rect", &r)
	return r, err
}

// SetWindowRect resizes the window. Zero X/Y keep the position.
func (s *Session) SetWindowRect(ctx context.Context, r Rect) error {
	body := map[string]interface{}{"width": r.Width, "height": r.Height}
	if r.X != 0 || r.Y != 0 {
		body["x"] = r.X
		body["y"] = r.Y
	}
	return s.post(ctx, "/window/rect", body, nil)
}

// Maximize maximizes the current window.
func (s *Session) Maximize(ctx context.Context) error {
	return s.post(ctx, "/window/maximize", nil, nil)
}

// Alerts

// AlertText returns the text of the open alert.
func (s *Session) AlertText(ctx context.Context) (string, error) {
	var t string
	err := s.get(ctx, "/alert/text", &t)
	return t, err
}

// AcceptAlert accepts the open alert.
func (s *Session) AcceptAlert(ctx context.Context) error {
	return s.post(ctx, "/alert/accept", nil, nil)
}

// DismissAlert dismisses the open alert.
func (s *Session) DismissAlert(ctx context.Context) error {
	return s.post(ctx, "/alert/dismiss", nil, nil)
}

// SendAlertText types into a prompt.
func (s *Session) SendAlertText(ctx context.Context, text string) error {
	return s.post(ctx, "/alert/text", map[string]interface{}{"text": text}, nil)
}

// Actions

func (s *Session) performPointer(ctx context.Context, actions []map[string]interface{}) error {
	payload := []map[string]interface{}{
		{
			"type":       "pointer",
			"id":         "mouse",
			"parameters": map[string]interface{}{"pointerType": "mouse"},
			"actions":    actions,
		},
	}
	return s.post(ctx, "/actions", map[string]interface{}{"actions": payload}, nil)
}

// MoveTo moves the pointer to the element centre.
func (s *Session) MoveTo(ctx context.Context, el Element) error {
	return s.performPointer(ctx, []map[string]interface{}{
		{"type": "pointerMove", "duration": 0, "x": 0, "y": 0, "origin": elementRef(el)},
	})
}

// DoubleClick double clicks the element centre.
func (s *Session) DoubleClick(ctx context.Context, el Element) error {
	return s.performPointer(ctx, []map[string]interface{}{
		{"type": "pointerMove", "duration": 0, "x": 0, "y": 0, "origin": elementRef(el)},
		{"type": "pointerDown", "button": 0},
		{"type": "pointerUp", "button": 0},
		{"type": "pause", "duration": 50},
		{"type": "pointerDown", "button": 0},
		{"type": "pointerUp", "button": 0},
	})
}

// ReleaseActions releases all pressed keys and buttons.
func (s *Session) ReleaseActions(ctx context.Context) error {
	_, err := s.client.do(ctx, http.MethodDelete, s.path("/actions"), nil)
	return err
}

// SetTimeouts sets the session timeouts.
func (s *Session) SetTimeouts(ctx context.Context, t Timeouts) error {
	body := map[string]interface{}{"implicit": t.Implicit.Milliseconds()}
	if t.PageLoad > 0 {
		body["pageLoad"] = t.PageLoad.Milliseconds()
	}
	if t.Script > 0 {
		body["script"] = t.Script.Milliseconds()
	}
	return s.post(ctx, "/timeouts", body, nil)
}

// HTTP Helpers

func (s *Session) path(suffix string) string {
	return "/session/" + s.ID + suffix
}

func elementPath(el Element) string {
	return "/element/" + url.PathEscape(string(el))
}

func (s *Session) get(ctx context.Context, path string, out interface{}) error {
	resp, err := s.client.do(ctx, http.MethodGet, s.path(path), nil)
	if err != nil {
		return err
	}
	return decodeValue(resp.Value, out)
}

func (s *Session) post(ctx context.Context, path string, body, out interface{}) error {
	resp, err := s.client.do(ctx, http.MethodPost, s.path(path), body)
	if err != nil {
		return err
	}
	return decodeValue(resp.Value, out)
}

func toWire(v interface{}) interface{} {
	switch val := v.(type) {
	case Element:
		return elementRef(val)
	case []Element:
		out := make([]interface{}, len(val))
		for i, el := range val {
			out[i] = elementRef(el)
		}
		return out
	default:
		return v
	}
}

func fromWire(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if id := extractElementID(val); id != "" && len(val) <= 2 {
			return id
		}
		for k, item := range val {
			val[k] = fromWire(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = fromWire(item)
		}
		return val
	default:
		return v
	}
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}
