package steps

import (
	"context"
	"errors"
	"sync"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/webdriver"
)

// fakeSession is a single-document browser keyed by "strategy=value".
type fakeSession struct {
	mu sync.Mutex

	target   string
	matches  map[string][]webdriver.Element
	text     map[webdriver.Element]string
	attrs    map[webdriver.Element]map[string]string
	hidden   map[webdriver.Element]bool
	disabled map[webdriver.Element]bool
	markup   map[webdriver.Element]string

	clicks  []webdriver.Element
	typed   map[webdriver.Element]string
	scripts []string

	url     string
	title   string
	history []string

	window  string
	windows []string
	alert   *string
	alerted []string

	screenshot []byte
	source     string
	closed     int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		target:   "browser",
		matches:  map[string][]webdriver.Element{},
		text:     map[webdriver.Element]string{},
		attrs:    map[webdriver.Element]map[string]string{},
		hidden:   map[webdriver.Element]bool{},
		disabled: map[webdriver.Element]bool{},
		markup:   map[webdriver.Element]string{},
		typed:    map[webdriver.Element]string{},
		window:   "main",
		windows:  []string{"main"},
	}
}

// css registers el under a css selector.
func (s *fakeSession) css(selector string, el webdriver.Element) *fakeSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := webdriver.ByCSS + "=" + selector
	s.matches[key] = append(s.matches[key], el)
	return s
}

func (s *fakeSession) setText(el webdriver.Element, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text[el] = text
}

func (s *fakeSession) openAlert(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alert = &text
}

func (s *fakeSession) clicked() []webdriver.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]webdriver.Element(nil), s.clicks...)
}

func (s *fakeSession) typedInto(el webdriver.Element) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typed[el]
}

func noSuch(code string) error {
	return &webdriver.Error{Code: code, Message: code}
}

func (s *fakeSession) Target() string { return s.target }

func (s *fakeSession) FindElements(_ context.Context, using, value string) ([]webdriver.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]webdriver.Element(nil), s.matches[using+"="+value]...), nil
}

func (s *fakeSession) FindElementsFrom(context.Context, webdriver.Element, string, string) ([]webdriver.Element, error) {
	return nil, nil
}

func (s *fakeSession) SwitchToFrame(_ context.Context, frame interface{}) error {
	if frame == nil {
		return nil
	}
	return noSuch(webdriver.CodeNoSuchFrame)
}

func (s *fakeSession) SwitchToParentFrame(context.Context) error { return nil }

func (s *fakeSession) Click(_ context.Context, el webdriver.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, el)
	return nil
}

func (s *fakeSession) Clear(_ context.Context, el webdriver.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typed[el] = ""
	return nil
}

func (s *fakeSession) SendKeys(_ context.Context, el webdriver.Element, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typed[el] += text
	return nil
}

func (s *fakeSession) MoveTo(context.Context, webdriver.Element) error { return nil }

func (s *fakeSession) DoubleClick(ctx context.Context, el webdriver.Element) error {
	return s.Click(ctx, el)
}

func (s *fakeSession) Text(_ context.Context, el webdriver.Element) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text[el], nil
}

func (s *fakeSession) Attribute(_ context.Context, el webdriver.Element, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs[el][name], nil
}

func (s *fakeSession) TagName(context.Context, webdriver.Element) (string, error) { return "div", nil }

func (s *fakeSession) Rect(context.Context, webdriver.Element) (webdriver.Rect, error) {
	return webdriver.Rect{X: 1, Y: 2, Width: 30, Height: 10}, nil
}

func (s *fakeSession) IsDisplayed(_ context.Context, el webdriver.Element) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.hidden[el], nil
}

func (s *fakeSession) IsEnabled(_ context.Context, el webdriver.Element) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.disabled[el], nil
}

func (s *fakeSession) IsSelected(context.Context, webdriver.Element) (bool, error) { return false, nil }

// ExecuteScript answers outerHTML reads from markup; other scripts are
// recorded and return nil.
func (s *fakeSession) ExecuteScript(_ context.Context, script string, args ...interface{}) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, script)
	if len(args) > 0 {
		if el, ok := args[0].(webdriver.Element); ok {
			if m, ok := s.markup[el]; ok && script == "return arguments[0].outerHTML;" {
				return m, nil
			}
		}
	}
	return nil, nil
}

func (s *fakeSession) ElementScreenshot(context.Context, webdriver.Element) ([]byte, error) {
	return s.Screenshot(context.Background())
}

func (s *fakeSession) Screenshot(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screenshot == nil {
		return nil, errors.New("no screenshot")
	}
	return s.screenshot, nil
}

func (s *fakeSession) Hierarchy(context.Context) ([]byte, error) {
	return []byte(s.source), nil
}

func (s *fakeSession) GetPlatformInfo() *core.PlatformInfo {
	return &core.PlatformInfo{Target: s.target, SessionID: "fake"}
}

func (s *fakeSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) Navigate(_ context.Context, u string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.url != "" {
		s.history = append(s.history, s.url)
	}
	s.url = u
	return nil
}

func (s *fakeSession) CurrentURL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

func (s *fakeSession) Title(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title, nil
}

func (s *fakeSession) Back(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.history); n > 0 {
		s.url = s.history[n-1]
		s.history = s.history[:n-1]
	}
	return nil
}

func (s *fakeSession) Refresh(context.Context) error { return nil }

func (s *fakeSession) WindowHandle(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window, nil
}

func (s *fakeSession) WindowHandles(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.windows...), nil
}

func (s *fakeSession) SwitchToWindow(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.windows {
		if h == handle {
			s.window = handle
			return nil
		}
	}
	return noSuch(webdriver.CodeNoSuchWindow)
}

func (s *fakeSession) CloseWindow(context.Context) error { return nil }

func (s *fakeSession) AlertText(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alert == nil {
		return "", noSuch(webdriver.CodeNoSuchAlert)
	}
	return *s.alert, nil
}

func (s *fakeSession) AcceptAlert(context.Context) error {
	return s.closeAlert("accepted")
}

func (s *fakeSession) DismissAlert(context.Context) error {
	return s.closeAlert("dismissed")
}

func (s *fakeSession) closeAlert(how string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alert == nil {
		return noSuch(webdriver.CodeNoSuchAlert)
	}
	s.alerted = append(s.alerted, how+":"+*s.alert)
	s.alert = nil
	return nil
}

var _ Session = (*fakeSession)(nil)
