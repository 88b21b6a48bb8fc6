package executor

import (
	"context"
	"errors"
	"sync"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/steps"
	"github.com/devicelab-dev/gherkin-runner/pkg/webdriver"
)

// fakeBrowser is a session over a fixed set of css selectors.
type fakeBrowser struct {
	mu       sync.Mutex
	elements map[string]webdriver.Element
	text     map[webdriver.Element]string
	url      string
	shot     []byte
	source   string
	closed   bool
}

func (b *fakeBrowser) Target() string { return "browser" }

func (b *fakeBrowser) FindElements(_ context.Context, using, value string) ([]webdriver.Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if using != webdriver.ByCSS {
		return nil, nil
	}
	if el, ok := b.elements[value]; ok {
		return []webdriver.Element{el}, nil
	}
	return nil, nil
}

func (b *fakeBrowser) FindElementsFrom(context.Context, webdriver.Element, string, string) ([]webdriver.Element, error) {
	return nil, nil
}

func (b *fakeBrowser) SwitchToFrame(_ context.Context, frame interface{}) error {
	if frame == nil {
		return nil
	}
	return &webdriver.Error{Code: webdriver.CodeNoSuchFrame}
}

func (b *fakeBrowser) SwitchToParentFrame(context.Context) error                 { return nil }
func (b *fakeBrowser) Click(context.Context, webdriver.Element) error            { return nil }
func (b *fakeBrowser) Clear(context.Context, webdriver.Element) error            { return nil }
func (b *fakeBrowser) SendKeys(context.Context, webdriver.Element, string) error { return nil }
func (b *fakeBrowser) MoveTo(context.Context, webdriver.Element) error           { return nil }
func (b *fakeBrowser) DoubleClick(context.Context, webdriver.Element) error      { return nil }

func (b *fakeBrowser) Text(_ context.Context, el webdriver.Element) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text[el], nil
}

func (b *fakeBrowser) Attribute(context.Context, webdriver.Element, string) (string, error) {
	return "", nil
}

func (b *fakeBrowser) TagName(context.Context, webdriver.Element) (string, error) { return "div", nil }

func (b *fakeBrowser) Rect(context.Context, webdriver.Element) (webdriver.Rect, error) {
	return webdriver.Rect{X: 4, Y: 8, Width: 120, Height: 24}, nil
}

func (b *fakeBrowser) IsDisplayed(context.Context, webdriver.Element) (bool, error) { return true, nil }
func (b *fakeBrowser) IsEnabled(context.Context, webdriver.Element) (bool, error)   { return true, nil }
func (b *fakeBrowser) IsSelected(context.Context, webdriver.Element) (bool, error)  { return false, nil }

func (b *fakeBrowser) ExecuteScript(context.Context, string, ...interface{}) (interface{}, error) {
	return nil, nil
}

func (b *fakeBrowser) ElementScreenshot(ctx context.Context, _ webdriver.Element) ([]byte, error) {
	return b.Screenshot(ctx)
}

func (b *fakeBrowser) Screenshot(context.Context) ([]byte, error) {
	if b.shot == nil {
		return nil, errors.New("screenshots disabled")
	}
	return b.shot, nil
}

func (b *fakeBrowser) Hierarchy(context.Context) ([]byte, error) { return []byte(b.source), nil }

func (b *fakeBrowser) GetPlatformInfo() *core.PlatformInfo {
	return &core.PlatformInfo{Target: "browser", BrowserName: "chrome", SessionID: "fake"}
}

func (b *fakeBrowser) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBrowser) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *fakeBrowser) Navigate(_ context.Context, u string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.url = u
	return nil
}

func (b *fakeBrowser) CurrentURL(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.url, nil
}

func (b *fakeBrowser) Title(context.Context) (string, error)        { return "Fake", nil }
func (b *fakeBrowser) Back(context.Context) error                   { return nil }
func (b *fakeBrowser) Refresh(context.Context) error                { return nil }
func (b *fakeBrowser) WindowHandle(context.Context) (string, error) { return "main", nil }
func (b *fakeBrowser) SwitchToWindow(context.Context, string) error { return nil }
func (b *fakeBrowser) CloseWindow(context.Context) error            { return nil }
func (b *fakeBrowser) AcceptAlert(context.Context) error            { return nil }
func (b *fakeBrowser) DismissAlert(context.Context) error           { return nil }

func (b *fakeBrowser) WindowHandles(context.Context) ([]string, error) {
	return []string{"main"}, nil
}

func (b *fakeBrowser) AlertText(context.Context) (string, error) {
	return "", &webdriver.Error{Code: webdriver.CodeNoSuchAlert}
}

var _ steps.Session = (*fakeBrowser)(nil)

// browserFarm opens fakeBrowsers and remembers them. Elements listed in
// late only exist from the given session number on.
type browserFarm struct {
	mu       sync.Mutex
	opened   []*fakeBrowser
	late     map[string]int
	shot     []byte
	openFail error
}

const (
	elMessage webdriver.Element = "el-message"
	elBanner  webdriver.Element = "el-banner"
)

func (f *browserFarm) open(context.Context) (steps.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openFail != nil {
		return nil, f.openFail
	}
	b := &fakeBrowser{
		elements: map[string]webdriver.Element{".message": elMessage},
		text:     map[webdriver.Element]string{elMessage: "Welcome back", elBanner: "Sale"},
		shot:     f.shot,
		source:   "<html><body><p class=\"message\">Welcome back</p></body></html>",
	}
	n := len(f.opened) + 1
	if from, ok := f.late[".banner"]; ok && n >= from {
		b.elements[".banner"] = elBanner
	}
	f.opened = append(f.opened, b)
	return b, nil
}

func (f *browserFarm) sessions() []*fakeBrowser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeBrowser(nil), f.opened...)
}
