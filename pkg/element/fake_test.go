package element

import (
	"context"
	"errors"
	"sync"

	"github.com/devicelab-dev/gherkin-runner/pkg/webdriver"
)

// fakeDoc is one browsing context: matches by "strategy=value" plus its
// child frames.
type fakeDoc struct {
	matches  map[string][]webdriver.Element
	frameEls []webdriver.Element
	frames   []*fakeDoc
	parent   *fakeDoc
}

func newDoc() *fakeDoc {
	return &fakeDoc{matches: map[string][]webdriver.Element{}}
}

func (d *fakeDoc) add(using, value string, els ...webdriver.Element) *fakeDoc {
	d.matches[using+"="+value] = append(d.matches[using+"="+value], els...)
	return d
}

func (d *fakeDoc) frame(el webdriver.Element, child *fakeDoc) *fakeDoc {
	child.parent = d
	d.frameEls = append(d.frameEls, el)
	d.frames = append(d.frames, child)
	return child
}

type fakeRemote struct {
	mu  sync.Mutex
	top *fakeDoc
	cur *fakeDoc

	finds     int
	displayed map[webdriver.Element]func() bool
	disabled  map[webdriver.Element]bool
	selected  map[webdriver.Element]bool
	text      map[webdriver.Element]string
	attrs     map[webdriver.Element]map[string]string
	children  map[string][]webdriver.Element // parent|strategy=value

	clickErrs map[webdriver.Element][]error
	findErr   error
	keysErr   error
	clicks    []webdriver.Element
	typed     map[webdriver.Element]string
	scripts   []string
	scriptOut func(script string, args []interface{}) (interface{}, error)
}

func newFakeRemote(top *fakeDoc) *fakeRemote {
	return &fakeRemote{
		top:       top,
		cur:       top,
		displayed: map[webdriver.Element]func() bool{},
		disabled:  map[webdriver.Element]bool{},
		selected:  map[webdriver.Element]bool{},
		text:      map[webdriver.Element]string{},
		attrs:     map[webdriver.Element]map[string]string{},
		children:  map[string][]webdriver.Element{},
		clickErrs: map[webdriver.Element][]error{},
		typed:     map[webdriver.Element]string{},
	}
}

func wdErr(code string) error {
	return &webdriver.Error{Code: code, Message: code}
}

func (r *fakeRemote) FindElements(_ context.Context, using, value string) ([]webdriver.Element, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	if r.findErr != nil {
		return nil, r.findErr
	}
	if using == webdriver.ByCSS && value == frameSelector {
		return append([]webdriver.Element(nil), r.cur.frameEls...), nil
	}
	return append([]webdriver.Element(nil), r.cur.matches[using+"="+value]...), nil
}

func (r *fakeRemote) FindElementsFrom(_ context.Context, parent webdriver.Element, using, value string) ([]webdriver.Element, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.children[string(parent)+"|"+using+"="+value], nil
}

func (r *fakeRemote) SwitchToFrame(_ context.Context, frame interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if frame == nil {
		r.cur = r.top
		return nil
	}
	el, ok := frame.(webdriver.Element)
	if !ok {
		return wdErr(webdriver.CodeNoSuchFrame)
	}
	for i, f := range r.cur.frameEls {
		if f == el {
			r.cur = r.cur.frames[i]
			return nil
		}
	}
	return wdErr(webdriver.CodeNoSuchFrame)
}

func (r *fakeRemote) SwitchToParentFrame(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur.parent != nil {
		r.cur = r.cur.parent
	}
	return nil
}

func (r *fakeRemote) Click(_ context.Context, el webdriver.Element) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if errs := r.clickErrs[el]; len(errs) > 0 {
		r.clickErrs[el] = errs[1:]
		return errs[0]
	}
	r.clicks = append(r.clicks, el)
	return nil
}

func (r *fakeRemote) Clear(_ context.Context, el webdriver.Element) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typed[el] = ""
	return nil
}

func (r *fakeRemote) SendKeys(_ context.Context, el webdriver.Element, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keysErr != nil {
		return r.keysErr
	}
	r.typed[el] += text
	return nil
}

func (r *fakeRemote) MoveTo(context.Context, webdriver.Element) error { return nil }

func (r *fakeRemote) DoubleClick(_ context.Context, el webdriver.Element) error {
	return r.Click(context.Background(), el)
}

func (r *fakeRemote) Text(_ context.Context, el webdriver.Element) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text[el], nil
}

func (r *fakeRemote) Attribute(_ context.Context, el webdriver.Element, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attrs[el][name], nil
}

func (r *fakeRemote) TagName(context.Context, webdriver.Element) (string, error) { return "div", nil }

func (r *fakeRemote) Rect(context.Context, webdriver.Element) (webdriver.Rect, error) {
	return webdriver.Rect{X: 10, Y: 20, Width: 100, Height: 30}, nil
}

func (r *fakeRemote) IsDisplayed(_ context.Context, el webdriver.Element) (bool, error) {
	r.mu.Lock()
	fn, ok := r.displayed[el]
	r.mu.Unlock()
	if !ok {
		return true, nil
	}
	return fn(), nil
}

func (r *fakeRemote) IsEnabled(_ context.Context, el webdriver.Element) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.disabled[el], nil
}

func (r *fakeRemote) IsSelected(_ context.Context, el webdriver.Element) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected[el], nil
}

func (r *fakeRemote) ExecuteScript(_ context.Context, script string, args ...interface{}) (interface{}, error) {
	r.mu.Lock()
	r.scripts = append(r.scripts, script)
	out := r.scriptOut
	r.mu.Unlock()
	if out != nil {
		return out(script, args)
	}
	return nil, nil
}

func (r *fakeRemote) ElementScreenshot(context.Context, webdriver.Element) ([]byte, error) {
	return nil, errors.New("not supported")
}

func (r *fakeRemote) Screenshot(context.Context) ([]byte, error) {
	return nil, errors.New("not supported")
}

func (r *fakeRemote) ranScript(script string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.scripts {
		if s == script {
			return true
		}
	}
	return false
}
