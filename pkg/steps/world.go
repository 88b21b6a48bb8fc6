// Package steps binds Gherkin sentences to the element engine. A World
// holds per-scenario state: the session, the current page, scenario
// variables and the script engine.
package steps

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/devicelab-dev/gherkin-runner/pkg/config"
	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/element"
	"github.com/devicelab-dev/gherkin-runner/pkg/jsengine"
	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
	"github.com/devicelab-dev/gherkin-runner/pkg/page"
)

// Session is the part of a driver session the step definitions use.
// *session.Session satisfies it.
type Session interface {
	element.Remote
	core.Driver

	Target() string
	Navigate(ctx context.Context, u string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Back(ctx context.Context) error
	Refresh(ctx context.Context) error

	WindowHandle(ctx context.Context) (string, error)
	WindowHandles(ctx context.Context) ([]string, error)
	SwitchToWindow(ctx context.Context, handle string) error
	CloseWindow(ctx context.Context) error

	AlertText(ctx context.Context) (string, error)
	AcceptAlert(ctx context.Context) error
	DismissAlert(ctx context.Context) error
}

// Opener starts a session.
type Opener func(ctx context.Context) (Session, error)

// AssetFunc returns where a file produced by the running step is stored,
// as an absolute path and a path relative to the report directory.
type AssetFunc func(name, ext string) (abs, rel string)

// Options configures a World.
type Options struct {
	Config   *config.Config
	Pages    *page.Registry
	Accounts *config.Accounts
	Data     *config.TestData

	// Open starts a session on first use.
	Open Opener
	// Shared marks sessions from Open as owned by the caller; Close leaves
	// them running.
	Shared bool

	HTTPClient *http.Client
}

// World is the state of one scenario. Steps of a scenario run one at a
// time; the mutex guards state read by report hooks.
type World struct {
	cfg      *config.Config
	pages    *page.Registry
	accounts *config.Accounts
	data     *config.TestData
	open     Opener
	shared   bool

	js      *jsengine.Engine
	vars    map[string]string
	current *page.Page

	sess       Session
	finder     *element.Finder
	mainWindow string

	mu     sync.Mutex
	assets AssetFunc
	step   StepState
}

// StepState is what the running step recorded for the report.
type StepState struct {
	Element     *core.ElementInfo
	Attachments []core.Attachment
}

// NewWorld creates the state for one scenario.
func NewWorld(opts Options) *World {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	w := &World{
		cfg:      cfg,
		pages:    opts.Pages,
		accounts: opts.Accounts,
		data:     opts.Data,
		open:     opts.Open,
		shared:   opts.Shared,
		vars:     make(map[string]string),
	}
	if w.pages == nil {
		w.pages, _ = page.NewRegistry()
	}

	jsOpts := []jsengine.Option{
		jsengine.WithEnvironment(cfg.Environment),
		jsengine.WithData(func(key string) (interface{}, bool) {
			if w.data == nil {
				return nil, false
			}
			return w.data.Lookup(key, cfg.Environment)
		}),
		jsengine.WithAccounts(func(alias string) (map[string]string, error) {
			if w.accounts == nil {
				return nil, core.ErrAccountNotFound.WithMessagef("account %q is not defined: no accounts file loaded", alias)
			}
			return w.accounts.Get(alias, cfg.Environment)
		}),
	}
	if opts.HTTPClient != nil {
		jsOpts = append(jsOpts, jsengine.WithHTTPClient(opts.HTTPClient))
	}
	w.js = jsengine.New(jsOpts...)
	return w
}

type worldKey struct{}

// WithWorld returns a context carrying w.
func WithWorld(ctx context.Context, w *World) context.Context {
	return context.WithValue(ctx, worldKey{}, w)
}

// FromContext returns the World stored by WithWorld, or nil.
func FromContext(ctx context.Context) *World {
	w, _ := ctx.Value(worldKey{}).(*World)
	return w
}

// Config returns the resolved configuration.
func (w *World) Config() *config.Config {
	return w.cfg
}

// Script returns the scenario's script engine.
func (w *World) Script() *jsengine.Engine {
	return w.js
}

// Var returns a scenario variable.
func (w *World) Var(name string) (string, bool) {
	v, ok := w.vars[name]
	return v, ok
}

// SetVar sets a scenario variable, visible to scripts as a global.
func (w *World) SetVar(name, value string) {
	w.vars[name] = value
	w.js.Set(name, value)
}

// CurrentPage returns the page the scenario is on, or nil.
func (w *World) CurrentPage() *page.Page {
	return w.current
}

// Driver returns the open session, or nil.
func (w *World) Driver() core.Driver {
	if w.sess == nil {
		return nil
	}
	return w.sess
}

// Session returns the session, opening one when none is open.
func (w *World) Session(ctx context.Context) (Session, error) {
	if w.sess != nil {
		return w.sess, nil
	}
	if w.open == nil {
		return nil, core.ErrMissingRequired.WithMessage("no session available")
	}
	s, err := w.open(ctx)
	if err != nil {
		return nil, err
	}
	w.attach(s)
	return s, nil
}

func (w *World) attach(s Session) {
	w.sess = s
	w.finder = element.NewFinder(s, element.OptionsFromConfig(w.cfg))
	w.mainWindow = ""
}

// Finder returns the element engine bound to the session.
func (w *World) Finder(ctx context.Context) (*element.Finder, error) {
	if _, err := w.Session(ctx); err != nil {
		return nil, err
	}
	return w.finder, nil
}

// Close ends the scenario. Sessions the World opened itself are closed.
func (w *World) Close(ctx context.Context) error {
	if w.sess == nil || w.shared {
		return nil
	}
	err := w.sess.Close(ctx)
	w.sess = nil
	w.finder = nil
	return err
}

// closeSession closes the session regardless of ownership.
func (w *World) closeSession(ctx context.Context) error {
	if w.sess == nil {
		return nil
	}
	err := w.sess.Close(ctx)
	w.sess = nil
	w.finder = nil
	return err
}

// BeginStep resets the step state. assets may be nil.
func (w *World) BeginStep(assets AssetFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.assets = assets
	w.step = StepState{}
}

// TakeStepState returns and clears what the step recorded.
func (w *World) TakeStepState() StepState {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.step
	w.step = StepState{}
	return s
}

func (w *World) recordElement(info *core.ElementInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.step.Element = info
}

// attach stores data as a step asset. Without an asset location the
// attachment keeps the bytes in memory.
func (w *World) attachData(name, ext, contentType string, data []byte) (core.Attachment, error) {
	w.mu.Lock()
	assets := w.assets
	w.mu.Unlock()

	a := core.Attachment{Name: name, ContentType: contentType, Body: data}
	if assets != nil {
		abs, rel := assets(name, ext)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return a, err
		}
		if err := os.WriteFile(abs, data, 0o644); err != nil {
			return a, err
		}
		a.Path = rel
	}
	w.addAttachment(a)
	return a, nil
}

func (w *World) addAttachment(a core.Attachment) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.step.Attachments = append(w.step.Attachments, a)
}

// assetPath returns a location for a file the step writes itself.
func (w *World) assetPath(name, ext string) (abs, rel string) {
	w.mu.Lock()
	assets := w.assets
	w.mu.Unlock()
	if assets == nil {
		return "", ""
	}
	return assets(name, ext)
}

// resolve looks up an element reference and binds template arguments.
func (w *World) resolve(ref string, args ...string) (*page.Element, error) {
	def, err := w.pages.Resolve(ref, w.current)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 || def.IsTemplate() {
		def, err = def.Bind(args...)
		if err != nil {
			return nil, err
		}
	}
	info := &core.ElementInfo{Name: def.Ref()}
	if len(def.Locators) > 0 {
		info.Locator = def.Locators[0].String()
	}
	w.recordElement(info)
	return def, nil
}

// element resolves ref to an action handle.
func (w *World) element(ctx context.Context, ref string, args ...string) (*element.Element, error) {
	def, err := w.resolve(ref, args...)
	if err != nil {
		return nil, err
	}
	f, err := w.Finder(ctx)
	if err != nil {
		return nil, err
	}
	return f.Element(def), nil
}

func (w *World) debug(format string, args ...interface{}) {
	logger.Debug(format, args...)
}
