package element

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/gherkin-runner/pkg/config"
	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
	"github.com/devicelab-dev/gherkin-runner/pkg/page"
	"github.com/devicelab-dev/gherkin-runner/pkg/webdriver"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Defaults
const (
	DefaultMaxFrameDepth = 3
	DefaultHintCacheSize = 256
)

const frameSelector = "iframe, frame"

// Options configures a Finder.
type Options struct {
	Platform      page.Platform
	Timeout       time.Duration // Configured element timeout
	PollInitial   time.Duration
	PollMax       time.Duration
	MaxFrameDepth int
	HintCacheSize int
}

// OptionsFromConfig derives finder options from the workspace config.
func OptionsFromConfig(cfg *config.Config) Options {
	platform := page.PlatformWeb
	switch cfg.Target {
	case config.TargetDesktop:
		platform = page.PlatformDesktop
	case config.TargetAppium:
		platform = page.PlatformMobile
	}
	return Options{
		Platform:    platform,
		Timeout:     cfg.Timeouts.Element,
		PollInitial: cfg.Timeouts.PollInitial,
		PollMax:     cfg.Timeouts.PollMax,
	}
}

// Located is a resolved element. The remote is left switched into the
// frame that holds it.
type Located struct {
	ID        webdriver.Element
	Def       *page.Element
	Locator   page.Locator
	FramePath []int // Frame indices from the base context
}

// Finder locates page-object elements in one session. It serializes
// lookups because they move the session's frame context.
type Finder struct {
	remote Remote
	opts   Options
	hints  *lru.Cache[string, []int]

	mu   sync.Mutex
	base []baseFrame // Frames entered by an explicit frame switch
}

// baseFrame is a frame entered by EnterFrame. path holds the frame indices
// that led to it from the previous base context.
type baseFrame struct {
	def  *page.Element
	path []int
}

// NewFinder creates a Finder over remote.
func NewFinder(remote Remote, opts Options) *Finder {
	if opts.Platform == "" {
		opts.Platform = page.PlatformWeb
	}
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultElementTimeout
	}
	if opts.PollInitial <= 0 {
		opts.PollInitial = config.DefaultPollInitial
	}
	if opts.PollMax < opts.PollInitial {
		opts.PollMax = opts.PollInitial
	}
	if opts.MaxFrameDepth <= 0 {
		opts.MaxFrameDepth = DefaultMaxFrameDepth
	}
	if opts.HintCacheSize <= 0 {
		opts.HintCacheSize = DefaultHintCacheSize
	}
	hints, err := lru.New[string, []int](opts.HintCacheSize)
	if err != nil {
		panic(fmt.Sprintf("frame hint cache: %v", err))
	}
	return &Finder{remote: remote, opts: opts, hints: hints}
}

// Remote returns the underlying session.
func (f *Finder) Remote() Remote {
	return f.remote
}

// Platform returns the locator platform.
func (f *Finder) Platform() page.Platform {
	return f.opts.Platform
}

func (f *Finder) web() bool {
	return f.opts.Platform == page.PlatformWeb
}

// Timeout returns the effective wait timeout for def.
func (f *Finder) Timeout(def *page.Element) time.Duration {
	return config.ResolveTimeout(def.Timeout, def.PageTimeout, f.opts.Timeout)
}

// Find makes one lookup attempt, starting again from the base context.
// Each locator is tried in order, in the current document first and then
// recursively in child frames; the first locator that matches wins.
func (f *Finder) Find(ctx context.Context, def *page.Element) (*Located, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(ctx, def)
}

func (f *Finder) find(ctx context.Context, def *page.Element) (*Located, error) {
	if def.IsTemplate() {
		return nil, core.ErrInvalidLocator.
			WithMessagef("element %s needs values for {%s}", def.Ref(), strings.Join(def.Placeholders(), "}, {"))
	}
	if err := f.resetContext(ctx); err != nil {
		return nil, err
	}

	var path []int
	if len(def.Frame) > 0 && f.web() {
		if err := f.enterFrames(ctx, def.Frame); err != nil {
			return nil, err
		}
	} else if hint, ok := f.hints.Get(hintKey(def)); ok && f.web() {
		if loc, err := f.findViaHint(ctx, def, hint); err == nil {
			return loc, nil
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.hints.Remove(hintKey(def))
		if err := f.resetContext(ctx); err != nil {
			return nil, err
		}
	}

	for _, loc := range def.Locators {
		using, value, err := loc.Strategy(f.opts.Platform)
		if err != nil {
			return nil, err
		}
		maxDepth := 0
		if f.web() && len(def.Frame) == 0 {
			maxDepth = f.opts.MaxFrameDepth
		}
		found, framePath, err := f.search(ctx, using, value, 0, maxDepth, path)
		if err != nil {
			return nil, err
		}
		if found != "" {
			if len(framePath) > 0 {
				f.hints.Add(hintKey(def), framePath)
			}
			return &Located{ID: found, Def: def, Locator: loc, FramePath: framePath}, nil
		}
	}
	return nil, notFound(def)
}

// search looks for using/value in the current context, then in each child
// frame up to maxDepth. On a miss the context is restored.
func (f *Finder) search(ctx context.Context, using, value string, depth, maxDepth int, path []int) (webdriver.Element, []int, error) {
	els, err := f.remote.FindElements(ctx, using, value)
	if err != nil && !webdriver.IsNoSuchElement(err) {
		return "", nil, err
	}
	if len(els) > 0 {
		return els[0], append([]int(nil), path...), nil
	}
	if depth >= maxDepth {
		return "", nil, nil
	}

	frames, err := f.remote.FindElements(ctx, webdriver.ByCSS, frameSelector)
	if err != nil && !webdriver.IsNoSuchElement(err) {
		return "", nil, err
	}
	for i, frame := range frames {
		if err := f.remote.SwitchToFrame(ctx, frame); err != nil {
			if webdriver.IsRetryable(err) {
				continue
			}
			return "", nil, err
		}
		found, framePath, err := f.search(ctx, using, value, depth+1, maxDepth, append(path, i))
		if err != nil || found != "" {
			return found, framePath, err
		}
		if err := f.remote.SwitchToParentFrame(ctx); err != nil {
			return "", nil, err
		}
	}
	return "", nil, nil
}

func (f *Finder) findViaHint(ctx context.Context, def *page.Element, hint []int) (*Located, error) {
	if err := f.enterFramePath(ctx, hint); err != nil {
		return nil, err
	}
	for _, loc := range def.Locators {
		using, value, err := loc.Strategy(f.opts.Platform)
		if err != nil {
			return nil, err
		}
		els, err := f.remote.FindElements(ctx, using, value)
		if err != nil && !webdriver.IsNoSuchElement(err) {
			return nil, err
		}
		if len(els) > 0 {
			return &Located{ID: els[0], Def: def, Locator: loc, FramePath: hint}, nil
		}
	}
	return nil, notFound(def)
}

// enterFramePath switches through child frames by their index in each
// document.
func (f *Finder) enterFramePath(ctx context.Context, path []int) error {
	for _, idx := range path {
		frames, err := f.remote.FindElements(ctx, webdriver.ByCSS, frameSelector)
		if err != nil && !webdriver.IsNoSuchElement(err) {
			return err
		}
		if idx >= len(frames) {
			return core.ErrFrameNotFound.WithMessagef("frame #%d not found", idx)
		}
		if err := f.remote.SwitchToFrame(ctx, frames[idx]); err != nil {
			if webdriver.IsRetryable(err) {
				return core.ErrFrameNotFound.WithMessagef("frame #%d not available", idx).WithCause(err)
			}
			return err
		}
	}
	return nil
}

// enterFrames switches through an explicit frame path.
func (f *Finder) enterFrames(ctx context.Context, frames []page.FrameRef) error {
	for _, ref := range frames {
		el, err := f.firstMatch(ctx, ref.Locators)
		if err != nil {
			return err
		}
		if el == "" {
			return core.ErrFrameNotFound.WithMessagef("frame %q not found", ref.Name).
				WithDetails(map[string]interface{}{"frame": ref.Name})
		}
		if err := f.remote.SwitchToFrame(ctx, el); err != nil {
			if webdriver.IsRetryable(err) {
				return core.ErrFrameNotFound.WithMessagef("frame %q not available", ref.Name).WithCause(err)
			}
			return err
		}
	}
	return nil
}

func (f *Finder) firstMatch(ctx context.Context, locators []page.Locator) (webdriver.Element, error) {
	for _, loc := range locators {
		using, value, err := loc.Strategy(f.opts.Platform)
		if err != nil {
			return "", err
		}
		els, err := f.remote.FindElements(ctx, using, value)
		if err != nil && !webdriver.IsNoSuchElement(err) {
			return "", err
		}
		if len(els) > 0 {
			return els[0], nil
		}
	}
	return "", nil
}

// resetContext returns to the top document and re-enters base frames.
func (f *Finder) resetContext(ctx context.Context) error {
	if !f.web() {
		return nil
	}
	if err := f.remote.SwitchToFrame(ctx, nil); err != nil {
		return err
	}
	for _, b := range f.base {
		if len(b.def.Frame) > 0 {
			if err := f.enterFrames(ctx, b.def.Frame); err != nil {
				return err
			}
		} else if err := f.enterFramePath(ctx, b.path); err != nil {
			return err
		}
		if err := f.enterFrames(ctx, []page.FrameRef{{Name: b.def.Name, Locators: b.def.Locators}}); err != nil {
			return err
		}
	}
	return nil
}

// EnterFrame waits for the frame element def and makes it the base context
// for later lookups.
func (f *Finder) EnterFrame(ctx context.Context, def *page.Element) error {
	if !f.web() {
		return core.ErrFrameNotFound.WithMessagef("frames are not supported on %s", f.opts.Platform)
	}
	loc, err := f.Wait(ctx, def, Present())
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.base = append(f.base, baseFrame{def: def, path: loc.FramePath})
	if err := f.resetContext(ctx); err != nil {
		f.base = f.base[:len(f.base)-1]
		return err
	}
	logger.Debug("Entered frame %s", def.Ref())
	return nil
}

// ExitFrames returns lookups to the top document.
func (f *Finder) ExitFrames(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.base = nil
	return f.resetContext(ctx)
}

// Wait polls until def satisfies cond or its timeout elapses. Polling
// backs off exponentially from PollInitial up to PollMax. Lookup misses and
// transient driver errors are retried; anything else aborts the wait.
func (f *Finder) Wait(ctx context.Context, def *page.Element, cond Condition) (*Located, error) {
	timeout := f.Timeout(def)
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var (
		located  *Located
		lastErr  error
		observed string
		attempts int
	)
	op := func() error {
		attempts++
		f.mu.Lock()
		defer f.mu.Unlock()

		loc, err := f.find(waitCtx, def)
		if err != nil {
			if cond.absent && (errors.Is(err, core.ErrElementNotFound) || errors.Is(err, core.ErrFrameNotFound)) {
				located = nil
				return nil
			}
			if isTransient(err) {
				lastErr = err
				return err
			}
			return permanent(err)
		}
		ok, actual, err := cond.check(waitCtx, f, loc)
		if err != nil {
			if isTransient(err) {
				lastErr = err
				return err
			}
			return permanent(err)
		}
		if !ok {
			observed = actual
			lastErr = errConditionPending
			return lastErr
		}
		located = loc
		return nil
	}

	err := retry(waitCtx, f.opts.PollInitial, f.opts.PollMax, timeout, op)
	if err == nil {
		logger.Debug("%s is %s after %d attempt(s) in %s", def.Ref(), cond.name, attempts, time.Since(start).Round(time.Millisecond))
		return located, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !isTransient(err) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	details := map[string]interface{}{
		"element":  def.Ref(),
		"locators": def.Describe(),
		"timeout":  timeout.String(),
		"attempts": attempts,
	}
	switch {
	case cond.absent || errors.Is(lastErr, errConditionPending):
		if observed != "" {
			details["actual"] = observed
		}
		return nil, cond.failure(def, observed, timeout).WithDetails(details)
	case errors.Is(lastErr, core.ErrFrameNotFound):
		return nil, core.ErrFrameNotFound.
			WithMessagef("%v (waited %s for %s)", lastErr, timeout, def.Ref()).
			WithDetails(details)
	case lastErr != nil && !errors.Is(lastErr, core.ErrElementNotFound):
		return nil, core.ErrWaitTimeout.
			WithMessagef("%s not %s within %s: %v", def.Ref(), cond.name, timeout, lastErr).
			WithDetails(details).
			WithCause(lastErr)
	default:
		return nil, core.ErrElementNotFound.
			WithMessagef("element %s not found within %s", def.Describe(), timeout).
			WithDetails(details)
	}
}

func hintKey(def *page.Element) string {
	var b strings.Builder
	b.WriteString(def.Ref())
	for _, l := range def.Locators {
		b.WriteString("|")
		b.WriteString(l.String())
	}
	return b.String()
}

func notFound(def *page.Element) error {
	return core.ErrElementNotFound.
		WithMessagef("element %s not found", def.Describe()).
		WithDetails(map[string]interface{}{"element": def.Ref()})
}

// isTransient reports whether a lookup or check may succeed on a later poll.
func isTransient(err error) bool {
	return errors.Is(err, errConditionPending) ||
		errors.Is(err, core.ErrElementNotFound) ||
		errors.Is(err, core.ErrFrameNotFound) ||
		webdriver.IsRetryable(err)
}
