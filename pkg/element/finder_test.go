package element

import (
	"context"
	"testing"
	"time"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/page"
	"github.com/devicelab-dev/gherkin-runner/pkg/webdriver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		Platform:    page.PlatformWeb,
		Timeout:     300 * time.Millisecond,
		PollInitial: 5 * time.Millisecond,
		PollMax:     20 * time.Millisecond,
	}
}

func cssElement(name string, selectors ...string) *page.Element {
	el := &page.Element{Name: name, Page: "Login"}
	for _, s := range selectors {
		el.Locators = append(el.Locators, page.Locator{Type: page.ByCSS, Value: s})
	}
	return el
}

func TestFindFirstMatchingLocatorWins(t *testing.T) {
	top := newDoc().
		add(webdriver.ByCSS, "#user-new", "e2").
		add(webdriver.ByCSS, "#user", "e1")
	f := NewFinder(newFakeRemote(top), testOptions())

	loc, err := f.Find(context.Background(), cssElement("username", "#missing", "#user", "#user-new"))
	require.NoError(t, err)
	assert.Equal(t, webdriver.Element("e1"), loc.ID)
	assert.Equal(t, "css=#user", loc.Locator.String())
	assert.Empty(t, loc.FramePath)
}

func TestFindSearchesNestedFrames(t *testing.T) {
	top := newDoc()
	top.frame("f1", newDoc())
	mid := top.frame("f2", newDoc())
	mid.frame("f3", newDoc().add(webdriver.ByCSS, "#deep", "d1"))
	remote := newFakeRemote(top)
	f := NewFinder(remote, testOptions())
	def := cssElement("deep", "#deep")

	loc, err := f.Find(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, webdriver.Element("d1"), loc.ID)
	assert.Equal(t, []int{1, 0}, loc.FramePath)

	t.Run("hint is tried first", func(t *testing.T) {
		remote.finds = 0
		loc, err := f.Find(context.Background(), def)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 0}, loc.FramePath)
		assert.Equal(t, 3, remote.finds)
	})
}

func TestFindRespectsMaxFrameDepth(t *testing.T) {
	top := newDoc()
	top.frame("f1", newDoc()).frame("f2", newDoc().add(webdriver.ByCSS, "#deep", "d1"))
	opts := testOptions()
	opts.MaxFrameDepth = 1
	f := NewFinder(newFakeRemote(top), opts)

	_, err := f.Find(context.Background(), cssElement("deep", "#deep"))
	assert.ErrorIs(t, err, core.ErrElementNotFound)
}

func TestFindExplicitFramePath(t *testing.T) {
	top := newDoc().add(webdriver.ByCSS, "#pay", "fpay")
	top.frame("fpay", newDoc().add(webdriver.ByCSS, "#card", "c1"))
	remote := newFakeRemote(top)
	f := NewFinder(remote, testOptions())

	def := cssElement("card", "#card")
	def.Frame = []page.FrameRef{{Name: "payment", Locators: []page.Locator{{Type: page.ByCSS, Value: "#pay"}}}}
	loc, err := f.Find(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, webdriver.Element("c1"), loc.ID)

	def.Frame[0].Locators[0].Value = "#nope"
	_, err = f.Wait(context.Background(), def, Present())
	assert.ErrorIs(t, err, core.ErrFrameNotFound)
}

func TestFindNativeSkipsFrames(t *testing.T) {
	top := newDoc().add(webdriver.ByAccessibilityID, "SaveButton", "n1")
	top.frame("f1", newDoc())
	remote := newFakeRemote(top)
	opts := testOptions()
	opts.Platform = page.PlatformDesktop
	f := NewFinder(remote, opts)

	def := &page.Element{Name: "save", Page: "Editor", Locators: []page.Locator{
		{Type: page.ByCSS, Value: "#save"},
	}}
	_, err := f.Find(context.Background(), def)
	assert.ErrorIs(t, err, core.ErrInvalidLocator)

	def.Locators = []page.Locator{{Type: page.ByAccessibilityID, Value: "SaveButton"}}
	loc, err := f.Find(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, webdriver.Element("n1"), loc.ID)
}

func TestFindRejectsUnboundTemplate(t *testing.T) {
	f := NewFinder(newFakeRemote(newDoc()), testOptions())
	start := time.Now()
	_, err := f.Wait(context.Background(), cssElement("row", "tr[data-id='{id}']"), Present())
	assert.ErrorIs(t, err, core.ErrInvalidLocator)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestWaitVisibleEventually(t *testing.T) {
	top := newDoc().add(webdriver.ByCSS, "#banner", "b1")
	remote := newFakeRemote(top)
	calls := 0
	remote.displayed["b1"] = func() bool {
		calls++
		return calls > 3
	}
	f := NewFinder(remote, testOptions())

	loc, err := f.Wait(context.Background(), cssElement("banner", "#banner"), Visible())
	require.NoError(t, err)
	assert.Equal(t, webdriver.Element("b1"), loc.ID)
	assert.Equal(t, 4, calls)
}

func TestWaitTimeouts(t *testing.T) {
	top := newDoc().add(webdriver.ByCSS, "#spinner", "s1").add(webdriver.ByCSS, "#title", "t1")
	remote := newFakeRemote(top)
	remote.text["t1"] = "Welcome"
	remote.disabled["s1"] = true
	f := NewFinder(remote, testOptions())

	tests := []struct {
		name string
		def  *page.Element
		cond Condition
		want *core.ExecutionError
	}{
		{"missing element", cssElement("ghost", "#ghost"), Visible(), core.ErrElementNotFound},
		{"still visible", cssElement("spinner", "#spinner"), Hidden(), core.ErrElementStillVisible},
		{"still present", cssElement("spinner", "#spinner"), Absent(), core.ErrElementStillVisible},
		{"disabled", cssElement("spinner", "#spinner"), Enabled(), core.ErrElementState},
		{"wrong text", cssElement("title", "#title"), TextEquals("Goodbye"), core.ErrTextMismatch},
		{"wrong attribute", cssElement("title", "#title"), AttributeEquals("class", "active"), core.ErrAttributeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.def.Timeout = 50 * time.Millisecond
			_, err := f.Wait(context.Background(), tt.def, tt.cond)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWaitTimeoutOnPersistentDriverError(t *testing.T) {
	remote := newFakeRemote(newDoc().add(webdriver.ByCSS, "#title", "t1"))
	remote.findErr = wdErr(webdriver.CodeStaleElement)
	f := NewFinder(remote, testOptions())

	def := cssElement("title", "#title")
	def.Timeout = 50 * time.Millisecond
	_, err := f.Wait(context.Background(), def, Visible())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrWaitTimeout)
	assert.Equal(t, core.ErrCategoryTimeout, core.CategoryOf(err))
	assert.Greater(t, remote.finds, 1, "driver errors are retried until the timeout")
}

func TestWaitHiddenSatisfiedWhenAbsent(t *testing.T) {
	f := NewFinder(newFakeRemote(newDoc()), testOptions())
	loc, err := f.Wait(context.Background(), cssElement("toast", "#toast"), Hidden())
	require.NoError(t, err)
	assert.Nil(t, loc)
}

func TestWaitAbsentWhenFrameRemoved(t *testing.T) {
	f := NewFinder(newFakeRemote(newDoc()), testOptions())
	def := cssElement("close", "#close")
	def.Frame = []page.FrameRef{{Name: "dialog", Locators: []page.Locator{{Type: page.ByCSS, Value: "#dialog"}}}}

	loc, err := f.Wait(context.Background(), def, Hidden())
	require.NoError(t, err)
	assert.Nil(t, loc)

	_, err = f.Wait(context.Background(), def, Absent())
	require.NoError(t, err)

	_, err = f.Wait(context.Background(), def, Visible())
	assert.ErrorIs(t, err, core.ErrFrameNotFound)
}

func TestWaitTimeoutPrecedence(t *testing.T) {
	f := NewFinder(newFakeRemote(newDoc()), testOptions())
	def := cssElement("x", "#x")
	assert.Equal(t, 300*time.Millisecond, f.Timeout(def))
	def.PageTimeout = 2 * time.Second
	assert.Equal(t, 2*time.Second, f.Timeout(def))
	def.Timeout = 5 * time.Second
	assert.Equal(t, 5*time.Second, f.Timeout(def))
}

func TestWaitHonoursContext(t *testing.T) {
	f := NewFinder(newFakeRemote(newDoc()), testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Wait(ctx, cssElement("x", "#x"), Present())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnterAndExitFrames(t *testing.T) {
	top := newDoc().add(webdriver.ByCSS, "#editor", "fe")
	top.frame("fe", newDoc().add(webdriver.ByCSS, "#body", "body1"))
	f := NewFinder(newFakeRemote(top), testOptions())

	require.NoError(t, f.EnterFrame(context.Background(), cssElement("editor", "#editor")))
	loc, err := f.Find(context.Background(), cssElement("body", "#body"))
	require.NoError(t, err)
	assert.Empty(t, loc.FramePath)

	require.NoError(t, f.ExitFrames(context.Background()))
	loc, err = f.Find(context.Background(), cssElement("body", "#body"))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, loc.FramePath)
}

func TestEnterNestedFrame(t *testing.T) {
	top := newDoc()
	shell := top.frame("fshell", newDoc())
	shell.add(webdriver.ByCSS, "#editor", "fe")
	shell.frame("fe", newDoc().add(webdriver.ByCSS, "#body", "body1"))
	f := NewFinder(newFakeRemote(top), testOptions())
	ctx := context.Background()

	require.NoError(t, f.EnterFrame(ctx, cssElement("editor", "#editor")))
	for i := 0; i < 2; i++ {
		loc, err := f.Find(ctx, cssElement("body", "#body"))
		require.NoError(t, err)
		assert.Equal(t, webdriver.Element("body1"), loc.ID)
		assert.Empty(t, loc.FramePath)
	}

	require.NoError(t, f.ExitFrames(ctx))
	loc, err := f.Find(ctx, cssElement("body", "#body"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0}, loc.FramePath)
}

func TestConditionByName(t *testing.T) {
	for _, state := range []string{"visible", "Hidden", "enabled", "disabled", "selected", "not selected", "clickable", "present"} {
		_, err := ConditionByName(state)
		assert.NoError(t, err, state)
	}
	_, err := ConditionByName("sparkly")
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}
