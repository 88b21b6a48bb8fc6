// Package element resolves page-object elements against a live session:
// late-bound lookup across frames, fluent waits with bounded backoff, and
// interactions that fall back to DOM scripts when native commands fail.
package element

import (
	"context"

	"github.com/devicelab-dev/gherkin-runner/pkg/webdriver"
)

// Remote is the part of a WebDriver session the engine drives.
// *webdriver.Session satisfies it.
type Remote interface {
	FindElements(ctx context.Context, strategy, value string) ([]webdriver.Element, error)
	FindElementsFrom(ctx context.Context, parent webdriver.Element, strategy, value string) ([]webdriver.Element, error)
	SwitchToFrame(ctx context.Context, frame interface{}) error
	SwitchToParentFrame(ctx context.Context) error

	Click(ctx context.Context, el webdriver.Element) error
	Clear(ctx context.Context, el webdriver.Element) error
	SendKeys(ctx context.Context, el webdriver.Element, text string) error
	MoveTo(ctx context.Context, el webdriver.Element) error
	DoubleClick(ctx context.Context, el webdriver.Element) error

	Text(ctx context.Context, el webdriver.Element) (string, error)
	Attribute(ctx context.Context, el webdriver.Element, name string) (string, error)
	TagName(ctx context.Context, el webdriver.Element) (string, error)
	Rect(ctx context.Context, el webdriver.Element) (webdriver.Rect, error)
	IsDisplayed(ctx context.Context, el webdriver.Element) (bool, error)
	IsEnabled(ctx context.Context, el webdriver.Element) (bool, error)
	IsSelected(ctx context.Context, el webdriver.Element) (bool, error)

	ExecuteScript(ctx context.Context, script string, args ...interface{}) (interface{}, error)
	ElementScreenshot(ctx context.Context, el webdriver.Element) ([]byte, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

var _ Remote = (*webdriver.Session)(nil)
