package element

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/page"
)

var errConditionPending = errors.New("condition not yet met")

// Condition is a predicate a located element must satisfy to end a wait.
type Condition struct {
	name    string
	absent  bool // Satisfied when the element cannot be found
	check   func(ctx context.Context, f *Finder, loc *Located) (bool, string, error)
	failure func(def *page.Element, observed string, timeout time.Duration) *core.ExecutionError
}

// String returns the condition's name.
func (c Condition) String() string {
	return c.name
}

// Present is satisfied once any locator matches.
func Present() Condition {
	return Condition{
		name: "present",
		check: func(context.Context, *Finder, *Located) (bool, string, error) {
			return true, "", nil
		},
		failure: func(def *page.Element, _ string, timeout time.Duration) *core.ExecutionError {
			return core.ErrElementNotFound.WithMessagef("element %s not found within %s", def.Describe(), timeout)
		},
	}
}

// Absent is satisfied once no locator matches.
func Absent() Condition {
	return Condition{
		name:   "absent",
		absent: true,
		check: func(context.Context, *Finder, *Located) (bool, string, error) {
			return false, "present", nil
		},
		failure: func(def *page.Element, _ string, timeout time.Duration) *core.ExecutionError {
			return core.ErrElementStillVisible.WithMessagef("element %s still present after %s", def.Ref(), timeout)
		},
	}
}

// Visible is satisfied when the element is displayed.
func Visible() Condition {
	return Condition{
		name:  "visible",
		check: boolCheck(displayed, true),
		failure: func(def *page.Element, _ string, timeout time.Duration) *core.ExecutionError {
			return core.ErrElementNotVisible.WithMessagef("element %s not visible within %s", def.Ref(), timeout)
		},
	}
}

// Hidden is satisfied when the element is not displayed or not present.
func Hidden() Condition {
	return Condition{
		name:   "hidden",
		absent: true,
		check:  boolCheck(displayed, false),
		failure: func(def *page.Element, _ string, timeout time.Duration) *core.ExecutionError {
			return core.ErrElementStillVisible.WithMessagef("element %s still visible after %s", def.Ref(), timeout)
		},
	}
}

// Enabled is satisfied when the element accepts input.
func Enabled() Condition {
	return stateCondition("enabled", enabled, true)
}

// Disabled is satisfied when the element is disabled.
func Disabled() Condition {
	return stateCondition("disabled", enabled, false)
}

// Selected is satisfied when a checkbox, radio or option is selected.
func Selected() Condition {
	return stateCondition("selected", selected, true)
}

// NotSelected is the inverse of Selected.
func NotSelected() Condition {
	return stateCondition("not selected", selected, false)
}

// Clickable is satisfied when the element is displayed and enabled.
func Clickable() Condition {
	return Condition{
		name: "clickable",
		check: func(ctx context.Context, f *Finder, loc *Located) (bool, string, error) {
			ok, err := displayed(ctx, f, loc)
			if err != nil || !ok {
				return false, "not visible", err
			}
			ok, err = enabled(ctx, f, loc)
			if err != nil || !ok {
				return false, "disabled", err
			}
			return true, "", nil
		},
		failure: func(def *page.Element, observed string, timeout time.Duration) *core.ExecutionError {
			if observed == "not visible" {
				return core.ErrElementNotVisible.WithMessagef("element %s not visible within %s", def.Ref(), timeout)
			}
			return core.ErrElementState.WithMessagef("element %s not clickable within %s (%s)", def.Ref(), timeout, observed)
		},
	}
}

// TextEquals is satisfied when the element's trimmed text equals want.
func TextEquals(want string) Condition {
	return textCondition(fmt.Sprintf("text %q", want), want, func(got string) bool {
		return strings.TrimSpace(got) == strings.TrimSpace(want)
	})
}

// TextContains is satisfied when the element's text contains want.
func TextContains(want string) Condition {
	return textCondition(fmt.Sprintf("text containing %q", want), want, func(got string) bool {
		return strings.Contains(got, want)
	})
}

// AttributeEquals is satisfied when attribute name equals want.
func AttributeEquals(name, want string) Condition {
	return Condition{
		name: fmt.Sprintf("%s=%q", name, want),
		check: func(ctx context.Context, f *Finder, loc *Located) (bool, string, error) {
			got, err := f.remote.Attribute(ctx, loc.ID, name)
			if err != nil {
				return false, "", err
			}
			return got == want, got, nil
		},
		failure: func(def *page.Element, observed string, timeout time.Duration) *core.ExecutionError {
			return core.ErrAttributeMismatch.
				WithMessagef("%s of %s: expected %q, got %q after %s", name, def.Ref(), want, observed, timeout).
				WithDetails(map[string]interface{}{"attribute": name, "expected": want})
		},
	}
}

// ConditionByName maps a step vocabulary state to a Condition.
func ConditionByName(state string) (Condition, error) {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "present", "exist", "exists", "displayed in the dom":
		return Present(), nil
	case "absent", "not present", "gone", "removed":
		return Absent(), nil
	case "visible", "displayed", "shown":
		return Visible(), nil
	case "hidden", "not visible", "invisible", "not displayed":
		return Hidden(), nil
	case "enabled":
		return Enabled(), nil
	case "disabled":
		return Disabled(), nil
	case "selected", "checked":
		return Selected(), nil
	case "not selected", "unchecked", "not checked":
		return NotSelected(), nil
	case "clickable":
		return Clickable(), nil
	}
	return Condition{}, core.ErrInvalidConfig.WithMessagef("unknown element state %q", state)
}

func displayed(ctx context.Context, f *Finder, loc *Located) (bool, error) {
	return f.remote.IsDisplayed(ctx, loc.ID)
}

func enabled(ctx context.Context, f *Finder, loc *Located) (bool, error) {
	return f.remote.IsEnabled(ctx, loc.ID)
}

func selected(ctx context.Context, f *Finder, loc *Located) (bool, error) {
	return f.remote.IsSelected(ctx, loc.ID)
}

type probe func(ctx context.Context, f *Finder, loc *Located) (bool, error)

func boolCheck(p probe, want bool) func(context.Context, *Finder, *Located) (bool, string, error) {
	return func(ctx context.Context, f *Finder, loc *Located) (bool, string, error) {
		got, err := p(ctx, f, loc)
		if err != nil {
			return false, "", err
		}
		return got == want, strconv.FormatBool(got), nil
	}
}

func stateCondition(name string, p probe, want bool) Condition {
	return Condition{
		name:  name,
		check: boolCheck(p, want),
		failure: func(def *page.Element, _ string, timeout time.Duration) *core.ExecutionError {
			return core.ErrElementState.
				WithMessagef("element %s not %s within %s", def.Ref(), name, timeout).
				WithDetails(map[string]interface{}{"expected": name})
		},
	}
}

func textCondition(name, want string, match func(string) bool) Condition {
	return Condition{
		name: name,
		check: func(ctx context.Context, f *Finder, loc *Located) (bool, string, error) {
			got, err := f.readText(ctx, loc)
			if err != nil {
				return false, "", err
			}
			return match(got), got, nil
		},
		failure: func(def *page.Element, observed string, timeout time.Duration) *core.ExecutionError {
			return core.ErrTextMismatch.
				WithMessagef("%s: expected %s, got %q after %s", def.Ref(), name, observed, timeout).
				WithDetails(map[string]interface{}{"expected": want})
		},
	}
}

// retry runs op with exponential backoff bounded by timeout.
func retry(ctx context.Context, initial, maxInterval, timeout time.Duration, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = timeout
	b.RandomizationFactor = 0
	b.Multiplier = 1.5
	b.Reset()
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

func permanent(err error) error {
	return backoff.Permanent(err)
}
