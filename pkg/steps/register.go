package steps

import (
	"context"

	"github.com/cucumber/godog"
	"github.com/devicelab-dev/gherkin-runner/pkg/core"
)

// Register binds every step sentence to sc. Steps read their World from
// the step context; see WithWorld.
func Register(sc *godog.ScenarioContext) {
	// navigation
	sc.Step(`^I open the "([^"]*)" page$`, with1((*World).openPage))
	sc.Step(`^I am on the "([^"]*)" page$`, with1((*World).onPage))
	sc.Step(`^I navigate to "([^"]*)"$`, with1((*World).navigateTo))
	sc.Step(`^I refresh the page$`, with0((*World).refresh))
	sc.Step(`^I go back$`, with0((*World).goBack))
	sc.Step(`^the page title should be "([^"]*)"$`, with1((*World).titleShouldBe))
	sc.Step(`^the url should contain "([^"]*)"$`, with1((*World).urlShouldContain))

	// interaction
	sc.Step(`^I click "([^"]*)"$`, with1((*World).click))
	sc.Step(`^I click "([^"]*)" with "([^"]*)"$`, with2((*World).clickWith))
	sc.Step(`^I double click "([^"]*)"$`, with1((*World).doubleClick))
	sc.Step(`^I hover over "([^"]*)"$`, with1((*World).hover))
	sc.Step(`^I enter "([^"]*)" into "([^"]*)"$`, with2((*World).enter))
	sc.Step(`^I clear "([^"]*)"$`, with1((*World).clear))
	sc.Step(`^I select "([^"]*)" from "([^"]*)"$`, with2((*World).selectOption))
	sc.Step(`^I press "([^"]*)" in "([^"]*)"$`, with2((*World).pressKey))

	// data and accounts
	sc.Step(`^I log in as "([^"]*)"$`, with1((*World).logIn))
	sc.Step(`^I enter the "([^"]*)" of account "([^"]*)" into "([^"]*)"$`, with3((*World).enterAccountField))
	sc.Step(`^I save the text of "([^"]*)" as "([^"]*)"$`, with2((*World).saveText))

	// verification
	sc.Step(`^"([^"]*)" should be (visible|hidden|enabled|disabled|selected|not selected)$`, with2((*World).shouldBe))
	sc.Step(`^"([^"]*)" should have text "([^"]*)"$`, with2((*World).shouldHaveText))
	sc.Step(`^"([^"]*)" should contain text "([^"]*)"$`, with2((*World).shouldContainText))
	sc.Step(`^"([^"]*)" should have attribute "([^"]*)" with value "([^"]*)"$`, with3((*World).shouldHaveAttribute))
	sc.Step(`^"([^"]*)" should match the image "([^"]*)"$`, with2((*World).elementShouldMatchImage))
	sc.Step(`^the page should match the image "([^"]*)"$`, with1((*World).pageShouldMatchImage))

	// tables
	sc.Step(`^the table "([^"]*)" should contain:$`, with2((*World).tableShouldContain))
	sc.Step(`^the table "([^"]*)" should have (\d+) rows?$`, with2((*World).tableShouldHaveRows))
	sc.Step(`^the "([^"]*)" column of table "([^"]*)" should contain "([^"]*)"$`, with3((*World).columnShouldContain))
	sc.Step(`^I click the "([^"]*)" cell of row (\d+) in table "([^"]*)"$`, with3((*World).clickCell))
	sc.Step(`^I click the "([^"]*)" cell in table "([^"]*)" where "([^"]*)" is "([^"]*)"$`, with4((*World).clickCellWhere))

	// waits
	sc.Step(`^I wait (\d+(?:\.\d+)?) seconds?$`, with1((*World).wait))
	sc.Step(`^I wait for "([^"]*)" to be (visible|hidden|clickable|enabled|disabled|present|absent)$`, with2((*World).shouldBe))

	// windows, frames and alerts
	sc.Step(`^I switch to the new window$`, with0((*World).switchToNewWindow))
	sc.Step(`^I switch to the main window$`, with0((*World).switchToMainWindow))
	sc.Step(`^I switch to frame "([^"]*)"$`, with1((*World).switchToFrame))
	sc.Step(`^I switch to the main content$`, with0((*World).switchToMainContent))
	sc.Step(`^I accept the alert$`, with0((*World).acceptAlert))
	sc.Step(`^I dismiss the alert$`, with0((*World).dismissAlert))
	sc.Step(`^the alert text should be "([^"]*)"$`, with1((*World).alertTextShouldBe))

	// desktop
	sc.Step(`^I launch the desktop application$`, with0((*World).launchApplication))
	sc.Step(`^I close the application$`, with0((*World).closeApplication))

	// scripting
	sc.Step(`^I execute the script "([^"]*)"$`, with1((*World).runScript))
	sc.Step(`^I execute the script:$`, with1((*World).runScriptDoc))
	sc.Step(`^I run the script file "([^"]*)"$`, with1((*World).runScriptFile))
	sc.Step(`^I execute the browser script "([^"]*)"$`, with1((*World).runBrowserScript))
	sc.Step(`^I evaluate "([^"]*)" as "([^"]*)"$`, with2((*World).evaluate))
	sc.Step(`^I take a screenshot$`, with0((*World).takeScreenshot))
}

func (w *World) runScriptDoc(ctx context.Context, doc *godog.DocString) error {
	if doc == nil {
		return core.ErrMissingRequired.WithMessage("script step needs a doc string")
	}
	return w.runScript(ctx, doc.Content)
}

func current(ctx context.Context) (*World, error) {
	w := FromContext(ctx)
	if w == nil {
		return nil, core.ErrMissingRequired.WithMessage("step context has no scenario state")
	}
	return w, nil
}

func with0(fn func(*World, context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		w, err := current(ctx)
		if err != nil {
			return err
		}
		return fn(w, ctx)
	}
}

func with1[A any](fn func(*World, context.Context, A) error) func(context.Context, A) error {
	return func(ctx context.Context, a A) error {
		w, err := current(ctx)
		if err != nil {
			return err
		}
		return fn(w, ctx, a)
	}
}

func with2[A, B any](fn func(*World, context.Context, A, B) error) func(context.Context, A, B) error {
	return func(ctx context.Context, a A, b B) error {
		w, err := current(ctx)
		if err != nil {
			return err
		}
		return fn(w, ctx, a, b)
	}
}

func with3[A, B, C any](fn func(*World, context.Context, A, B, C) error) func(context.Context, A, B, C) error {
	return func(ctx context.Context, a A, b B, c C) error {
		w, err := current(ctx)
		if err != nil {
			return err
		}
		return fn(w, ctx, a, b, c)
	}
}

func with4[A, B, C, D any](fn func(*World, context.Context, A, B, C, D) error) func(context.Context, A, B, C, D) error {
	return func(ctx context.Context, a A, b B, c C, d D) error {
		w, err := current(ctx)
		if err != nil {
			return err
		}
		return fn(w, ctx, a, b, c, d)
	}
}
