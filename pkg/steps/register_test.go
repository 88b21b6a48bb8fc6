package steps

import (
	"context"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cucumber/godog"
	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signInFeature = `Feature: Sign in

  Scenario: admin signs in
    Given I open the "Login" page
    When I enter "alice" into "username"
    And I enter the "password" of account "admin" into "password"
    And I click "submit"
    Then "message" should have text "Welcome back"
    And "message" should be visible
    And "Login.submit" should have attribute "type" with value "submit"
    And the url should contain "/login"
    When I evaluate "6 * 7" as "answer"
    And I execute the script:
      """
      output.total = answer * 2
      """
    Then "message" should contain text "Welcome"

  Scenario: orders table
    Given I am on the "Orders" page
    Then the table "orders" should contain:
      | Order | Status  |
      | A-2   | Shipped |
    And the table "orders" should have 2 rows
    And the "Status" column of table "orders" should contain "Open"
    And I wait 0.01 seconds
    And I take a screenshot
`

func runFeature(t *testing.T, sess *fakeSession, feature string) int {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.feature"), []byte(feature), 0o644))

	suite := godog.TestSuite{
		Name: "steps",
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				return WithWorld(ctx, testWorld(t, sess)), nil
			})
			Register(sc)
		},
		Options: &godog.Options{
			Format:   "progress",
			Paths:    []string{dir},
			Output:   io.Discard,
			Strict:   true,
			NoColors: true,
		},
	}
	return suite.Run()
}

func TestRegisteredSteps(t *testing.T) {
	sess := testSession()
	sess.screenshot = pngBytes(t, color.White)
	assert.Equal(t, 0, runFeature(t, sess, signInFeature))
	assert.Equal(t, "alice", sess.typedInto(elUser))
	assert.Equal(t, "s3cret", sess.typedInto(elPass))
}

func TestFailingStep(t *testing.T) {
	feature := `Feature: Failing
  Scenario: wrong text
    Given I open the "Login" page
    Then "message" should have text "Goodbye"
`
	assert.Equal(t, 1, runFeature(t, testSession(), feature))
}

func TestUndefinedStepIsStrict(t *testing.T) {
	feature := `Feature: Undefined
  Scenario: unknown sentence
    Given I open the "Login" page
    Then the moon should be full
`
	assert.Equal(t, 1, runFeature(t, testSession(), feature))
}

func TestStepWithoutWorld(t *testing.T) {
	err := with0((*World).refresh)(context.Background())
	assert.ErrorIs(t, err, core.ErrMissingRequired)

	w := NewWorld(Options{})
	ctx := WithWorld(context.Background(), w)
	assert.Same(t, w, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}
