package steps

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cucumber/godog"
	messages "github.com/cucumber/messages/go/v21"
	"github.com/devicelab-dev/gherkin-runner/pkg/config"
	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/page"
	"github.com/devicelab-dev/gherkin-runner/pkg/webdriver"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginPage = `
name: Login
url: /login
elements:
  username: "#user"
  password: "#pass"
  submit: "button[type=submit]"
  message: ".message"
  menuItem: "li[data-item='{0}']"
`

const ordersPage = `
name: Orders
url: /orders
elements:
  orders:
    css: "table#orders"
    table:
      kind: html
`

const ordersMarkup = `<table id="orders">
  <thead><tr><th>Order</th><th>Status</th></tr></thead>
  <tbody>
    <tr><td>A-1</td><td>Open</td></tr>
    <tr><td>A-2</td><td>Shipped</td></tr>
  </tbody>
</table>`

const accountsFile = `
accounts:
  admin:
    username: root
    password: s3cret
    environments:
      qa:
        password: qa-pass
`

const dataFile = `
common:
  greeting: hello
  user:
    name: Dana
qa:
  greeting: hi qa
`

const (
	elUser    webdriver.Element = "el-user"
	elPass    webdriver.Element = "el-pass"
	elSubmit  webdriver.Element = "el-submit"
	elMessage webdriver.Element = "el-message"
	elMenu    webdriver.Element = "el-menu-reports"
	elOrders  webdriver.Element = "el-orders"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.BaseURL = "https://app.test"
	cfg.Timeouts.Element = 200 * time.Millisecond
	cfg.Timeouts.PollInitial = 5 * time.Millisecond
	cfg.Timeouts.PollMax = 20 * time.Millisecond
	cfg.Paths.Baselines = t.TempDir()
	return cfg
}

func testPages(t *testing.T) *page.Registry {
	t.Helper()
	login, err := page.Parse("login.yaml", []byte(loginPage))
	require.NoError(t, err)
	orders, err := page.Parse("orders.yaml", []byte(ordersPage))
	require.NoError(t, err)
	reg, err := page.NewRegistry(login, orders)
	require.NoError(t, err)
	return reg
}

func testSession() *fakeSession {
	s := newFakeSession()
	s.css("#user", elUser).
		css("#pass", elPass).
		css("button[type=submit]", elSubmit).
		css(".message", elMessage).
		css("li[data-item='Reports']", elMenu).
		css("table#orders", elOrders)
	s.text[elMessage] = "Welcome back"
	s.attrs[elSubmit] = map[string]string{"type": "submit"}
	s.markup[elOrders] = ordersMarkup
	return s
}

func testWorld(t *testing.T, sess *fakeSession) *World {
	t.Helper()
	dir := t.TempDir()
	accountsPath := filepath.Join(dir, "accounts.yaml")
	require.NoError(t, os.WriteFile(accountsPath, []byte(accountsFile), 0o644))
	accounts, err := config.LoadAccounts(accountsPath)
	require.NoError(t, err)

	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "common.yaml"), []byte(dataFile), 0o644))
	data, err := config.LoadTestData(dataDir)
	require.NoError(t, err)

	return NewWorld(Options{
		Config:   testConfig(t),
		Pages:    testPages(t),
		Accounts: accounts,
		Data:     data,
		Open: func(context.Context) (Session, error) {
			return sess, nil
		},
	})
}

func TestNavigation(t *testing.T) {
	ctx := context.Background()
	sess := testSession()
	w := testWorld(t, sess)

	require.NoError(t, w.openPage(ctx, "Login"))
	assert.Equal(t, "https://app.test/login", sess.url)
	assert.Equal(t, "Login", w.CurrentPage().Name)

	require.NoError(t, w.onPage(ctx, "login"))
	assert.Empty(t, sess.history, "already on the page")

	require.NoError(t, w.navigateTo(ctx, "/orders?id=$ORDER"))
	assert.Equal(t, "https://app.test/orders?id=$ORDER", sess.url)

	require.NoError(t, w.onPage(ctx, "Login"))
	assert.Equal(t, "https://app.test/login", sess.url)

	require.NoError(t, w.goBack(ctx))
	assert.Equal(t, "https://app.test/orders?id=$ORDER", sess.url)

	require.NoError(t, w.urlShouldContain(ctx, "/orders"))
	err := w.urlShouldContain(ctx, "/checkout")
	assert.True(t, errors.Is(err, core.ErrTextMismatch), "got %v", err)

	sess.title = "Orders"
	require.NoError(t, w.titleShouldBe(ctx, "Orders"))
	assert.Error(t, w.titleShouldBe(ctx, "Login"))

	assert.ErrorIs(t, w.openPage(ctx, "Missing"), core.ErrPageNotFound)
}

func TestOnPageWithoutURL(t *testing.T) {
	sess := testSession()
	w := testWorld(t, sess)
	p, err := page.Parse("panel.yaml", []byte("name: Panel\nelements:\n  ok: \"#ok\"\n"))
	require.NoError(t, err)
	w.pages, err = page.NewRegistry(p)
	require.NoError(t, err)

	require.NoError(t, w.onPage(context.Background(), "Panel"))
	assert.Equal(t, "Panel", w.CurrentPage().Name)
	assert.Empty(t, sess.url)
}

func TestInteraction(t *testing.T) {
	ctx := context.Background()
	sess := testSession()
	w := testWorld(t, sess)
	require.NoError(t, w.openPage(ctx, "Login"))

	w.SetVar("who", "alice")
	require.NoError(t, w.enter(ctx, "$who", "username"))
	assert.Equal(t, "alice", sess.typedInto(elUser))

	require.NoError(t, w.clear(ctx, "username"))
	assert.Empty(t, sess.typedInto(elUser))

	require.NoError(t, w.click(ctx, "submit"))
	require.NoError(t, w.doubleClick(ctx, "Login.submit"))
	require.NoError(t, w.hover(ctx, "message"))
	assert.Equal(t, []webdriver.Element{elSubmit, elSubmit}, sess.clicked())

	w.BeginStep(nil)
	require.NoError(t, w.clickWith(ctx, "menuItem", "Reports"))
	assert.Contains(t, sess.clicked(), elMenu)
	state := w.TakeStepState()
	require.NotNil(t, state.Element)
	assert.Equal(t, "Login.menuItem", state.Element.Name)
	assert.Equal(t, "css=li[data-item='Reports']", state.Element.Locator)

	err := w.click(ctx, "menuItem")
	assert.Error(t, err, "template needs an argument")

	require.NoError(t, w.saveText(ctx, "message", "greeting"))
	v, ok := w.Var("greeting")
	assert.True(t, ok)
	assert.Equal(t, "Welcome back", v)
}

func TestLogIn(t *testing.T) {
	ctx := context.Background()
	sess := testSession()
	w := testWorld(t, sess)
	require.NoError(t, w.openPage(ctx, "Login"))

	require.NoError(t, w.logIn(ctx, "admin"))
	assert.Equal(t, "root", sess.typedInto(elUser))
	assert.Equal(t, "s3cret", sess.typedInto(elPass))
	assert.Equal(t, []webdriver.Element{elSubmit}, sess.clicked())

	w.cfg.Environment = "qa"
	require.NoError(t, w.enterAccountField(ctx, "password", "admin", "password"))
	assert.Equal(t, "qa-pass", sess.typedInto(elPass))

	assert.ErrorIs(t, w.logIn(ctx, "nobody"), core.ErrAccountNotFound)
}

func TestExpand(t *testing.T) {
	ctx := context.Background()
	w := testWorld(t, testSession())
	t.Setenv("STEPS_TEST_HOST", "example.org")
	w.SetVar("id", "42")

	tests := []struct {
		arg  string
		want string
	}{
		{"plain", "plain"},
		{"data:greeting", "hello"},
		{"data:user.name", "Dana"},
		{"account:admin.username", "root"},
		{"${1 + 2}", "3"},
		{"order-$id", "order-42"},
		{"https://$STEPS_TEST_HOST/x", "https://example.org/x"},
		{"$UNDEFINED_STEPS_VAR stays", "$UNDEFINED_STEPS_VAR stays"},
		{"${id * 2}", "84"},
		{"cost: $5", "cost: $5"},
		{"${'$STEPS_TEST_HOST'} at $STEPS_TEST_HOST", "$STEPS_TEST_HOST at example.org"},
	}
	for _, tt := range tests {
		got, err := w.Expand(ctx, tt.arg)
		require.NoError(t, err, tt.arg)
		assert.Equal(t, tt.want, got, tt.arg)
	}

	got, err := w.Expand(ctx, "data:missing.key")
	require.NoError(t, err)
	assert.Equal(t, "missing.key", got, "undefined test data falls back to the key")

	_, err = w.Expand(ctx, "account:admin.pin")
	assert.ErrorIs(t, err, core.ErrAccountNotFound)

	w.cfg.Environment = "qa"
	got, err = w.Expand(ctx, "data:greeting")
	require.NoError(t, err)
	assert.Equal(t, "hi qa", got)
}

func TestVerification(t *testing.T) {
	ctx := context.Background()
	sess := testSession()
	w := testWorld(t, sess)
	require.NoError(t, w.openPage(ctx, "Login"))

	require.NoError(t, w.shouldBe(ctx, "message", "visible"))
	require.NoError(t, w.shouldBe(ctx, "submit", "enabled"))
	require.NoError(t, w.shouldHaveText(ctx, "message", "Welcome back"))
	require.NoError(t, w.shouldContainText(ctx, "message", "Welcome"))
	require.NoError(t, w.shouldHaveAttribute(ctx, "submit", "type", "submit"))

	go func() {
		time.Sleep(30 * time.Millisecond)
		sess.setText(elMessage, "Signed out")
	}()
	require.NoError(t, w.shouldHaveText(ctx, "message", "Signed out"))

	err := w.shouldHaveText(ctx, "message", "Welcome back")
	assert.ErrorIs(t, err, core.ErrTextMismatch)

	sess.mu.Lock()
	sess.hidden[elMessage] = true
	sess.mu.Unlock()
	require.NoError(t, w.shouldBe(ctx, "message", "hidden"))
	assert.ErrorIs(t, w.shouldBe(ctx, "message", "visible"), core.ErrElementNotVisible)

	assert.Error(t, w.shouldBe(ctx, "message", "sparkly"))
}

func TestTables(t *testing.T) {
	ctx := context.Background()
	sess := testSession()
	w := testWorld(t, sess)
	require.NoError(t, w.openPage(ctx, "Orders"))

	tbl := &godog.Table{Rows: []*messages.PickleTableRow{
		{Cells: []*messages.PickleTableCell{{Value: "Order"}, {Value: "Status"}}},
		{Cells: []*messages.PickleTableCell{{Value: "A-2"}, {Value: "Shipped"}}},
	}}
	require.NoError(t, w.tableShouldContain(ctx, "orders", tbl))

	w.SetVar("state", "Open")
	tbl.Rows[1].Cells[0].Value = "A-1"
	tbl.Rows[1].Cells[1].Value = "$state"
	require.NoError(t, w.tableShouldContain(ctx, "orders", tbl))

	tbl.Rows[1].Cells[1].Value = "Cancelled"
	assert.ErrorIs(t, w.tableShouldContain(ctx, "orders", tbl), core.ErrTableMismatch)

	require.NoError(t, w.tableShouldHaveRows(ctx, "orders", 2))
	assert.ErrorIs(t, w.tableShouldHaveRows(ctx, "orders", 3), core.ErrTableMismatch)

	require.NoError(t, w.columnShouldContain(ctx, "Status", "orders", "Shipped"))
	assert.ErrorIs(t, w.columnShouldContain(ctx, "Total", "orders", "1"), core.ErrTableMismatch)

	assert.Error(t, w.tableShouldContain(ctx, "orders", &godog.Table{}))
}

func TestWindowsAndAlerts(t *testing.T) {
	ctx := context.Background()
	sess := testSession()
	w := testWorld(t, sess)

	go func() {
		time.Sleep(20 * time.Millisecond)
		sess.mu.Lock()
		sess.windows = append(sess.windows, "popup")
		sess.mu.Unlock()
	}()
	require.NoError(t, w.switchToNewWindow(ctx))
	assert.Equal(t, "popup", sess.window)

	require.NoError(t, w.switchToMainWindow(ctx))
	assert.Equal(t, "main", sess.window)

	sess.openAlert("Are you sure?")
	require.NoError(t, w.alertTextShouldBe(ctx, "Are you sure?"))
	assert.ErrorIs(t, w.alertTextShouldBe(ctx, "No"), core.ErrTextMismatch)
	require.NoError(t, w.acceptAlert(ctx))

	go func() {
		time.Sleep(20 * time.Millisecond)
		sess.openAlert("Leave page?")
	}()
	require.NoError(t, w.dismissAlert(ctx))
	assert.Equal(t, []string{"accepted:Are you sure?", "dismissed:Leave page?"}, sess.alerted)

	err := w.acceptAlert(ctx)
	assert.ErrorIs(t, err, core.ErrConditionNotMet)
}

func TestScripting(t *testing.T) {
	ctx := context.Background()
	sess := testSession()
	w := testWorld(t, sess)

	require.NoError(t, w.runScript(ctx, `output.token = "abc-" + (20 + 22)`))
	v, _ := w.Var("token")
	assert.Equal(t, "abc-42", v)

	require.NoError(t, w.evaluate(ctx, "6 * 7", "answer"))
	got, err := w.Expand(ctx, "${answer}/$token")
	require.NoError(t, err)
	assert.Equal(t, "42/abc-42", got)

	assert.ErrorIs(t, w.runScript(ctx, "throw new Error('boom')"), core.ErrScript)

	w.cfg.Paths.Scripts = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(w.cfg.Paths.Scripts, "seed.js"), []byte(`output.seeded = "yes"`), 0o644))
	require.NoError(t, w.runScriptFile(ctx, "seed.js"))
	v, _ = w.Var("seeded")
	assert.Equal(t, "yes", v)
	assert.ErrorIs(t, w.runScriptFile(ctx, "missing.js"), core.ErrScript)

	require.NoError(t, w.runBrowserScript(ctx, "window.scrollTo(0, $answer)"))
	assert.Contains(t, sess.scripts, "window.scrollTo(0, 42)")
}

func TestWait(t *testing.T) {
	w := testWorld(t, testSession())
	start := time.Now()
	require.NoError(t, w.wait(context.Background(), 0.05))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.wait(ctx, 5), context.Canceled)
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(8, 8, c), imaging.PNG))
	return buf.Bytes()
}

func assetsIn(dir string) AssetFunc {
	return func(name, ext string) (string, string) {
		rel := filepath.Join("assets", name+ext)
		return filepath.Join(dir, rel), rel
	}
}

func TestScreenshotAttachment(t *testing.T) {
	ctx := context.Background()
	sess := testSession()
	sess.screenshot = pngBytes(t, color.White)
	w := testWorld(t, sess)
	dir := t.TempDir()

	w.BeginStep(assetsIn(dir))
	require.NoError(t, w.takeScreenshot(ctx))
	state := w.TakeStepState()
	require.Len(t, state.Attachments, 1)
	a := state.Attachments[0]
	assert.Equal(t, core.AttachmentScreenshot, a.Name)
	assert.Equal(t, core.ContentTypePNG, a.ContentType)
	assert.Equal(t, filepath.Join("assets", "screenshot.png"), a.Path)
	assert.FileExists(t, filepath.Join(dir, a.Path))

	assert.Empty(t, w.TakeStepState().Attachments, "state is cleared once taken")
}

func TestImageMatch(t *testing.T) {
	ctx := context.Background()
	sess := testSession()
	w := testWorld(t, sess)
	white := pngBytes(t, color.White)
	require.NoError(t, os.WriteFile(filepath.Join(w.cfg.Paths.Baselines, "home.png"), white, 0o644))

	sess.screenshot = white
	require.NoError(t, w.pageShouldMatchImage(ctx, "home"))

	dir := t.TempDir()
	w.BeginStep(assetsIn(dir))
	sess.screenshot = pngBytes(t, color.Black)
	err := w.pageShouldMatchImage(ctx, "home.png")
	assert.ErrorIs(t, err, core.ErrImageMismatch)
	state := w.TakeStepState()
	require.Len(t, state.Attachments, 1)
	assert.Equal(t, core.AttachmentImageDiff, state.Attachments[0].Name)
	assert.FileExists(t, filepath.Join(dir, state.Attachments[0].Path))

	require.NoError(t, w.openPage(ctx, "Login"))
	sess.screenshot = white
	require.NoError(t, w.elementShouldMatchImage(ctx, "message", "home"))

	assert.ErrorIs(t, w.pageShouldMatchImage(ctx, "missing"), core.ErrImageMismatch)
}

func TestSessionLifetime(t *testing.T) {
	ctx := context.Background()
	sess := testSession()
	opened := 0
	w := NewWorld(Options{
		Config: testConfig(t),
		Pages:  testPages(t),
		Open: func(context.Context) (Session, error) {
			opened++
			return sess, nil
		},
	})

	assert.Nil(t, w.Driver())
	require.NoError(t, w.openPage(ctx, "Login"))
	require.NoError(t, w.click(ctx, "submit"))
	assert.Equal(t, 1, opened)
	assert.NotNil(t, w.Driver())

	require.NoError(t, w.Close(ctx))
	assert.Equal(t, 1, sess.closed)
	require.NoError(t, w.Close(ctx))
	assert.Equal(t, 1, sess.closed)

	shared := NewWorld(Options{
		Config: testConfig(t),
		Pages:  testPages(t),
		Shared: true,
		Open:   func(context.Context) (Session, error) { return sess, nil },
	})
	_, err := shared.Session(ctx)
	require.NoError(t, err)
	require.NoError(t, shared.Close(ctx))
	assert.Equal(t, 1, sess.closed, "shared sessions stay open")

	none := NewWorld(Options{Config: testConfig(t)})
	_, err = none.Session(ctx)
	assert.ErrorIs(t, err, core.ErrMissingRequired)
}

func TestDesktopApplication(t *testing.T) {
	ctx := context.Background()
	sess := testSession()
	sess.target = config.TargetDesktop
	w := testWorld(t, sess)

	assert.ErrorIs(t, w.launchApplication(ctx), core.ErrInvalidConfig)

	w.cfg.Target = config.TargetDesktop
	require.NoError(t, w.launchApplication(ctx))
	assert.NotNil(t, w.Driver())
	require.NoError(t, w.launchApplication(ctx))

	require.NoError(t, w.closeApplication(ctx))
	assert.Nil(t, w.Driver())
	assert.Equal(t, 1, sess.closed)
}
