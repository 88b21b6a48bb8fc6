package webdriver

import (
	"bytes"
	"context"
	"encoding/base64"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeJSON encodes data as JSON to the response writer.
func writeJSON(w http.ResponseWriter, data interface{}) {
	if err := stdjson.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	writeJSON(w, map[string]interface{}{
		"value": map[string]interface{}{"error": code, "message": message, "stacktrace": ""},
	})
}

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

// newTestSession starts a server routing "METHOD /path" to handlers and
// returns a session bound to it with ID "s1".
func newTestSession(t *testing.T, routes map[string]http.HandlerFunc) (*Session, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = stdjson.Unmarshal(data, &rec.Body)
		}
		requests = append(requests, rec)
		if h, ok := routes[r.Method+" "+r.URL.Path]; ok {
			h(w, r)
			return
		}
		writeError(w, http.StatusNotFound, CodeUnknownCommand, r.Method+" "+r.URL.Path)
	}))
	t.Cleanup(server.Close)

	return &Session{client: NewClient(server.URL + "/"), ID: "s1"}, &requests
}

func value(v interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"value": v})
	}
}

func TestClient_NewSession_W3C(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/session", r.URL.Path)
		_ = stdjson.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, map[string]interface{}{
			"value": map[string]interface{}{
				"sessionId":    "abc",
				"capabilities": map[string]interface{}{"browserName": "chrome", "browserVersion": "126"},
			},
		})
	}))
	defer server.Close()

	s, err := NewClient(server.URL).NewSession(context.Background(), map[string]interface{}{"browserName": "chrome"})
	require.NoError(t, err)
	assert.Equal(t, "abc", s.ID)
	assert.Equal(t, "126", s.Capabilities["browserVersion"])

	caps := body["capabilities"].(map[string]interface{})
	assert.Equal(t, "chrome", caps["alwaysMatch"].(map[string]interface{})["browserName"])
	assert.Equal(t, "chrome", body["desiredCapabilities"].(map[string]interface{})["browserName"])
}

func TestClient_NewSession_JSONWire(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"sessionId": "win-1",
			"status":    0,
			"value":     map[string]interface{}{"platformName": "Windows", "app": "Root"},
		})
	}))
	defer server.Close()

	s, err := NewClient(server.URL).NewSession(context.Background(), map[string]interface{}{"app": "Root"})
	require.NoError(t, err)
	assert.Equal(t, "win-1", s.ID)
	assert.Equal(t, "Windows", s.Capabilities["platformName"])
}

func TestClient_NewSession_NotCreated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusInternalServerError, CodeSessionNotCreated, "chrome not reachable")
	}))
	defer server.Close()

	_, err := NewClient(server.URL).NewSession(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, CodeSessionNotCreated, ErrorCode(err))
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url).NewSession(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrServerUnreachable))
	assert.Equal(t, core.ErrCategoryConnection, core.CategoryOf(err))
}

func TestClient_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewClient(server.URL).Status(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"value": map[string]interface{}{"ready": false, "message": "busy"}})
	}))
	defer server.Close()

	ready, msg, err := NewClient(server.URL).Status(context.Background())
	require.NoError(t, err)
	assert.False(t, ready)
	assert.Equal(t, "busy", msg)
}

func TestClient_Trace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"value": map[string]interface{}{"ready": true, "message": "ok"}})
	}))
	defer server.Close()

	var trace strings.Builder
	_, _, err := NewClient(server.URL, WithTrace(&trace)).Status(context.Background())
	require.NoError(t, err)
	assert.Contains(t, trace.String(), "> GET /status")
	assert.Contains(t, trace.String(), `< 200 {"value":{"message":"ok","ready":true}}`)

	assert.Equal(t, "abc", traceBody([]byte(" abc\n")))
	long := traceBody(bytes.Repeat([]byte("x"), maxTraceBody+10))
	assert.True(t, strings.HasSuffix(long, fmt.Sprintf("... (%d bytes)", maxTraceBody+10)))
}

func TestSession_FindElement(t *testing.T) {
	s, reqs := newTestSession(t, map[string]http.HandlerFunc{
		"POST /session/s1/element": value(map[string]interface{}{ElementKey: "e-1"}),
	})

	el, err := s.FindElement(context.Background(), ByCSS, "#login")
	require.NoError(t, err)
	assert.Equal(t, Element("e-1"), el)
	assert.Equal(t, map[string]interface{}{"using": "css selector", "value": "#login"}, (*reqs)[0].Body)
}

func TestSession_FindElement_Legacy(t *testing.T) {
	s, _ := newTestSession(t, map[string]http.HandlerFunc{
		"POST /session/s1/element": value(map[string]interface{}{"ELEMENT": "42.1"}),
	})

	el, err := s.FindElement(context.Background(), ByAccessibilityID, "OkButton")
	require.NoError(t, err)
	assert.Equal(t, Element("42.1"), el)
}

func TestSession_FindElement_NoSuchElement(t *testing.T) {
	s, _ := newTestSession(t, map[string]http.HandlerFunc{
		"POST /session/s1/element": func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, CodeNoSuchElement, "Unable to locate element")
		},
	})

	_, err := s.FindElement(context.Background(), ByXPath, "//nope")
	require.Error(t, err)
	assert.True(t, IsNoSuchElement(err))
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "Unable to locate element")
}

func TestSession_LegacyStatusError(t *testing.T) {
	s, _ := newTestSession(t, map[string]http.HandlerFunc{
		"POST /session/s1/element": func(w http.ResponseWriter, r *http.Request) {
			// WinAppDriver answers 200/404 with a numeric status
			writeJSON(w, map[string]interface{}{
				"sessionId": "s1",
				"status":    7,
				"value":     map[string]interface{}{"message": "An element could not be located"},
			})
		},
	})

	_, err := s.FindElement(context.Background(), ByName, "OK")
	assert.True(t, IsNoSuchElement(err))
}

func TestSession_FindElements(t *testing.T) {
	s, _ := newTestSession(t, map[string]http.HandlerFunc{
		"POST /session/s1/element/p/elements": value([]interface{}{
			map[string]interface{}{ElementKey: "a"},
			map[string]interface{}{ElementKey: "b"},
		}),
	})

	els, err := s.FindElementsFrom(context.Background(), "p", ByTagName, "iframe")
	require.NoError(t, err)
	assert.Equal(t, []Element{"a", "b"}, els)
}

func TestSession_ElementQueries(t *testing.T) {
	s, _ := newTestSession(t, map[string]http.HandlerFunc{
		"GET /session/s1/element/e/text":              value("Welcome"),
		"GET /session/s1/element/e/attribute/class":   value("btn primary"),
		"GET /session/s1/element/e/attribute/data":    value(nil),
		"GET /session/s1/element/e/attribute/checked": value(true),
		"GET /session/s1/element/e/displayed":         value(true),
		"GET /session/s1/element/e/enabled":           value(false),
		"GET /session/s1/element/e/selected":          value(true),
		"GET /session/s1/element/e/name":              value("button"),
		"GET /session/s1/element/e/rect":              value(map[string]interface{}{"x": 10.5, "y": 20, "width": 100, "height": 30}),
	})
	ctx := context.Background()

	text, err := s.Text(ctx, "e")
	require.NoError(t, err)
	assert.Equal(t, "Welcome", text)

	class, _ := s.Attribute(ctx, "e", "class")
	assert.Equal(t, "btn primary", class)
	missing, err := s.Attribute(ctx, "e", "data")
	require.NoError(t, err)
	assert.Equal(t, "", missing)
	checked, _ := s.Attribute(ctx, "e", "checked")
	assert.Equal(t, "true", checked)

	displayed, _ := s.IsDisplayed(ctx, "e")
	enabled, _ := s.IsEnabled(ctx, "e")
	selected, _ := s.IsSelected(ctx, "e")
	assert.True(t, displayed)
	assert.False(t, enabled)
	assert.True(t, selected)

	tag, _ := s.TagName(ctx, "e")
	assert.Equal(t, "button", tag)

	rect, err := s.Rect(ctx, "e")
	require.NoError(t, err)
	assert.Equal(t, core.Bounds{X: 10, Y: 20, Width: 100, Height: 30}, rect.Bounds())
}

func TestSession_SendKeys(t *testing.T) {
	s, reqs := newTestSession(t, map[string]http.HandlerFunc{
		"POST /session/s1/element/e/value": value(nil),
	})

	require.NoError(t, s.SendKeys(context.Background(), "e", "ab"+KeyEnter))
	body := (*reqs)[0].Body
	assert.Equal(t, "ab"+KeyEnter, body["text"])
	assert.Equal(t, []interface{}{"a", "b", KeyEnter}, body["value"])
}

func TestSession_ExecuteScript_ElementRoundTrip(t *testing.T) {
	s, reqs := newTestSession(t, map[string]http.HandlerFunc{
		"POST /session/s1/execute/sync": value([]interface{}{
			map[string]interface{}{ElementKey: "child"},
			"text",
			map[string]interface{}{"count": 2},
		}),
	})

	result, err := s.ExecuteScript(context.Background(), "return [arguments[0].firstChild, 'text', {count: 2}]", Element("parent"), 3)
	require.NoError(t, err)

	items := result.([]interface{})
	assert.Equal(t, Element("child"), items[0])
	assert.Equal(t, "text", items[1])
	assert.Equal(t, map[string]interface{}{"count": float64(2)}, items[2])

	args := (*reqs)[0].Body["args"].([]interface{})
	assert.Equal(t, "parent", args[0].(map[string]interface{})[ElementKey])
	assert.Equal(t, float64(3), args[1])
}

func TestSession_ExecuteScript_JavaScriptError(t *testing.T) {
	s, _ := newTestSession(t, map[string]http.HandlerFunc{
		"POST /session/s1/execute/sync": func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusInternalServerError, CodeJavaScriptError, "x is not defined")
		},
	})

	_, err := s.ExecuteScript(context.Background(), "return x")
	assert.Equal(t, CodeJavaScriptError, ErrorCode(err))
	assert.False(t, IsRetryable(err))
}

func TestSession_Screenshot(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	s, _ := newTestSession(t, map[string]http.HandlerFunc{
		"GET /session/s1/screenshot":           value(base64.StdEncoding.EncodeToString(png)),
		"GET /session/s1/element/e/screenshot": value(base64.StdEncoding.EncodeToString(png)),
	})

	data, err := s.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, png, data)

	data, err = s.ElementScreenshot(context.Background(), "e")
	require.NoError(t, err)
	assert.Equal(t, png, data)
}

func TestSession_SwitchToFrame(t *testing.T) {
	s, reqs := newTestSession(t, map[string]http.HandlerFunc{
		"POST /session/s1/frame":        value(nil),
		"POST /session/s1/frame/parent": value(nil),
	})
	ctx := context.Background()

	require.NoError(t, s.SwitchToFrame(ctx, nil))
	require.NoError(t, s.SwitchToFrame(ctx, 1))
	require.NoError(t, s.SwitchToFrame(ctx, Element("f")))
	require.NoError(t, s.SwitchToParentFrame(ctx))

	assert.Nil(t, (*reqs)[0].Body["id"])
	assert.Equal(t, float64(1), (*reqs)[1].Body["id"])
	assert.Equal(t, "f", (*reqs)[2].Body["id"].(map[string]interface{})[ElementKey])
	assert.Equal(t, "/session/s1/frame/parent", (*reqs)[3].Path)
}

func TestSession_NoSuchFrame(t *testing.T) {
	s, _ := newTestSession(t, map[string]http.HandlerFunc{
		"POST /session/s1/frame": func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, CodeNoSuchFrame, "frame gone")
		},
	})
	err := s.SwitchToFrame(context.Background(), 0)
	assert.True(t, IsNoSuchFrame(err))
}

func TestSession_Windows(t *testing.T) {
	s, reqs := newTestSession(t, map[string]http.HandlerFunc{
		"GET /session/s1/window":         value("w1"),
		"GET /session/s1/window/handles": value([]string{"w1", "w2"}),
		"POST /session/s1/window":        value(nil),
		"DELETE /session/s1/window":      value([]string{"w1"}),
		"POST /session/s1/window/rect":   value(map[string]interface{}{}),
	})
	ctx := context.Background()

	h, _ := s.WindowHandle(ctx)
	assert.Equal(t, "w1", h)
	hs, _ := s.WindowHandles(ctx)
	assert.Equal(t, []string{"w1", "w2"}, hs)
	require.NoError(t, s.SwitchToWindow(ctx, "w2"))
	require.NoError(t, s.CloseWindow(ctx))
	require.NoError(t, s.SetWindowRect(ctx, Rect{Width: 1440, Height: 900}))

	assert.Equal(t, "w2", (*reqs)[2].Body["handle"])
	rectBody := (*reqs)[4].Body
	assert.Equal(t, float64(1440), rectBody["width"])
	assert.NotContains(t, rectBody, "x")
}

func TestSession_Alerts(t *testing.T) {
	s, _ := newTestSession(t, map[string]http.HandlerFunc{
		"GET /session/s1/alert/text":    value("Are you sure?"),
		"POST /session/s1/alert/accept": value(nil),
		"POST /session/s1/alert/dismiss": func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, CodeNoSuchAlert, "no alert open")
		},
	})
	ctx := context.Background()

	text, err := s.AlertText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Are you sure?", text)
	require.NoError(t, s.AcceptAlert(ctx))
	assert.True(t, IsNoSuchAlert(s.DismissAlert(ctx)))
}

func TestSession_Actions(t *testing.T) {
	s, reqs := newTestSession(t, map[string]http.HandlerFunc{
		"POST /session/s1/actions":   value(nil),
		"DELETE /session/s1/actions": value(nil),
	})
	ctx := context.Background()

	require.NoError(t, s.MoveTo(ctx, "e"))
	require.NoError(t, s.DoubleClick(ctx, "e"))
	require.NoError(t, s.ReleaseActions(ctx))

	seq := (*reqs)[1].Body["actions"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "pointer", seq["type"])
	assert.Len(t, seq["actions"], 6)
	assert.Equal(t, http.MethodDelete, (*reqs)[2].Method)
}

func TestSession_SetTimeouts(t *testing.T) {
	s, reqs := newTestSession(t, map[string]http.HandlerFunc{
		"POST /session/s1/timeouts": value(nil),
	})

	require.NoError(t, s.SetTimeouts(context.Background(), Timeouts{PageLoad: 30e9}))
	body := (*reqs)[0].Body
	assert.Equal(t, float64(0), body["implicit"])
	assert.Equal(t, float64(30000), body["pageLoad"])
	assert.NotContains(t, body, "script")
}

func TestSession_Delete(t *testing.T) {
	s, reqs := newTestSession(t, map[string]http.HandlerFunc{
		"DELETE /session/s1": value(nil),
	})
	require.NoError(t, s.Delete(context.Background()))
	assert.Equal(t, "/session/s1", (*reqs)[0].Path)
}

func TestSession_InvalidSession(t *testing.T) {
	s, _ := newTestSession(t, map[string]http.HandlerFunc{
		"GET /session/s1/title": func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, CodeInvalidSessionID, "session deleted")
		},
	})
	_, err := s.Title(context.Background())
	assert.True(t, IsInvalidSession(err))
}

func TestSession_NonJSONErrorBody(t *testing.T) {
	s, _ := newTestSession(t, map[string]http.HandlerFunc{
		"GET /session/s1/url": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		},
	})
	_, err := s.CurrentURL(context.Background())
	var wdErr *Error
	require.ErrorAs(t, err, &wdErr)
	assert.Equal(t, CodeUnknownError, wdErr.Code)
	assert.Equal(t, http.StatusBadGateway, wdErr.Status)
}
