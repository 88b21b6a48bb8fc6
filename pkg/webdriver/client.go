// Package webdriver is a W3C WebDriver client. It speaks to browser drivers,
// Selenium Grid, Appium and WinAppDriver (including its JSON Wire responses).
package webdriver

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ElementKey is the W3C web element identifier key.
const ElementKey = "element-6066-11e4-a52e-4f735466cecf"

const legacyElementKey = "ELEMENT"

// Locator strategies understood by the remote end.
const (
	ByCSS             = "css selector"
	ByXPath           = "xpath"
	ByLinkText        = "link text"
	ByPartialLinkText = "partial link text"
	ByTagName         = "tag name"
	ByID              = "id"
	ByName            = "name"
	ByClassName       = "class name"
	ByAccessibilityID = "accessibility id"
)

// Element is an opaque remote element reference.
type Element string

// Rect is an element or window rectangle in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Bounds converts r to integer bounds.
func (r Rect) Bounds() core.Bounds {
	return core.Bounds{X: int(r.X), Y: int(r.Y), Width: int(r.Width), Height: int(r.Height)}
}

// Timeouts are the session timeouts. Zero PageLoad/Script leave the remote
// default untouched; Implicit is always sent.
type Timeouts struct {
	Implicit time.Duration
	PageLoad time.Duration
	Script   time.Duration
}

// Client handles HTTP communication with a WebDriver server.
type Client struct {
	serverURL  string
	httpClient *http.Client
	trace      io.Writer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTrace writes every request and response body to w.
func WithTrace(w io.Writer) Option {
	return func(c *Client) { c.trace = w }
}

// NewClient creates a new WebDriver client.
func NewClient(serverURL string, opts ...Option) *Client {
	c := &Client{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // Long timeout for session start/app launch
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ServerURL returns the remote end URL.
func (c *Client) ServerURL() string {
	return c.serverURL
}

// Status queries /status and reports whether the remote end accepts sessions.
func (c *Client) Status(ctx context.Context) (bool, string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return false, "", err
	}
	var status struct {
		Ready   *bool  `json:"ready"`
		Message string `json:"message"`
	}
	if err := decodeValue(resp.Value, &status); err != nil {
		return false, "", err
	}
	// Older servers omit "ready"; a successful reply means ready.
	return status.Ready == nil || *status.Ready, status.Message, nil
}

// NewSession creates a new session with the given capabilities.
func (c *Client) NewSession(ctx context.Context, capabilities map[string]interface{}) (*Session, error) {
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": capabilities,
			"firstMatch":  []interface{}{map[string]interface{}{}},
		},
		// JSON Wire servers (WinAppDriver) read desiredCapabilities
		"desiredCapabilities": capabilities,
	}

	resp, err := c.do(ctx, http.MethodPost, "/session", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	var value struct {
		SessionID    string                 `json:"sessionId"`
		Capabilities map[string]interface{} `json:"capabilities"`
	}
	if err := decodeValue(resp.Value, &value); err != nil {
		return nil, fmt.Errorf("invalid session response: %w", err)
	}

	s := &Session{client: c, ID: value.SessionID, Capabilities: value.Capabilities}
	if s.ID == "" {
		// JSON Wire: sessionId at top level, value holds the capabilities
		s.ID = resp.SessionID
		if s.Capabilities == nil {
			var caps map[string]interface{}
			if err := decodeValue(resp.Value, &caps); err == nil {
				s.Capabilities = caps
			}
		}
	}
	if s.ID == "" {
		return nil, fmt.Errorf("no session ID in response")
	}
	return s, nil
}

// HTTP Helpers

type response struct {
	SessionID string              `json:"sessionId"`
	Status    *int                `json:"status"`
	Value     jsoniter.RawMessage `json:"value"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*response, error) {
	url := c.serverURL + path

	var bodyReader io.Reader
	var jsonBody []byte
	if method == http.MethodPost {
		if body == nil {
			body = struct{}{}
		}
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, core.ErrServerUnreachable.
			WithMessagef("webdriver server unreachable at %s", c.serverURL).
			WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	logger.Debug("webdriver %s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	if c.trace != nil {
		fmt.Fprintf(c.trace, "> %s %s %s\n< %d %s\n", method, path, traceBody(jsonBody), resp.StatusCode, traceBody(respBody))
	}

	var result response
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			if resp.StatusCode >= 400 {
				return nil, &Error{Code: CodeUnknownError, Message: strings.TrimSpace(string(respBody)), Status: resp.StatusCode}
			}
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	legacyFailure := result.Status != nil && *result.Status != 0
	if resp.StatusCode >= 400 || legacyFailure {
		return nil, parseError(&result, resp.StatusCode)
	}
	return &result, nil
}

func parseError(resp *response, httpStatus int) *Error {
	var value struct {
		Error      string `json:"error"`
		Message    string `json:"message"`
		Stacktrace string `json:"stacktrace"`
	}
	_ = decodeValue(resp.Value, &value)

	wdErr := &Error{
		Code:       value.Error,
		Message:    value.Message,
		Status:     httpStatus,
		Stacktrace: value.Stacktrace,
	}
	if resp.Status != nil && *resp.Status != 0 {
		if code, ok := legacyStatus[*resp.Status]; ok && wdErr.Code == "" {
			wdErr.Code = code
		}
	}
	if wdErr.Code == "" {
		wdErr.Code = CodeUnknownError
	}
	return wdErr
}

func decodeValue(raw jsoniter.RawMessage, out interface{}) error {
	if out == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func decodeElement(raw jsoniter.RawMessage) (Element, error) {
	var ref map[string]interface{}
	if err := decodeValue(raw, &ref); err != nil {
		return "", fmt.Errorf("invalid element response: %w", err)
	}
	id := extractElementID(ref)
	if id == "" {
		return "", &Error{Code: CodeNoSuchElement, Message: "empty element reference"}
	}
	return id, nil
}

func extractElementID(value map[string]interface{}) Element {
	// W3C format
	if id, ok := value[ElementKey].(string); ok {
		return Element(id)
	}
	// Legacy format
	if id, ok := value[legacyElementKey].(string); ok {
		return Element(id)
	}
	return ""
}

// elementRef is the wire form of an element argument.
func elementRef(el Element) map[string]interface{} {
	return map[string]interface{}{ElementKey: string(el), legacyElementKey: string(el)}
}

func decodeBase64PNG(raw jsoniter.RawMessage) ([]byte, error) {
	var encoded string
	if err := decodeValue(raw, &encoded); err != nil {
		return nil, fmt.Errorf("invalid screenshot response: %w", err)
	}
	return base64.StdEncoding.DecodeString(encoded)
}

const maxTraceBody = 2048

func traceBody(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > maxTraceBody {
		return fmt.Sprintf("%s... (%d bytes)", b[:maxTraceBody], len(b))
	}
	return string(b)
}
