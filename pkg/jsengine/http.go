package jsengine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dop251/goja"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// httpModule builds the http global: get, post, put, patch, delete and
// request(method, url, opts). Options: body (string or object), headers,
// timeout (ms).
func (e *Engine) httpModule() *goja.Object {
	obj := e.runtime.NewObject()
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		m := method
		_ = obj.Set(strings.ToLower(m), func(call goja.FunctionCall) goja.Value {
			return e.request(m, call.Argument(0), call.Argument(1))
		})
	}
	_ = obj.Set("request", func(call goja.FunctionCall) goja.Value {
		return e.request(strings.ToUpper(call.Argument(0).String()), call.Argument(1), call.Argument(2))
	})
	return obj
}

type requestOptions struct {
	body        io.Reader
	contentType string
	headers     map[string]string
	timeout     time.Duration
}

func (e *Engine) parseRequestOptions(v goja.Value) (requestOptions, error) {
	opts := requestOptions{headers: map[string]string{}}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return opts, nil
	}
	m, ok := v.Export().(map[string]interface{})
	if !ok {
		return opts, fmt.Errorf("options must be an object")
	}
	switch b := m["body"].(type) {
	case nil:
	case string:
		opts.body = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return opts, fmt.Errorf("encode body: %w", err)
		}
		opts.body = bytes.NewReader(data)
		opts.contentType = "application/json"
	}
	if h, ok := m["headers"].(map[string]interface{}); ok {
		for k, v := range h {
			opts.headers[k] = fmt.Sprint(v)
		}
	}
	switch t := m["timeout"].(type) {
	case int64:
		opts.timeout = time.Duration(t) * time.Millisecond
	case float64:
		opts.timeout = time.Duration(t * float64(time.Millisecond))
	}
	return opts, nil
}

// request performs the call and returns {status, ok, body, headers, json}.
// Transport failures throw; HTTP error statuses do not.
func (e *Engine) request(method string, urlArg, optsArg goja.Value) goja.Value {
	if urlArg == nil || goja.IsUndefined(urlArg) {
		panic(e.runtime.NewTypeError(fmt.Sprintf("http.%s requires a url", strings.ToLower(method))))
	}
	url := urlArg.String()
	opts, err := e.parseRequestOptions(optsArg)
	if err != nil {
		panic(e.runtime.NewTypeError(fmt.Sprintf("http.%s: %v", strings.ToLower(method), err)))
	}

	ctx := e.ctx
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, url, opts.body)
	if err != nil {
		panic(e.runtime.NewGoError(fmt.Errorf("build request: %w", err)))
	}
	if opts.contentType != "" {
		req.Header.Set("Content-Type", opts.contentType)
	}
	for k, v := range opts.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		panic(e.runtime.NewGoError(fmt.Errorf("%s %s: %w", method, url, err)))
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		panic(e.runtime.NewGoError(fmt.Errorf("read response: %w", err)))
	}

	headers := make(map[string]interface{}, len(resp.Header))
	for k, v := range resp.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	out := map[string]interface{}{
		"status":  resp.StatusCode,
		"ok":      resp.StatusCode >= 200 && resp.StatusCode < 300,
		"body":    string(data),
		"headers": headers,
		"json":    nil,
	}
	var parsed interface{}
	if len(data) > 0 && json.Unmarshal(data, &parsed) == nil {
		out["json"] = parsed
	}
	return e.runtime.ToValue(out)
}
