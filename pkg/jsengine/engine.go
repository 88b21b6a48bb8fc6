// Package jsengine evaluates JavaScript for scenarios: ${...} expressions in
// step arguments, inline scripts, and API helpers used to set up test data.
package jsengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
	"github.com/dop251/goja"
)

// DataFunc looks up a test data key.
type DataFunc func(key string) (interface{}, bool)

// AccountFunc returns the fields of an account alias.
type AccountFunc func(alias string) (map[string]string, error)

// Engine is a goja runtime scoped to one scenario. It is safe for
// concurrent use; evaluations are serialized.
type Engine struct {
	mu      sync.Mutex
	runtime *goja.Runtime
	vars    map[string]interface{}
	output  *goja.Object
	env     string
	client  *http.Client
	data    DataFunc
	account AccountFunc

	ctx context.Context // Context of the running evaluation
}

// Option configures an Engine.
type Option func(*Engine)

// WithEnvironment exposes the active environment name as runner.env.
func WithEnvironment(name string) Option {
	return func(e *Engine) { e.env = name }
}

// WithHTTPClient sets the client behind the http helpers.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithData backs the data() function.
func WithData(fn DataFunc) Option {
	return func(e *Engine) { e.data = fn }
}

// WithAccounts backs the account() function.
func WithAccounts(fn AccountFunc) Option {
	return func(e *Engine) { e.account = fn }
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		runtime: goja.New(),
		vars:    make(map[string]interface{}),
		client:  &http.Client{Timeout: 30 * time.Second},
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.runtime.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	e.setupBuiltins()
	return e
}

func (e *Engine) setupBuiltins() {
	rt := e.runtime

	console := rt.NewObject()
	_ = console.Set("log", e.consoleFunc(logger.Info))
	_ = console.Set("info", e.consoleFunc(logger.Info))
	_ = console.Set("warn", e.consoleFunc(logger.Warn))
	_ = console.Set("error", e.consoleFunc(logger.Error))
	_ = rt.Set("console", console)

	_ = rt.Set("json", e.jsonFunc)
	_ = rt.Set("http", e.httpModule())

	e.output = rt.NewObject()
	_ = rt.Set("output", e.output)

	runner := rt.NewObject()
	_ = runner.DefineAccessorProperty("env", rt.ToValue(func() string { return e.env }), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = runner.Set("get", func(name string) interface{} { return e.vars[name] })
	_ = rt.Set("runner", runner)

	_ = rt.Set("data", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		if e.data == nil {
			return goja.Undefined()
		}
		v, ok := e.data(key)
		if !ok {
			return goja.Undefined()
		}
		return rt.ToValue(v)
	})
	_ = rt.Set("account", func(call goja.FunctionCall) goja.Value {
		alias := call.Argument(0).String()
		if e.account == nil {
			panic(rt.NewGoError(fmt.Errorf("no accounts configured")))
		}
		fields, err := e.account(alias)
		if err != nil {
			panic(rt.NewGoError(err))
		}
		return rt.ToValue(fields)
	})
}

func (e *Engine) consoleFunc(log func(string, ...interface{})) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		log("[js] %s", strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (e *Engine) jsonFunc(call goja.FunctionCall) goja.Value {
	parse, ok := goja.AssertFunction(e.runtime.Get("JSON").ToObject(e.runtime).Get("parse"))
	if !ok {
		panic(e.runtime.NewTypeError("JSON.parse unavailable"))
	}
	v, err := parse(goja.Undefined(), call.Argument(0))
	if err != nil {
		panic(e.runtime.NewTypeError(fmt.Sprintf("invalid JSON: %v", err)))
	}
	return v
}

// Set defines a global variable.
func (e *Engine) Set(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars[name] = value
	_ = e.runtime.Set(name, value)
}

// Get returns a variable set with Set or exported through output.
func (e *Engine) Get(name string) (interface{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.vars[name]; ok {
		return v, true
	}
	if v := e.output.Get(name); v != nil && !goja.IsUndefined(v) {
		return v.Export(), true
	}
	return nil, false
}

// Vars returns a copy of the variables set with Set.
func (e *Engine) Vars() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]interface{}, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

// Output returns a copy of the values scripts stored on output.
func (e *Engine) Output() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]interface{})
	for _, k := range e.output.Keys() {
		out[k] = e.output.Get(k).Export()
	}
	return out
}

// Eval evaluates script and returns the exported result. Cancelling ctx
// interrupts the script.
func (e *Engine) Eval(ctx context.Context, script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.run(ctx, script)
	if err != nil {
		return nil, err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.Export(), nil
}

// EvalString evaluates script and formats the result. Undefined and null
// become the empty string.
func (e *Engine) EvalString(ctx context.Context, script string) (string, error) {
	v, err := e.Eval(ctx, script)
	if err != nil || v == nil {
		return "", err
	}
	return fmt.Sprintf("%v", v), nil
}

// Run executes script for its side effects.
func (e *Engine) Run(ctx context.Context, script string) error {
	_, err := e.Eval(ctx, script)
	return err
}

func (e *Engine) run(ctx context.Context, script string) (goja.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.ctx = ctx
	done := make(chan struct{})
	exited := make(chan struct{})
	defer func() {
		close(done)
		<-exited
		e.runtime.ClearInterrupt()
		e.ctx = context.Background()
	}()
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			e.runtime.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	v, err := e.runtime.RunString(script)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				if errors.Is(cause, context.DeadlineExceeded) {
					return nil, core.ErrTimeout.WithMessage("script timed out").WithCause(cause)
				}
				return nil, cause
			}
		}
		return nil, core.ErrScript.WithMessagef("script failed: %v", scriptMessage(err)).WithCause(err)
	}
	return v, nil
}

func scriptMessage(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value().String()
	}
	return err.Error()
}

// Expand replaces every ${expr} in text with the evaluated expression.
// Braces inside the expression may nest. An unterminated ${ is left as is.
func (e *Engine) Expand(ctx context.Context, text string) (string, error) {
	return e.ExpandWith(ctx, text, nil)
}

// ExpandWith is Expand that also passes the text outside ${...} through
// literal. Expression results are not passed to literal.
func (e *Engine) ExpandWith(ctx context.Context, text string, literal func(string) string) (string, error) {
	if literal == nil {
		literal = func(s string) string { return s }
	}
	var b strings.Builder
	rest := text
	for {
		idx := strings.Index(rest, "${")
		if idx < 0 {
			b.WriteString(literal(rest))
			return b.String(), nil
		}
		end := matchBrace(rest, idx+2)
		if end < 0 {
			b.WriteString(literal(rest))
			return b.String(), nil
		}
		b.WriteString(literal(rest[:idx]))
		expr := rest[idx+2 : end]
		value, err := e.EvalString(ctx, expr)
		if err != nil {
			return "", fmt.Errorf("expand ${%s}: %w", expr, err)
		}
		b.WriteString(value)
		rest = rest[end+1:]
	}
}

// matchBrace returns the index of the } closing a brace opened just before
// start, or -1.
func matchBrace(s string, start int) int {
	depth := 1
	var quote byte
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
