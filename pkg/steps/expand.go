package steps

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
)

var (
	dollarVar  = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	dataRef    = regexp.MustCompile(`^data:([A-Za-z0-9_.\-]+)$`)
	accountRef = regexp.MustCompile(`^account:([A-Za-z0-9_\-]+)\.([A-Za-z0-9_\-]+)$`)
)

// Expand resolves a step argument. A whole-argument "data:key" or
// "account:alias.field" is looked up; a data key that is not defined
// resolves to the key itself. Otherwise ${expr} is evaluated and, outside
// expressions, $VAR is replaced from scenario variables, then the process
// environment. Unknown $VAR references are left as written.
func (w *World) Expand(ctx context.Context, arg string) (string, error) {
	if m := dataRef.FindStringSubmatch(arg); m != nil {
		return w.dataValue(m[1]), nil
	}
	if m := accountRef.FindStringSubmatch(arg); m != nil {
		return w.accountField(m[1], m[2])
	}
	if !strings.Contains(arg, "$") {
		return arg, nil
	}
	return w.js.ExpandWith(ctx, arg, w.expandVars)
}

func (w *World) expandVars(text string) string {
	if !strings.Contains(text, "$") {
		return text
	}
	return dollarVar.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1:]
		if v, ok := w.vars[name]; ok {
			return v
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return m
	})
}

func (w *World) dataValue(key string) string {
	if w.data == nil {
		return key
	}
	return w.data.Resolve(key, w.cfg.Environment)
}

func (w *World) expandAll(ctx context.Context, args ...string) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		v, err := w.Expand(ctx, a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (w *World) accountField(alias, field string) (string, error) {
	if w.accounts == nil {
		return "", core.ErrAccountNotFound.WithMessagef("account %q is not defined: no accounts file loaded", alias)
	}
	return w.accounts.Field(alias, field, w.cfg.Environment)
}

// syncOutput copies output.* values set by scripts into scenario variables.
func (w *World) syncOutput() {
	for k, v := range w.js.Output() {
		if v == nil {
			continue
		}
		w.vars[k] = fmt.Sprint(v)
	}
}
