package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
)

// runScript executes js in the scenario's script engine. Values stored
// on output become scenario variables.
func (w *World) runScript(ctx context.Context, js string) error {
	if err := w.js.Run(ctx, js); err != nil {
		return err
	}
	w.syncOutput()
	return nil
}

// runScriptFile executes a file from the scripts directory.
func (w *World) runScriptFile(ctx context.Context, name string) error {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.cfg.Paths.Scripts, name)
	}
	src, err := os.ReadFile(path) //#nosec G304 -- workspace script
	if err != nil {
		return core.ErrScript.WithMessagef("cannot read script %s", name).WithCause(err)
	}
	return w.runScript(ctx, string(src))
}

// runBrowserScript executes js in the page. A non-nil result is saved as
// the variable "result".
func (w *World) runBrowserScript(ctx context.Context, raw string) error {
	js, err := w.Expand(ctx, raw)
	if err != nil {
		return err
	}
	sess, err := w.Session(ctx)
	if err != nil {
		return err
	}
	v, err := sess.ExecuteScript(ctx, js)
	if err != nil {
		return core.ErrScript.WithMessage("browser script failed").WithCause(err)
	}
	if v != nil {
		w.SetVar("result", fmt.Sprint(v))
	}
	return nil
}

func (w *World) evaluate(ctx context.Context, expr, name string) error {
	v, err := w.js.EvalString(ctx, expr)
	if err != nil {
		return err
	}
	w.SetVar(name, v)
	w.syncOutput()
	return nil
}

func (w *World) wait(ctx context.Context, seconds float64) error {
	return sleep(ctx, time.Duration(seconds*float64(time.Second)))
}

// takeScreenshot attaches a screenshot of the page to the step.
func (w *World) takeScreenshot(ctx context.Context) error {
	sess, err := w.Session(ctx)
	if err != nil {
		return err
	}
	data, err := sess.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	_, err = w.attachData(core.AttachmentScreenshot, ".png", core.ContentTypePNG, data)
	return err
}
