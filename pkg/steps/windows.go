package steps

import (
	"context"

	"github.com/devicelab-dev/gherkin-runner/pkg/config"
	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/webdriver"
)

// switchToNewWindow waits for a window other than the current one and
// switches to the most recently opened.
func (w *World) switchToNewWindow(ctx context.Context) error {
	sess, err := w.Session(ctx)
	if err != nil {
		return err
	}
	current, err := sess.WindowHandle(ctx)
	if err != nil {
		return err
	}
	if w.mainWindow == "" {
		w.mainWindow = current
	}
	var target string
	err = w.eventually(ctx, func() error {
		handles, err := sess.WindowHandles(ctx)
		if err != nil {
			return err
		}
		for i := len(handles) - 1; i >= 0; i-- {
			if handles[i] != current && handles[i] != w.mainWindow {
				target = handles[i]
				return nil
			}
		}
		return retryable(core.ErrConditionNotMet.WithMessagef("no new window opened (%d open)", len(handles)))
	})
	if err != nil {
		return err
	}
	return w.switchWindow(ctx, sess, target)
}

func (w *World) switchToMainWindow(ctx context.Context) error {
	sess, err := w.Session(ctx)
	if err != nil {
		return err
	}
	if w.mainWindow == "" {
		return w.finder.ExitFrames(ctx)
	}
	return w.switchWindow(ctx, sess, w.mainWindow)
}

func (w *World) switchWindow(ctx context.Context, sess Session, handle string) error {
	w.debug("switch to window %s", handle)
	if err := sess.SwitchToWindow(ctx, handle); err != nil {
		return err
	}
	return w.finder.ExitFrames(ctx)
}

func (w *World) switchToFrame(ctx context.Context, ref string) error {
	def, err := w.resolve(ref)
	if err != nil {
		return err
	}
	f, err := w.Finder(ctx)
	if err != nil {
		return err
	}
	return f.EnterFrame(ctx, def)
}

func (w *World) switchToMainContent(ctx context.Context) error {
	f, err := w.Finder(ctx)
	if err != nil {
		return err
	}
	return f.ExitFrames(ctx)
}

// alert runs fn once an alert is open.
func (w *World) alert(ctx context.Context, fn func(Session) error) error {
	sess, err := w.Session(ctx)
	if err != nil {
		return err
	}
	return w.eventually(ctx, func() error {
		err := fn(sess)
		if webdriver.IsNoSuchAlert(err) {
			return retryable(core.ErrConditionNotMet.WithMessage("no alert is open").WithCause(err))
		}
		return err
	})
}

func (w *World) acceptAlert(ctx context.Context) error {
	return w.alert(ctx, func(s Session) error { return s.AcceptAlert(ctx) })
}

func (w *World) dismissAlert(ctx context.Context) error {
	return w.alert(ctx, func(s Session) error { return s.DismissAlert(ctx) })
}

func (w *World) alertTextShouldBe(ctx context.Context, raw string) error {
	want, err := w.Expand(ctx, raw)
	if err != nil {
		return err
	}
	return w.alert(ctx, func(s Session) error {
		got, err := s.AlertText(ctx)
		if err != nil {
			return err
		}
		if got != want {
			return expectedActual(core.ErrTextMismatch.WithMessagef("alert text is %q, expected %q", got, want), want, got)
		}
		return nil
	})
}

// launchApplication starts the configured desktop application. A session
// that is already open is kept.
func (w *World) launchApplication(ctx context.Context) error {
	if w.cfg.Target != config.TargetDesktop {
		return core.ErrInvalidConfig.WithMessagef("target is %q; launching an application needs target desktop", w.cfg.Target)
	}
	if w.sess != nil {
		return nil
	}
	_, err := w.Session(ctx)
	return err
}

func (w *World) closeApplication(ctx context.Context) error {
	w.current = nil
	return w.closeSession(ctx)
}
