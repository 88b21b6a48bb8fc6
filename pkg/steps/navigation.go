package steps

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
)

func (w *World) openPage(ctx context.Context, name string) error {
	p, err := w.pages.Page(name)
	if err != nil {
		return err
	}
	if p.URL == "" {
		return core.ErrMissingRequired.WithMessagef("page %q has no url to open", p.Name)
	}
	sess, err := w.Session(ctx)
	if err != nil {
		return err
	}
	target := w.cfg.ResolveURL(p.URL)
	w.debug("open page %s at %s", p.Name, target)
	if err := sess.Navigate(ctx, target); err != nil {
		return fmt.Errorf("open %s: %w", p.Name, err)
	}
	w.current = p
	return nil
}

// onPage makes name the current page, opening it when the browser is
// elsewhere. Pages without a url only change the lookup context.
func (w *World) onPage(ctx context.Context, name string) error {
	p, err := w.pages.Page(name)
	if err != nil {
		return err
	}
	if p.URL == "" {
		w.current = p
		return nil
	}
	sess, err := w.Session(ctx)
	if err != nil {
		return err
	}
	if cur, err := sess.CurrentURL(ctx); err == nil && samePath(cur, w.cfg.ResolveURL(p.URL)) {
		w.current = p
		return nil
	}
	return w.openPage(ctx, name)
}

func samePath(current, want string) bool {
	c, err1 := url.Parse(current)
	t, err2 := url.Parse(want)
	if err1 != nil || err2 != nil {
		return current == want
	}
	if t.Host != "" && !strings.EqualFold(c.Host, t.Host) {
		return false
	}
	return strings.TrimRight(c.Path, "/") == strings.TrimRight(t.Path, "/")
}

func (w *World) navigateTo(ctx context.Context, raw string) error {
	target, err := w.Expand(ctx, raw)
	if err != nil {
		return err
	}
	sess, err := w.Session(ctx)
	if err != nil {
		return err
	}
	return sess.Navigate(ctx, w.cfg.ResolveURL(target))
}

func (w *World) refresh(ctx context.Context) error {
	sess, err := w.Session(ctx)
	if err != nil {
		return err
	}
	return sess.Refresh(ctx)
}

func (w *World) goBack(ctx context.Context) error {
	sess, err := w.Session(ctx)
	if err != nil {
		return err
	}
	return sess.Back(ctx)
}

func (w *World) titleShouldBe(ctx context.Context, raw string) error {
	want, err := w.Expand(ctx, raw)
	if err != nil {
		return err
	}
	sess, err := w.Session(ctx)
	if err != nil {
		return err
	}
	return w.eventually(ctx, func() error {
		got, err := sess.Title(ctx)
		if err != nil {
			return err
		}
		if got != want {
			return retryable(expectedActual(core.ErrTextMismatch.WithMessagef("page title is %q, expected %q", got, want), want, got))
		}
		return nil
	})
}

func (w *World) urlShouldContain(ctx context.Context, raw string) error {
	want, err := w.Expand(ctx, raw)
	if err != nil {
		return err
	}
	sess, err := w.Session(ctx)
	if err != nil {
		return err
	}
	return w.eventually(ctx, func() error {
		got, err := sess.CurrentURL(ctx)
		if err != nil {
			return err
		}
		if !strings.Contains(got, want) {
			return retryable(expectedActual(core.ErrTextMismatch.WithMessagef("url %q does not contain %q", got, want), want, got))
		}
		return nil
	})
}
