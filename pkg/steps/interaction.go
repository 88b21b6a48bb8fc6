package steps

import (
	"context"
	"fmt"
)

func (w *World) click(ctx context.Context, ref string) error {
	el, err := w.element(ctx, ref)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

// clickWith binds arg into a templated locator such as
// //a[text()='{name}'] before clicking.
func (w *World) clickWith(ctx context.Context, ref, raw string) error {
	arg, err := w.Expand(ctx, raw)
	if err != nil {
		return err
	}
	el, err := w.element(ctx, ref, arg)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

func (w *World) doubleClick(ctx context.Context, ref string) error {
	el, err := w.element(ctx, ref)
	if err != nil {
		return err
	}
	return el.DoubleClick(ctx)
}

func (w *World) hover(ctx context.Context, ref string) error {
	el, err := w.element(ctx, ref)
	if err != nil {
		return err
	}
	return el.Hover(ctx)
}

func (w *World) enter(ctx context.Context, raw, ref string) error {
	text, err := w.Expand(ctx, raw)
	if err != nil {
		return err
	}
	return w.typeInto(ctx, ref, text)
}

func (w *World) typeInto(ctx context.Context, ref, text string) error {
	el, err := w.element(ctx, ref)
	if err != nil {
		return err
	}
	return el.Type(ctx, text)
}

func (w *World) clear(ctx context.Context, ref string) error {
	el, err := w.element(ctx, ref)
	if err != nil {
		return err
	}
	return el.Clear(ctx)
}

func (w *World) selectOption(ctx context.Context, raw, ref string) error {
	option, err := w.Expand(ctx, raw)
	if err != nil {
		return err
	}
	el, err := w.element(ctx, ref)
	if err != nil {
		return err
	}
	return el.Select(ctx, option)
}

func (w *World) pressKey(ctx context.Context, key, ref string) error {
	el, err := w.element(ctx, ref)
	if err != nil {
		return err
	}
	return el.PressKey(ctx, key)
}

// logIn fills the current page's username and password elements from the
// account and clicks submit.
func (w *World) logIn(ctx context.Context, alias string) error {
	user, err := w.accountField(alias, "username")
	if err != nil {
		return err
	}
	pass, err := w.accountField(alias, "password")
	if err != nil {
		return err
	}
	if err := w.typeInto(ctx, "username", user); err != nil {
		return fmt.Errorf("log in as %s: %w", alias, err)
	}
	if err := w.typeInto(ctx, "password", pass); err != nil {
		return fmt.Errorf("log in as %s: %w", alias, err)
	}
	if err := w.click(ctx, "submit"); err != nil {
		return fmt.Errorf("log in as %s: %w", alias, err)
	}
	return nil
}

func (w *World) enterAccountField(ctx context.Context, field, alias, ref string) error {
	value, err := w.accountField(alias, field)
	if err != nil {
		return err
	}
	return w.typeInto(ctx, ref, value)
}

func (w *World) saveText(ctx context.Context, ref, name string) error {
	el, err := w.element(ctx, ref)
	if err != nil {
		return err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return err
	}
	w.SetVar(name, text)
	return nil
}
