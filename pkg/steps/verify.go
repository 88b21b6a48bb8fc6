package steps

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/element"
)

func (w *World) shouldBe(ctx context.Context, ref, state string) error {
	cond, err := element.ConditionByName(state)
	if err != nil {
		return err
	}
	return w.waitFor(ctx, ref, cond)
}

func (w *World) waitFor(ctx context.Context, ref string, cond element.Condition) error {
	el, err := w.element(ctx, ref)
	if err != nil {
		return err
	}
	return el.WaitFor(ctx, cond)
}

func (w *World) shouldHaveText(ctx context.Context, ref, raw string) error {
	want, err := w.Expand(ctx, raw)
	if err != nil {
		return err
	}
	return w.waitFor(ctx, ref, element.TextEquals(want))
}

func (w *World) shouldContainText(ctx context.Context, ref, raw string) error {
	want, err := w.Expand(ctx, raw)
	if err != nil {
		return err
	}
	return w.waitFor(ctx, ref, element.TextContains(want))
}

func (w *World) shouldHaveAttribute(ctx context.Context, ref, name, raw string) error {
	want, err := w.Expand(ctx, raw)
	if err != nil {
		return err
	}
	return w.waitFor(ctx, ref, element.AttributeEquals(name, want))
}

func (w *World) elementShouldMatchImage(ctx context.Context, ref, baseline string) error {
	el, err := w.element(ctx, ref)
	if err != nil {
		return err
	}
	if err := el.WaitFor(ctx, element.Visible()); err != nil {
		return err
	}
	shot, err := el.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("screenshot of %s: %w", ref, err)
	}
	return w.matchImage(shot, baseline)
}

func (w *World) pageShouldMatchImage(ctx context.Context, baseline string) error {
	sess, err := w.Session(ctx)
	if err != nil {
		return err
	}
	shot, err := sess.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("page screenshot: %w", err)
	}
	return w.matchImage(shot, baseline)
}

// matchImage compares shot with a baseline under the baselines directory.
// A diff image is attached to the step when they differ.
func (w *World) matchImage(shot []byte, baseline string) error {
	if !strings.HasSuffix(strings.ToLower(baseline), ".png") {
		baseline += ".png"
	}
	baselinePath := baseline
	if !filepath.IsAbs(baselinePath) {
		baselinePath = filepath.Join(w.cfg.Paths.Baselines, baseline)
	}
	diffAbs, diffRel := w.assetPath(core.AttachmentImageDiff, ".png")

	opts := element.ImageOptions{
		Tolerance:       w.cfg.Image.Tolerance,
		MaxMismatch:     w.cfg.Image.MaxMismatch,
		UpdateBaselines: w.cfg.Image.UpdateBaselines,
	}
	diff, err := element.VerifyBaseline(shot, baselinePath, diffAbs, opts)
	if diff != nil && diff.Mismatched > 0 && diffAbs != "" {
		w.addAttachment(core.Attachment{
			Name:        core.AttachmentImageDiff,
			ContentType: core.ContentTypePNG,
			Path:        diffRel,
		})
	}
	return err
}
