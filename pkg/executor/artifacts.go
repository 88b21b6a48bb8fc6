package executor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
	"github.com/devicelab-dev/gherkin-runner/pkg/report"
)

// captureTimeout bounds artifact capture after a step, which may run on a
// cancelled run or a hung browser.
const captureTimeout = 15 * time.Second

// captureArtifacts takes the screenshot and the page source in parallel.
// Failed captures are logged and left out.
func captureArtifacts(ctx context.Context, d core.Driver, cfg core.ArtifactConfig) []core.Attachment {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
	defer cancel()

	var shot, source []byte
	var g errgroup.Group
	if cfg.Screenshot {
		g.Go(func() error {
			data, err := d.Screenshot(ctx)
			if err != nil {
				logger.Warn("Screenshot capture failed: %v", err)
				return nil
			}
			shot = data
			return nil
		})
	}
	if cfg.PageSource {
		g.Go(func() error {
			data, err := d.Hierarchy(ctx)
			if err != nil {
				logger.Warn("Page source capture failed: %v", err)
				return nil
			}
			source = data
			return nil
		})
	}
	_ = g.Wait()

	var out []core.Attachment
	if len(shot) > 0 {
		out = append(out, core.NewScreenshotAttachment("", shot))
	}
	if len(source) > 0 {
		out = append(out, core.NewPageSourceAttachment("", source))
	}
	return out
}

// saveAttachments writes in-memory attachments under the step's assets and
// converts all of them to report attachments.
func (r *Runner) saveAttachments(run *scenarioRun, pos int, attachments []core.Attachment) []report.Attachment {
	out := make([]report.Attachment, 0, len(attachments))
	for i := range attachments {
		a := &attachments[i]
		if a.Path == "" {
			if len(a.Body) == 0 {
				continue
			}
			rel, err := run.writer.SaveAsset(pos, a.Name, extension(a.ContentType), a.Body)
			if err != nil {
				logger.Warn("Failed to save %s for %s: %v", a.Name, run.result.ID, err)
				continue
			}
			a.Path = rel
		}
		out = append(out, report.Attachment{
			Name:        a.Name,
			ContentType: a.ContentType,
			Path:        a.Path,
		})
	}
	return out
}

func extension(contentType string) string {
	switch contentType {
	case core.ContentTypePNG:
		return "png"
	case core.ContentTypeHTML:
		return "html"
	case core.ContentTypeXML:
		return "xml"
	case core.ContentTypeJSON:
		return "json"
	default:
		return "txt"
	}
}
