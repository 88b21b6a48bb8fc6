package element

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
	"github.com/disintegration/imaging"
)

// ImageOptions controls screenshot comparison.
type ImageOptions struct {
	Tolerance       int     // Per-channel difference ignored (0-255)
	MaxMismatch     float64 // Allowed ratio of differing pixels
	UpdateBaselines bool    // Create missing baselines instead of failing
}

// ImageDiff is the outcome of a comparison.
type ImageDiff struct {
	Width      int
	Height     int
	Mismatched int
	Ratio      float64
	Created    bool        // Baseline was missing and has been written
	Diff       image.Image // Actual image faded to gray, differing pixels in red
}

var diffMark = color.NRGBA{R: 255, A: 255}

// CompareImages compares two images pixel by pixel.
func CompareImages(actual, baseline image.Image, opts ImageOptions) (*ImageDiff, error) {
	a := imaging.Clone(actual)
	b := imaging.Clone(baseline)
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return nil, core.ErrImageMismatch.
			WithMessagef("image size %dx%d differs from baseline %dx%d", ab.Dx(), ab.Dy(), bb.Dx(), bb.Dy())
	}

	diff := imaging.AdjustBrightness(imaging.Grayscale(a), 40)
	tol := opts.Tolerance
	mismatched := 0
	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			i := a.PixOffset(x, y)
			j := b.PixOffset(x, y)
			if pixelDiffers(a.Pix[i:i+4], b.Pix[j:j+4], tol) {
				mismatched++
				diff.SetNRGBA(x, y, diffMark)
			}
		}
	}
	total := ab.Dx() * ab.Dy()
	ratio := 0.0
	if total > 0 {
		ratio = float64(mismatched) / float64(total)
	}
	return &ImageDiff{
		Width:      ab.Dx(),
		Height:     ab.Dy(),
		Mismatched: mismatched,
		Ratio:      ratio,
		Diff:       diff,
	}, nil
}

func pixelDiffers(p, q []uint8, tol int) bool {
	for c := 0; c < 4; c++ {
		d := int(p[c]) - int(q[c])
		if d < 0 {
			d = -d
		}
		if d > tol {
			return true
		}
	}
	return false
}

// VerifyBaseline compares a PNG screenshot with the baseline file. A diff
// image is written to diffPath when they differ. A missing baseline is
// created when UpdateBaselines is set and reported as an error otherwise.
func VerifyBaseline(screenshot []byte, baselinePath, diffPath string, opts ImageOptions) (*ImageDiff, error) {
	actual, err := imaging.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	baseline, err := imaging.Open(baselinePath)
	if errors.Is(err, fs.ErrNotExist) {
		if !opts.UpdateBaselines {
			return nil, core.ErrImageMismatch.
				WithMessagef("baseline %s does not exist", baselinePath).
				WithDetails(map[string]interface{}{"baseline": baselinePath})
		}
		if err := os.MkdirAll(filepath.Dir(baselinePath), 0o755); err != nil {
			return nil, fmt.Errorf("create baseline dir: %w", err)
		}
		if err := os.WriteFile(baselinePath, screenshot, 0o644); err != nil {
			return nil, fmt.Errorf("write baseline: %w", err)
		}
		logger.Info("Created baseline %s", baselinePath)
		b := actual.Bounds()
		return &ImageDiff{Width: b.Dx(), Height: b.Dy(), Created: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open baseline %s: %w", baselinePath, err)
	}

	result, err := CompareImages(actual, baseline, opts)
	if err != nil {
		return nil, err
	}
	if result.Mismatched == 0 {
		return result, nil
	}
	if diffPath != "" {
		if err := os.MkdirAll(filepath.Dir(diffPath), 0o755); err != nil {
			return result, fmt.Errorf("create diff dir: %w", err)
		}
		if err := imaging.Save(result.Diff, diffPath); err != nil {
			return result, fmt.Errorf("write diff image: %w", err)
		}
	}
	if result.Ratio > opts.MaxMismatch {
		return result, core.ErrImageMismatch.
			WithMessagef("%.2f%% of pixels differ from %s (allowed %.2f%%)", result.Ratio*100, filepath.Base(baselinePath), opts.MaxMismatch*100).
			WithDetails(map[string]interface{}{
				"baseline":   baselinePath,
				"diff":       diffPath,
				"mismatched": result.Mismatched,
				"ratio":      result.Ratio,
			})
	}
	return result, nil
}
