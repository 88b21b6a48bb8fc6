// Package session opens WebDriver sessions for the configured target
// (browser, WinAppDriver desktop app or Appium) and exposes them as
// core.Driver.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/devicelab-dev/gherkin-runner/pkg/config"
	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
	"github.com/devicelab-dev/gherkin-runner/pkg/webdriver"
)

// startAttempts bounds session creation retries while a grid or driver is
// still coming up.
const startAttempts = 3

// Session is a live WebDriver session bound to a target.
type Session struct {
	*webdriver.Session

	target    string
	remoteURL string
	info      *core.PlatformInfo

	closeOnce sync.Once
	closeErr  error
}

// Open creates a session for cfg's target against its resolved remote URL.
func Open(ctx context.Context, cfg *config.Config, opts ...webdriver.Option) (*Session, error) {
	caps, err := BuildCapabilities(cfg)
	if err != nil {
		return nil, core.ErrInvalidConfig.WithMessage("cannot build capabilities").WithCause(err)
	}
	remoteURL := cfg.ResolveRemoteURL()
	if remoteURL == "" {
		return nil, core.ErrMissingRequired.WithMessage("remoteUrl is required")
	}
	if cfg.Log.Wire {
		opts = append(opts, webdriver.WithTrace(logger.GetWriter()))
	}
	client := webdriver.NewClient(remoteURL, opts...)

	logger.Info("Opening %s session at %s", cfg.Target, remoteURL)
	wd, err := startSession(ctx, client, caps)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Session:   wd,
		target:    cfg.Target,
		remoteURL: remoteURL,
	}
	s.info = s.platformInfo(cfg)
	logger.Info("Session %s started (%s %s)", wd.ID, s.info.BrowserName, s.info.BrowserVersion)

	if err := s.configure(ctx, cfg); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	return s, nil
}

func startSession(ctx context.Context, client *webdriver.Client, caps map[string]interface{}) (*webdriver.Session, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	var wd *webdriver.Session
	op := func() error {
		s, err := client.NewSession(ctx, caps)
		if err != nil {
			if errors.Is(err, core.ErrServerUnreachable) {
				logger.Warn("Session start failed, retrying: %v", err)
				return err
			}
			return backoff.Permanent(err)
		}
		wd = s
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, startAttempts-1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return wd, nil
}

// configure applies timeouts and window geometry. Desktop and mobile
// remotes may reject browser-only commands; those failures are logged.
func (s *Session) configure(ctx context.Context, cfg *config.Config) error {
	err := s.SetTimeouts(ctx, webdriver.Timeouts{
		Implicit: 0,
		PageLoad: cfg.Timeouts.PageLoad,
		Script:   cfg.Timeouts.Script,
	})
	if err != nil {
		if s.target == config.TargetBrowser {
			return fmt.Errorf("failed to set timeouts: %w", err)
		}
		logger.Warn("Remote rejected timeouts: %v", err)
	}

	if s.target != config.TargetBrowser {
		return nil
	}
	switch {
	case cfg.Browser.Maximize:
		if err := s.Maximize(ctx); err != nil {
			logger.Warn("Failed to maximize window: %v", err)
		}
	case cfg.Browser.Width > 0 && cfg.Browser.Height > 0:
		rect := webdriver.Rect{Width: float64(cfg.Browser.Width), Height: float64(cfg.Browser.Height)}
		if err := s.SetWindowRect(ctx, rect); err != nil {
			logger.Warn("Failed to size window: %v", err)
		}
	}
	if r, err := s.WindowRect(ctx); err == nil {
		s.info.WindowWidth = int(r.Width)
		s.info.WindowHeight = int(r.Height)
	}
	return nil
}

func (s *Session) platformInfo(cfg *config.Config) *core.PlatformInfo {
	info := &core.PlatformInfo{
		Target:      cfg.Target,
		SessionID:   s.ID,
		RemoteURL:   s.remoteURL,
		Environment: cfg.Environment,
	}
	caps := s.Capabilities
	info.Platform = strings.ToLower(capString(caps, "platformName", "platform"))
	info.BrowserName = capString(caps, "browserName")
	info.BrowserVersion = capString(caps, "browserVersion", "version")
	switch cfg.Target {
	case config.TargetDesktop:
		info.App = cfg.Desktop.App
		if info.Platform == "" {
			info.Platform = "windows"
		}
	case config.TargetAppium:
		info.App = capString(caps, "appium:app", "app", "appium:appPackage", "appium:bundleId")
	}
	return info
}

func capString(caps map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := caps[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Target returns browser, desktop or appium.
func (s *Session) Target() string {
	return s.target
}

// IsWeb reports whether elements are DOM nodes.
func (s *Session) IsWeb() bool {
	return s.target == config.TargetBrowser
}

// Hierarchy implements core.Driver.
func (s *Session) Hierarchy(ctx context.Context) ([]byte, error) {
	src, err := s.Source(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(src), nil
}

// GetPlatformInfo implements core.Driver.
func (s *Session) GetPlatformInfo() *core.PlatformInfo {
	return s.info
}

// Close implements core.Driver. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		logger.Info("Closing session %s", s.ID)
		s.closeErr = s.Delete(ctx)
	})
	return s.closeErr
}

var _ core.Driver = (*Session)(nil)
