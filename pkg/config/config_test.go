package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))
	return dir
}

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("GHERKIN_RUNNER_ENVIRONMENT", "")
	dir := writeConfig(t, `
environment: qa
baseUrl: https://www.example.com
environments:
  qa:
    baseUrl: https://qa.example.com
    remoteUrl: http://grid:4444/wd/hub
    capabilities:
      goog:chromeOptions:
        args: [--lang=en]
  prod:
    baseUrl: https://example.com
target: browser
browser:
  name: firefox
  headless: true
  args: [--width=1200]
capabilities:
  acceptInsecureCerts: true
timeouts:
  element: 5s
  pollMax: 500ms
paths:
  pages: objects
run:
  tags: "@smoke"
  retries: 2
`)

	cfg, err := Load(LoadOptions{Root: dir})
	require.NoError(t, err)

	assert.Equal(t, "qa", cfg.Environment)
	assert.Equal(t, "https://qa.example.com", cfg.ResolveBaseURL())
	assert.Equal(t, "http://grid:4444/wd/hub", cfg.ResolveRemoteURL())
	assert.Equal(t, "firefox", cfg.Browser.Name)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, []string{"--width=1200"}, cfg.Browser.Args)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Element)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeouts.PollMax)
	assert.Equal(t, DefaultPollInitial, cfg.Timeouts.PollInitial)
	assert.Equal(t, filepath.Join(dir, "objects"), cfg.Paths.Pages)
	assert.Equal(t, filepath.Join(dir, "features"), cfg.Paths.Features)
	assert.Equal(t, "@smoke", cfg.Run.Tags)
	assert.Equal(t, 2, cfg.Run.Retries)
	assert.Equal(t, filepath.Join(dir, FileName), cfg.File)

	caps := cfg.MergedCapabilities()
	assert.Equal(t, true, caps["acceptInsecureCerts"])
	assert.Contains(t, caps, "goog:chromeOptions", "capability keys keep their case")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GHERKIN_RUNNER_ENVIRONMENT", "")
	cfg, err := Load(LoadOptions{Root: t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, DefaultEnvironment, cfg.Environment)
	assert.Equal(t, TargetBrowser, cfg.Target)
	assert.Equal(t, DefaultElementTimeout, cfg.Timeouts.Element)
	assert.True(t, cfg.Session.PerScenario)
	assert.Equal(t, core.DefaultArtifactConfig(), cfg.Artifacts)
	assert.Equal(t, 1, cfg.Run.Concurrency)
	assert.Empty(t, cfg.File)
}

func TestLoad_EnvironmentPrecedence(t *testing.T) {
	dir := writeConfig(t, `
environment: qa
environments:
  qa: { baseUrl: https://qa.example.com }
  staging: { baseUrl: https://staging.example.com }
  prod: { baseUrl: https://example.com }
`)

	t.Run("config value", func(t *testing.T) {
		t.Setenv("GHERKIN_RUNNER_ENVIRONMENT", "")
		cfg, err := Load(LoadOptions{Root: dir})
		require.NoError(t, err)
		assert.Equal(t, "qa", cfg.Environment)
	})

	t.Run("env var beats config", func(t *testing.T) {
		t.Setenv("GHERKIN_RUNNER_ENVIRONMENT", "staging")
		cfg, err := Load(LoadOptions{Root: dir})
		require.NoError(t, err)
		assert.Equal(t, "staging", cfg.Environment)
	})

	t.Run("flag beats env var", func(t *testing.T) {
		t.Setenv("GHERKIN_RUNNER_ENVIRONMENT", "staging")
		cfg, err := Load(LoadOptions{Root: dir, Environment: "prod"})
		require.NoError(t, err)
		assert.Equal(t, "prod", cfg.Environment)
		assert.Equal(t, "https://example.com", cfg.ResolveBaseURL())
	})
}

func TestLoad_UnknownEnvironment(t *testing.T) {
	dir := writeConfig(t, `
environments:
  qa: { baseUrl: https://qa.example.com }
`)
	_, err := Load(LoadOptions{Root: dir, Environment: "uat"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownEnvironment))
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GHERKIN_RUNNER_ENVIRONMENT", "")
	t.Setenv("GHERKIN_RUNNER_TIMEOUTS_ELEMENT", "3s")
	t.Setenv("GHERKIN_RUNNER_BROWSER_NAME", "edge")

	cfg, err := Load(LoadOptions{Root: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Element)
	assert.Equal(t, "edge", cfg.Browser.Name)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad target", "target: tv"},
		{"desktop without app", "target: desktop"},
		{"poll bounds", "timeouts: { pollInitial: 2s, pollMax: 1s }"},
		{"tolerance", "image: { tolerance: 300 }"},
		{"mismatch", "image: { maxMismatch: 2 }"},
		{"concurrency", "run: { concurrency: 0 }"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GHERKIN_RUNNER_ENVIRONMENT", "")
			_, err := Load(LoadOptions{Root: writeConfig(t, tt.content)})
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidConfig))
			assert.Equal(t, core.ErrCategoryConfig, core.CategoryOf(err))
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := writeConfig(t, "target: [browser")
	_, err := Load(LoadOptions{Root: dir})
	assert.Error(t, err)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(LoadOptions{Root: t.TempDir(), File: "other.yaml"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestLoad_YmlExtension(t *testing.T) {
	t.Setenv("GHERKIN_RUNNER_ENVIRONMENT", "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gherkin-runner.yml"), []byte("target: appium\n"), 0644))

	cfg, err := Load(LoadOptions{Root: dir})
	require.NoError(t, err)
	assert.Equal(t, TargetAppium, cfg.Target)
}

func TestConfig_ResolveURL(t *testing.T) {
	cfg := Default()
	cfg.BaseURL = "https://example.com/"

	tests := []struct {
		path string
		want string
	}{
		{"", "https://example.com/"},
		{"/login", "https://example.com/login"},
		{"login", "https://example.com/login"},
		{"https://other.com/x", "https://other.com/x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.ResolveURL(tt.path), tt.path)
	}
}

func TestConfig_ResolveURL_NoBase(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "/login", cfg.ResolveURL("/login"))
}

func TestResolveTimeout(t *testing.T) {
	tests := []struct {
		name                      string
		element, page, configured time.Duration
		want                      time.Duration
	}{
		{"element wins", time.Second, 2 * time.Second, 3 * time.Second, time.Second},
		{"page next", 0, 2 * time.Second, 3 * time.Second, 2 * time.Second},
		{"configured next", 0, 0, 3 * time.Second, 3 * time.Second},
		{"default last", 0, 0, 0, DefaultElementTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveTimeout(tt.element, tt.page, tt.configured))
		})
	}
}
