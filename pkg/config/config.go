// Package config handles configuration for gherkin-runner.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Targets
const (
	TargetBrowser = "browser"
	TargetDesktop = "desktop"
	TargetAppium  = "appium"
)

// DefaultEnvironment is used when no environment is selected anywhere.
const DefaultEnvironment = "default"

const envPrefix = "GHERKIN_RUNNER"

// Default timeouts
const (
	DefaultElementTimeout = 10 * time.Second
	DefaultPageLoad       = 30 * time.Second
	DefaultScript         = 30 * time.Second
	DefaultPollInitial    = 100 * time.Millisecond
	DefaultPollMax        = time.Second
)

// Config represents the workspace configuration (gherkin-runner.yaml).
type Config struct {
	Environment  string                 `mapstructure:"environment"`
	Environments map[string]Environment `mapstructure:"environments"`
	BaseURL      string                 `mapstructure:"baseUrl"`
	RemoteURL    string                 `mapstructure:"remoteUrl"`

	Target       string                 `mapstructure:"target"` // browser | desktop | appium
	Browser      BrowserConfig          `mapstructure:"browser"`
	Desktop      DesktopConfig          `mapstructure:"desktop"`
	Capabilities map[string]interface{} `mapstructure:"-"` // Read with yaml.v3 to keep key case

	Timeouts  Timeouts            `mapstructure:"timeouts"`
	Paths     Paths               `mapstructure:"paths"`
	Session   SessionConfig       `mapstructure:"session"`
	Artifacts core.ArtifactConfig `mapstructure:"artifacts"`
	Image     ImageConfig         `mapstructure:"image"`
	Log       LogConfig           `mapstructure:"log"`
	Run       RunConfig           `mapstructure:"run"`

	// Resolved at load time
	Root string `mapstructure:"-"` // Workspace root
	File string `mapstructure:"-"` // Config file used, empty when none
}

// Environment holds per-environment overrides.
type Environment struct {
	BaseURL      string                 `mapstructure:"baseUrl"`
	RemoteURL    string                 `mapstructure:"remoteUrl"`
	Capabilities map[string]interface{} `mapstructure:"-"`
}

// BrowserConfig configures browser sessions.
type BrowserConfig struct {
	Name     string   `mapstructure:"name"`
	Headless bool     `mapstructure:"headless"`
	Args     []string `mapstructure:"args"`
	Width    int      `mapstructure:"width"`
	Height   int      `mapstructure:"height"`
	Maximize bool     `mapstructure:"maximize"`

	AcceptInsecureCerts bool   `mapstructure:"acceptInsecureCerts"`
	PageLoadStrategy    string `mapstructure:"pageLoadStrategy"`
}

// DesktopConfig configures WinAppDriver sessions.
type DesktopConfig struct {
	App        string `mapstructure:"app"` // Executable path, app id, or "Root" for the desktop
	Arguments  string `mapstructure:"arguments"`
	WorkingDir string `mapstructure:"workingDir"`
}

// Timeouts holds the configured waits.
type Timeouts struct {
	Element     time.Duration `mapstructure:"element"`
	PageLoad    time.Duration `mapstructure:"pageLoad"`
	Script      time.Duration `mapstructure:"script"`
	PollInitial time.Duration `mapstructure:"pollInitial"`
	PollMax     time.Duration `mapstructure:"pollMax"`
}

// Paths locates workspace content. Relative paths are resolved against Root.
type Paths struct {
	Features  string `mapstructure:"features"`
	Pages     string `mapstructure:"pages"`
	Accounts  string `mapstructure:"accounts"`
	Data      string `mapstructure:"data"`
	Baselines string `mapstructure:"baselines"`
	Reports   string `mapstructure:"reports"`
	Scripts   string `mapstructure:"scripts"`
}

// SessionConfig controls driver session lifetime.
type SessionConfig struct {
	PerScenario bool `mapstructure:"perScenario"`
}

// ImageConfig controls screenshot comparison.
type ImageConfig struct {
	Tolerance       int     `mapstructure:"tolerance"`   // Per-channel difference ignored (0-255)
	MaxMismatch     float64 `mapstructure:"maxMismatch"` // Allowed ratio of differing pixels
	UpdateBaselines bool    `mapstructure:"updateBaselines"`
}

// LogConfig configures the run log.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
	Wire       bool   `mapstructure:"wire"` // Trace WebDriver traffic to the log file
}

// RunConfig holds suite execution settings that CLI flags may override.
type RunConfig struct {
	Tags          string `mapstructure:"tags"` // godog tag expression
	Concurrency   int    `mapstructure:"concurrency"`
	Retries       int    `mapstructure:"retries"`
	Randomize     int64  `mapstructure:"randomize"` // Seed; 0 keeps file order, -1 picks one
	StopOnFailure bool   `mapstructure:"stopOnFailure"`
	Strict        bool   `mapstructure:"strict"`
}

// LoadOptions selects the config file and environment.
type LoadOptions struct {
	File        string // Explicit config file; empty searches Root
	Root        string // Workspace root; empty uses GetRoot()
	Environment string // --env flag value
}

// SetDefaults registers default values.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", "")
	v.SetDefault("baseUrl", "")
	v.SetDefault("remoteUrl", "http://localhost:4444")
	v.SetDefault("target", TargetBrowser)

	v.SetDefault("browser.name", "chrome")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.width", 0)
	v.SetDefault("browser.height", 0)
	v.SetDefault("browser.maximize", false)
	v.SetDefault("browser.acceptInsecureCerts", false)
	v.SetDefault("browser.pageLoadStrategy", "")

	v.SetDefault("desktop.app", "")
	v.SetDefault("desktop.arguments", "")
	v.SetDefault("desktop.workingDir", "")

	v.SetDefault("timeouts.element", DefaultElementTimeout)
	v.SetDefault("timeouts.pageLoad", DefaultPageLoad)
	v.SetDefault("timeouts.script", DefaultScript)
	v.SetDefault("timeouts.pollInitial", DefaultPollInitial)
	v.SetDefault("timeouts.pollMax", DefaultPollMax)

	v.SetDefault("paths.features", "features")
	v.SetDefault("paths.pages", "pages")
	v.SetDefault("paths.accounts", "accounts.yaml")
	v.SetDefault("paths.data", "data")
	v.SetDefault("paths.baselines", "baselines")
	v.SetDefault("paths.reports", "reports")
	v.SetDefault("paths.scripts", "scripts")

	v.SetDefault("session.perScenario", true)

	v.SetDefault("artifacts.captureOnFailure", true)
	v.SetDefault("artifacts.captureOnSuccess", false)
	v.SetDefault("artifacts.screenshot", true)
	v.SetDefault("artifacts.pageSource", true)

	v.SetDefault("image.tolerance", 8)
	v.SetDefault("image.maxMismatch", 0.01)
	v.SetDefault("image.updateBaselines", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxSizeMB", 10)
	v.SetDefault("log.maxBackups", 3)
	v.SetDefault("log.wire", false)

	v.SetDefault("run.tags", "")
	v.SetDefault("run.concurrency", 1)
	v.SetDefault("run.retries", 0)
	v.SetDefault("run.randomize", 0)
	v.SetDefault("run.stopOnFailure", false)
	v.SetDefault("run.strict", false)
}

// NewViper returns a viper instance with defaults and GHERKIN_RUNNER_* env
// binding. Callers may bind CLI flags onto it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the configuration with only defaults applied.
func Default() *Config {
	cfg, err := decode(NewViper())
	if err != nil {
		panic(fmt.Sprintf("failed to decode default config: %v", err))
	}
	cfg.Environment = DefaultEnvironment
	return cfg
}

// Load loads configuration from a file.
func Load(opts LoadOptions) (*Config, error) {
	return LoadWithViper(NewViper(), opts)
}

// LoadWithViper loads configuration into a caller-prepared viper instance.
func LoadWithViper(v *viper.Viper, opts LoadOptions) (*Config, error) {
	root := opts.Root
	if root == "" {
		root = GetRoot()
	}

	file := opts.File
	if file == "" {
		file = findConfigFile(root)
	} else {
		file = ResolvePath(root, file)
		if !fileExists(file) {
			return nil, core.ErrInvalidConfig.WithMessagef("config file not found: %s", file)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, core.ErrInvalidConfig.WithMessagef("failed to read %s", file).WithCause(err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.Root = root
	cfg.File = file

	if file != "" {
		if err := loadCapabilities(file, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Environment = resolveEnvironment(opts.Environment, cfg.Environment)
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, core.ErrInvalidConfig.WithMessage("error decoding config").WithCause(err)
	}
	if cfg.Capabilities == nil {
		cfg.Capabilities = map[string]interface{}{}
	}
	return &cfg, nil
}

func findConfigFile(root string) string {
	for _, name := range []string{FileName, altFileName} {
		p := filepath.Join(root, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// resolveEnvironment applies: --env, $GHERKIN_RUNNER_ENVIRONMENT, config, default.
func resolveEnvironment(flag, configured string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(envPrefix + "_ENVIRONMENT"); env != "" {
		return env
	}
	if configured != "" {
		return configured
	}
	return DefaultEnvironment
}

// capabilityFile mirrors the parts of the config that must keep key case.
type capabilityFile struct {
	Capabilities map[string]interface{} `yaml:"capabilities"`
	Environments map[string]struct {
		Capabilities map[string]interface{} `yaml:"capabilities"`
	} `yaml:"environments"`
}

// loadCapabilities re-reads capability maps with yaml.v3, since viper
// lower-cases keys such as goog:chromeOptions.
func loadCapabilities(file string, cfg *Config) error {
	data, err := os.ReadFile(file) //#nosec G304 -- user-provided config file
	if err != nil {
		return core.ErrInvalidConfig.WithMessagef("failed to read %s", file).WithCause(err)
	}
	var raw capabilityFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return core.ErrInvalidConfig.WithMessagef("invalid YAML in %s", file).WithCause(err)
	}
	if raw.Capabilities != nil {
		cfg.Capabilities = raw.Capabilities
	}
	for name, env := range raw.Environments {
		key := strings.ToLower(name)
		e := cfg.Environments[key]
		e.Capabilities = env.Capabilities
		if cfg.Environments == nil {
			cfg.Environments = map[string]Environment{}
		}
		cfg.Environments[key] = e
	}
	return nil
}

func (c *Config) resolvePaths() {
	c.Paths.Features = ResolvePath(c.Root, c.Paths.Features)
	c.Paths.Pages = ResolvePath(c.Root, c.Paths.Pages)
	c.Paths.Accounts = ResolvePath(c.Root, c.Paths.Accounts)
	c.Paths.Data = ResolvePath(c.Root, c.Paths.Data)
	c.Paths.Baselines = ResolvePath(c.Root, c.Paths.Baselines)
	c.Paths.Reports = ResolvePath(c.Root, c.Paths.Reports)
	c.Paths.Scripts = ResolvePath(c.Root, c.Paths.Scripts)
	if c.Log.File != "" {
		c.Log.File = ResolvePath(c.Root, c.Log.File)
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	var errs []error

	switch c.Target {
	case TargetBrowser, TargetDesktop, TargetAppium:
	default:
		errs = append(errs, fmt.Errorf("target must be browser, desktop or appium, got %q", c.Target))
	}
	if c.Target == TargetDesktop && c.Desktop.App == "" {
		errs = append(errs, errors.New("desktop.app is required for desktop target"))
	}
	if c.Timeouts.Element < 0 || c.Timeouts.PageLoad < 0 || c.Timeouts.Script < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.Timeouts.PollInitial <= 0 || c.Timeouts.PollMax < c.Timeouts.PollInitial {
		errs = append(errs, errors.New("timeouts.pollInitial must be positive and not exceed timeouts.pollMax"))
	}
	if c.Image.Tolerance < 0 || c.Image.Tolerance > 255 {
		errs = append(errs, fmt.Errorf("image.tolerance must be within 0-255, got %d", c.Image.Tolerance))
	}
	if c.Image.MaxMismatch < 0 || c.Image.MaxMismatch > 1 {
		errs = append(errs, fmt.Errorf("image.maxMismatch must be within 0-1, got %v", c.Image.MaxMismatch))
	}
	if c.Run.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("run.concurrency must be at least 1, got %d", c.Run.Concurrency))
	}
	if c.Run.Retries < 0 {
		errs = append(errs, fmt.Errorf("run.retries must not be negative, got %d", c.Run.Retries))
	}
	if len(errs) > 0 {
		return core.ErrInvalidConfig.WithMessage("invalid configuration").WithCause(errors.Join(errs...))
	}

	if c.Environment != DefaultEnvironment && len(c.Environments) > 0 {
		if _, ok := c.Environments[strings.ToLower(c.Environment)]; !ok {
			return core.ErrUnknownEnvironment.WithMessagef("unknown environment %q", c.Environment).
				WithDetails(map[string]interface{}{"available": c.EnvironmentNames()})
		}
	}
	return nil
}

// EnvironmentNames lists the configured environments.
func (c *Config) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActiveEnvironment returns the selected environment's overrides.
func (c *Config) ActiveEnvironment() Environment {
	return c.Environments[strings.ToLower(c.Environment)]
}

// ResolveBaseURL returns the environment baseUrl, else the top-level one.
func (c *Config) ResolveBaseURL() string {
	if u := c.ActiveEnvironment().BaseURL; u != "" {
		return u
	}
	return c.BaseURL
}

// ResolveRemoteURL returns the environment remoteUrl, else the top-level one.
func (c *Config) ResolveRemoteURL() string {
	if u := c.ActiveEnvironment().RemoteURL; u != "" {
		return u
	}
	return c.RemoteURL
}

// MergedCapabilities returns top-level capabilities overlaid with the active
// environment's.
func (c *Config) MergedCapabilities() map[string]interface{} {
	merged := make(map[string]interface{}, len(c.Capabilities))
	for k, v := range c.Capabilities {
		merged[k] = v
	}
	for k, v := range c.ActiveEnvironment().Capabilities {
		merged[k] = v
	}
	return merged
}

// ResolveURL joins a page path onto the active baseUrl. Absolute URLs are
// returned unchanged.
func (c *Config) ResolveURL(path string) string {
	if path == "" {
		return c.ResolveBaseURL()
	}
	if strings.Contains(path, "://") {
		return path
	}
	base := strings.TrimRight(c.ResolveBaseURL(), "/")
	if base == "" {
		return path
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

// ResolveTimeout returns the first positive timeout among the element
// override, page override and configured default.
func ResolveTimeout(element, page, configured time.Duration) time.Duration {
	for _, d := range []time.Duration{element, page, configured} {
		if d > 0 {
			return d
		}
	}
	return DefaultElementTimeout
}
