package session

import (
	"testing"

	"github.com/devicelab-dev/gherkin-runner/pkg/config"
	"github.com/google/go-cmp/cmp"
)

func TestBuildCapabilities_Browser(t *testing.T) {
	tests := []struct {
		name    string
		browser config.BrowserConfig
		want    map[string]interface{}
	}{
		{
			name:    "chrome headless sized",
			browser: config.BrowserConfig{Name: "chrome", Headless: true, Width: 1440, Height: 900, Args: []string{"--lang=en"}},
			want: map[string]interface{}{
				"browserName": "chrome",
				"goog:chromeOptions": map[string]interface{}{
					"args": []interface{}{"--lang=en", "--headless=new", "--window-size=1440,900"},
				},
			},
		},
		{
			name:    "firefox headless",
			browser: config.BrowserConfig{Name: "Firefox", Headless: true, AcceptInsecureCerts: true},
			want: map[string]interface{}{
				"browserName":         "firefox",
				"acceptInsecureCerts": true,
				"moz:firefoxOptions":  map[string]interface{}{"args": []interface{}{"-headless"}},
			},
		},
		{
			name:    "edge",
			browser: config.BrowserConfig{Name: "edge", PageLoadStrategy: "eager"},
			want: map[string]interface{}{
				"browserName":      "MicrosoftEdge",
				"pageLoadStrategy": "eager",
				"ms:edgeOptions":   map[string]interface{}{"args": []interface{}{}},
			},
		},
		{
			name:    "safari",
			browser: config.BrowserConfig{Name: "safari", Headless: true},
			want:    map[string]interface{}{"browserName": "safari"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Browser = tt.browser
			got, err := BuildCapabilities(cfg)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("capabilities mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildCapabilities_MergesConfigArgs(t *testing.T) {
	cfg := config.Default()
	cfg.Browser = config.BrowserConfig{Name: "chrome", Headless: true}
	cfg.Capabilities = map[string]interface{}{
		"goog:chromeOptions": map[string]interface{}{
			"args":  []interface{}{"--disable-gpu"},
			"prefs": map[string]interface{}{"download.prompt_for_download": false},
		},
		"unhandledPromptBehavior": "ignore",
	}

	got, err := BuildCapabilities(cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"browserName":             "chrome",
		"unhandledPromptBehavior": "ignore",
		"goog:chromeOptions": map[string]interface{}{
			"args":  []interface{}{"--headless=new", "--disable-gpu"},
			"prefs": map[string]interface{}{"download.prompt_for_download": false},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("capabilities mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildCapabilities_Desktop(t *testing.T) {
	cfg := config.Default()
	cfg.Target = config.TargetDesktop
	cfg.Desktop = config.DesktopConfig{App: `C:\Windows\System32\notepad.exe`, Arguments: "readme.txt", WorkingDir: `C:\tmp`}

	got, err := BuildCapabilities(cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"platformName":              "Windows",
		"deviceName":                "WindowsPC",
		"app":                       `C:\Windows\System32\notepad.exe`,
		"appArguments":              "readme.txt",
		"appWorkingDir":             `C:\tmp`,
		"ms:experimental-webdriver": true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("capabilities mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildCapabilities_AppiumPrefix(t *testing.T) {
	cfg := config.Default()
	cfg.Target = config.TargetAppium
	cfg.Capabilities = map[string]interface{}{
		"platformName":   "Android",
		"automationName": "UiAutomator2",
		"app":            "/apps/demo.apk",
		"appium:noReset": true,
	}

	got, err := BuildCapabilities(cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"platformName":          "Android",
		"appium:automationName": "UiAutomator2",
		"appium:app":            "/apps/demo.apk",
		"appium:noReset":        true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("capabilities mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildCapabilities_EnvironmentOverrides(t *testing.T) {
	cfg := config.Default()
	cfg.Environment = "qa"
	cfg.Capabilities = map[string]interface{}{"browserVersion": "125"}
	cfg.Environments = map[string]config.Environment{
		"qa": {Capabilities: map[string]interface{}{"browserVersion": "126"}},
	}

	got, err := BuildCapabilities(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got["browserVersion"] != "126" {
		t.Errorf("browserVersion = %v, want 126", got["browserVersion"])
	}
}

func TestBuildCapabilities_UnknownTarget(t *testing.T) {
	cfg := config.Default()
	cfg.Target = "tv"
	if _, err := BuildCapabilities(cfg); err == nil {
		t.Error("expected error for unknown target")
	}
}
