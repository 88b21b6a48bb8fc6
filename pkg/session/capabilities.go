package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/devicelab-dev/gherkin-runner/pkg/config"
)

// w3cCapabilities are the standard keys that never take a vendor prefix.
var w3cCapabilities = map[string]bool{
	"browserName":               true,
	"browserVersion":            true,
	"platformName":              true,
	"acceptInsecureCerts":       true,
	"pageLoadStrategy":          true,
	"proxy":                     true,
	"setWindowRect":             true,
	"timeouts":                  true,
	"strictFileInteractability": true,
	"unhandledPromptBehavior":   true,
	"webSocketUrl":              true,
}

// BuildCapabilities assembles the session capabilities for the configured
// target. Capabilities from the config (top-level, then environment) are
// merged last.
func BuildCapabilities(cfg *config.Config) (map[string]interface{}, error) {
	var caps map[string]interface{}
	switch cfg.Target {
	case config.TargetBrowser:
		caps = browserCapabilities(cfg.Browser)
	case config.TargetDesktop:
		caps = desktopCapabilities(cfg.Desktop)
	case config.TargetAppium:
		caps = map[string]interface{}{}
	default:
		return nil, fmt.Errorf("unsupported target %q", cfg.Target)
	}

	mergeCapabilities(caps, cfg.MergedCapabilities())

	if cfg.Target == config.TargetAppium {
		caps = prefixAppium(caps)
	}
	return caps, nil
}

func browserCapabilities(b config.BrowserConfig) map[string]interface{} {
	name := strings.ToLower(b.Name)
	caps := map[string]interface{}{}
	if b.AcceptInsecureCerts {
		caps["acceptInsecureCerts"] = true
	}
	if b.PageLoadStrategy != "" {
		caps["pageLoadStrategy"] = b.PageLoadStrategy
	}

	args := make([]interface{}, 0, len(b.Args)+2)
	for _, a := range b.Args {
		args = append(args, a)
	}

	switch name {
	case "chrome", "chromium", "":
		caps["browserName"] = "chrome"
		if b.Headless {
			args = append(args, "--headless=new")
		}
		if b.Width > 0 && b.Height > 0 {
			args = append(args, "--window-size="+strconv.Itoa(b.Width)+","+strconv.Itoa(b.Height))
		}
		caps["goog:chromeOptions"] = map[string]interface{}{"args": args}
	case "edge", "msedge", "microsoftedge":
		caps["browserName"] = "MicrosoftEdge"
		if b.Headless {
			args = append(args, "--headless=new")
		}
		caps["ms:edgeOptions"] = map[string]interface{}{"args": args}
	case "firefox":
		caps["browserName"] = "firefox"
		if b.Headless {
			args = append(args, "-headless")
		}
		caps["moz:firefoxOptions"] = map[string]interface{}{"args": args}
	default:
		caps["browserName"] = name
	}
	return caps
}

func desktopCapabilities(d config.DesktopConfig) map[string]interface{} {
	caps := map[string]interface{}{
		"platformName":              "Windows",
		"deviceName":                "WindowsPC",
		"app":                       d.App,
		"ms:experimental-webdriver": true,
	}
	if d.Arguments != "" {
		caps["appArguments"] = d.Arguments
	}
	if d.WorkingDir != "" {
		caps["appWorkingDir"] = d.WorkingDir
	}
	return caps
}

// prefixAppium adds the appium: vendor prefix to non-standard keys.
func prefixAppium(caps map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(caps))
	for k, v := range caps {
		if w3cCapabilities[k] || strings.Contains(k, ":") {
			out[k] = v
			continue
		}
		out["appium:"+k] = v
	}
	return out
}

// mergeCapabilities overlays src onto dst. Nested maps merge recursively and
// "args" lists append so configured browser args survive.
func mergeCapabilities(dst, src map[string]interface{}) {
	for k, v := range src {
		existing, ok := dst[k]
		if !ok {
			dst[k] = v
			continue
		}
		dstMap, dstIsMap := existing.(map[string]interface{})
		srcMap, srcIsMap := v.(map[string]interface{})
		if dstIsMap && srcIsMap {
			mergeCapabilities(dstMap, srcMap)
			continue
		}
		dstList, dstIsList := existing.([]interface{})
		srcList, srcIsList := v.([]interface{})
		if k == "args" && dstIsList && srcIsList {
			dst[k] = append(dstList, srcList...)
			continue
		}
		dst[k] = v
	}
}
