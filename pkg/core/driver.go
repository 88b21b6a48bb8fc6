// Package core provides the execution model types shared by the runner,
// the element engine and the report writers.
package core

import "context"

// Driver is a live automation session the runner can inspect between steps.
// Implementations: browser sessions, WinAppDriver desktop sessions, Appium sessions.
// Step definitions talk to the session through the element engine; the runner
// only needs artifacts and identity from it.
type Driver interface {
	// Screenshot captures the current viewport as PNG
	Screenshot(ctx context.Context) ([]byte, error)

	// Hierarchy captures the current page source (HTML or native XML)
	Hierarchy(ctx context.Context) ([]byte, error)

	// GetPlatformInfo returns browser/platform information for reports
	GetPlatformInfo() *PlatformInfo

	// Close ends the session
	Close(ctx context.Context) error
}

// ElementInfo represents information about a resolved UI element
type ElementInfo struct {
	ID         string            `json:"id,omitempty"`      // WebDriver element reference
	Name       string            `json:"name,omitempty"`    // Page object element name
	Locator    string            `json:"locator,omitempty"` // Locator that matched, e.g. css=#user
	Frame      []int             `json:"frame,omitempty"`   // Frame index path the element lives in
	Tag        string            `json:"tag,omitempty"`
	Text       string            `json:"text,omitempty"`
	Bounds     Bounds            `json:"bounds"`
	Visible    bool              `json:"visible"`
	Enabled    bool              `json:"enabled"`
	Selected   bool              `json:"selected,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Bounds represents element position and size
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsEmpty reports whether the bounds have no area.
func (b Bounds) IsEmpty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// PlatformInfo contains session and platform details
type PlatformInfo struct {
	Target         string `json:"target"`                   // browser, desktop, appium
	Platform       string `json:"platform"`                 // linux, windows, mac, android, ios
	BrowserName    string `json:"browserName,omitempty"`    // chrome, firefox, MicrosoftEdge
	BrowserVersion string `json:"browserVersion,omitempty"` // e.g. "126.0"
	App            string `json:"app,omitempty"`            // Desktop/mobile application under test
	SessionID      string `json:"sessionId"`
	RemoteURL      string `json:"remoteUrl,omitempty"`
	Environment    string `json:"environment,omitempty"`
	WindowWidth    int    `json:"windowWidth,omitempty"`
	WindowHeight   int    `json:"windowHeight,omitempty"`
}
