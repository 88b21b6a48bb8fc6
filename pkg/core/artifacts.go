package core

import "bytes"

// Attachment represents a debug artifact captured during step execution
type Attachment struct {
	Name        string `json:"name"`        // Descriptive name: screenshot, page_source, image_diff
	ContentType string `json:"contentType"` // MIME type: image/png, text/html, application/xml
	Path        string `json:"path"`        // File path relative to output directory
	Body        []byte `json:"-"`           // In-memory content (not serialized to JSON)
}

// Common attachment names
const (
	AttachmentScreenshot = "screenshot"
	AttachmentPageSource = "page_source"
	AttachmentImageDiff  = "image_diff"
)

// Common content types
const (
	ContentTypePNG  = "image/png"
	ContentTypeHTML = "text/html"
	ContentTypeXML  = "application/xml"
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
)

// NewScreenshotAttachment creates a screenshot attachment
func NewScreenshotAttachment(path string, data []byte) Attachment {
	return Attachment{
		Name:        AttachmentScreenshot,
		ContentType: ContentTypePNG,
		Path:        path,
		Body:        data,
	}
}

// NewPageSourceAttachment creates a page source attachment. Native
// (WinAppDriver/Appium) sources are XML, browser sources are HTML.
func NewPageSourceAttachment(path string, data []byte) Attachment {
	contentType := ContentTypeHTML
	if isXMLDocument(data) {
		contentType = ContentTypeXML
	}
	return Attachment{
		Name:        AttachmentPageSource,
		ContentType: contentType,
		Path:        path,
		Body:        data,
	}
}

func isXMLDocument(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("<?xml"))
}

// ArtifactConfig controls when and what artifacts are captured
type ArtifactConfig struct {
	// When to capture
	CaptureOnFailure bool `yaml:"captureOnFailure" mapstructure:"captureOnFailure" json:"captureOnFailure"` // Default: true
	CaptureOnSuccess bool `yaml:"captureOnSuccess" mapstructure:"captureOnSuccess" json:"captureOnSuccess"` // Default: false

	// What to capture
	Screenshot bool `yaml:"screenshot" mapstructure:"screenshot" json:"screenshot"` // Default: true
	PageSource bool `yaml:"pageSource" mapstructure:"pageSource" json:"pageSource"` // Default: true
}

// DefaultArtifactConfig returns sensible defaults for artifact capture
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		CaptureOnFailure: true,
		CaptureOnSuccess: false,
		Screenshot:       true,
		PageSource:       true,
	}
}

// ShouldCapture returns true if artifacts should be captured for the given status
func (c ArtifactConfig) ShouldCapture(status StepStatus) bool {
	if !c.Screenshot && !c.PageSource {
		return false
	}
	switch status {
	case StatusFailed, StatusErrored:
		return c.CaptureOnFailure
	case StatusPassed:
		return c.CaptureOnSuccess
	default:
		return false
	}
}
