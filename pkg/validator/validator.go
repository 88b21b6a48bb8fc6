// Package validator parses feature files before execution, applies tag
// filters, and checks that page and element references resolve.
package validator

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/devicelab-dev/gherkin-runner/pkg/page"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Line    int64
	Message string
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Files is the list of feature files that contributed scenarios.
	Files []string
	// Scenarios are the selected scenarios in execution order.
	Scenarios []Scenario
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator validates feature files.
type Validator struct {
	pages       *page.Registry
	includeTags []string
	excludeTags []string
}

// New creates a new Validator. A nil registry disables reference checks.
func New(pages *page.Registry, includeTags, excludeTags []string) *Validator {
	return &Validator{
		pages:       pages,
		includeTags: includeTags,
		excludeTags: excludeTags,
	}
}

// Validate validates files or directories.
func (v *Validator) Validate(paths ...string) *Result {
	result := &Result{}
	seen := make(map[string]bool)

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("cannot access: %v", err),
			})
			continue
		}

		files := []string{path}
		if info.IsDir() {
			files, err = collectFeatureFiles(path)
			if err != nil {
				result.Errors = append(result.Errors, &ValidationError{
					File:    path,
					Message: fmt.Sprintf("failed to scan directory: %v", err),
				})
				continue
			}
		}

		for _, file := range files {
			if seen[file] {
				continue
			}
			seen[file] = true
			v.validateFile(file, result)
		}
	}
	return result
}

// collectFeatureFiles finds all .feature files in a directory.
func collectFeatureFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".feature") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func (v *Validator) validateFile(file string, result *Result) {
	scenarios, err := ParseFile(file)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    file,
			Message: fmt.Sprintf("parse error: %v", err),
		})
		return
	}

	included := false
	for _, sc := range scenarios {
		if !ShouldInclude(sc.Tags, v.includeTags, v.excludeTags) {
			continue
		}
		included = true
		result.Scenarios = append(result.Scenarios, sc)
		if v.pages != nil {
			for _, step := range sc.Steps {
				v.checkReferences(file, step, result)
			}
		}
	}
	if included {
		result.Files = append(result.Files, file)
	}
}

var (
	pageRefPattern   = regexp.MustCompile(`the "([^"]+)" page`)
	quotedPattern    = regexp.MustCompile(`"([^"]*)"`)
	elementRefFormat = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_-]*)$`)
)

// fileExtensions are quoted "name.ext" arguments that are files, not
// element references.
var fileExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "bmp": true,
	"json": true, "yaml": true, "yml": true, "csv": true, "txt": true, "html": true, "js": true,
}

// checkReferences reports pages named as `the "X" page` that do not exist
// and "Page.element" arguments whose element is not defined on the page.
// Bare element names depend on the page open at run time and are not checked.
func (v *Validator) checkReferences(file string, step Step, result *Result) {
	for _, m := range pageRefPattern.FindAllStringSubmatch(step.Text, -1) {
		if _, err := v.pages.Page(m[1]); err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    file,
				Line:    step.Line,
				Message: fmt.Sprintf("page %q is not defined", m[1]),
			})
		}
	}

	for _, m := range quotedPattern.FindAllStringSubmatch(step.Text, -1) {
		ref := elementRefFormat.FindStringSubmatch(m[1])
		if ref == nil || fileExtensions[strings.ToLower(ref[2])] {
			continue
		}
		p, err := v.pages.Page(ref[1])
		if err != nil {
			continue
		}
		if !p.HasElement(ref[2]) {
			result.Errors = append(result.Errors, &ValidationError{
				File:    file,
				Line:    step.Line,
				Message: fmt.Sprintf("element %q is not defined on page %q", ref[2], p.Name),
			})
		}
	}
}

// ShouldInclude applies tag filters. A scenario is included when it has any
// include tag (or no include tags are given) and none of the exclude tags.
// Tags compare case-insensitively, with or without the leading "@".
func ShouldInclude(tags, include, exclude []string) bool {
	has := make(map[string]bool, len(tags))
	for _, t := range tags {
		has[normalizeTag(t)] = true
	}
	for _, t := range exclude {
		if has[normalizeTag(t)] {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, t := range include {
		if has[normalizeTag(t)] {
			return true
		}
	}
	return false
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "@"))
}

// TagExpression renders include/exclude lists in godog's tag filter syntax:
// includes are OR-ed with "," and each exclude is AND-ed as "~@tag".
func TagExpression(include, exclude []string) string {
	var parts []string
	if len(include) > 0 {
		tags := make([]string, len(include))
		for i, t := range include {
			tags[i] = "@" + strings.TrimPrefix(strings.TrimSpace(t), "@")
		}
		parts = append(parts, strings.Join(tags, ","))
	}
	for _, t := range exclude {
		parts = append(parts, "~@"+strings.TrimPrefix(strings.TrimSpace(t), "@"))
	}
	return strings.Join(parts, " && ")
}
