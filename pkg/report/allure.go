package report

import (
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/devicelab-dev/gherkin-runner/pkg/logger"
	"github.com/google/uuid"
)

// AllureResult is one test result in Allure format.
type AllureResult struct {
	UUID          string              `json:"uuid"`
	HistoryID     string              `json:"historyId"`
	FullName      string              `json:"fullName"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	Labels        []AllureLabel       `json:"labels"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureStep is a step within a result.
type AllureStep struct {
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureAttachment references a file copied next to the results.
type AllureAttachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// AllureLabel is a label on a result.
type AllureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureStatusDetails holds the failure message.
type AllureStatusDetails struct {
	Message string `json:"message,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

// AllureCategory groups failures by message.
type AllureCategory struct {
	Name            string   `json:"name"`
	MatchedStatuses []string `json:"matchedStatuses"`
	MessageRegex    string   `json:"messageRegex"`
}

// GenerateAllure writes Allure result files to <reportDir>/allure-results.
func GenerateAllure(reportDir string) error {
	index, details, err := ReadReport(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}
	allureDir := filepath.Join(reportDir, "allure-results")
	if err := ensureDir(allureDir); err != nil {
		return err
	}

	for i, entry := range index.Scenarios {
		result := buildAllureResult(entry, details[i])
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal allure result for %s: %w", entry.ID, err)
		}
		if err := os.WriteFile(filepath.Join(allureDir, result.UUID+"-result.json"), data, 0o644); err != nil {
			return fmt.Errorf("write allure result %s: %w", entry.ID, err)
		}
		copyAttachments(reportDir, allureDir, details[i].Steps)
	}

	if err := writeAllureCategories(allureDir); err != nil {
		return err
	}
	return writeAllureEnvironment(allureDir, index)
}

func buildAllureResult(entry ScenarioEntry, detail ScenarioDetail) AllureResult {
	var start, stop int64
	if entry.StartTime != nil {
		start = entry.StartTime.UnixMilli()
	}
	if entry.EndTime != nil {
		stop = entry.EndTime.UnixMilli()
	}

	labels := []AllureLabel{
		{Name: "feature", Value: entry.Feature},
		{Name: "story", Value: entry.Name},
		{Name: "suite", Value: entry.Feature},
		{Name: "framework", Value: "godog"},
		{Name: "language", Value: "go"},
	}
	for _, tag := range entry.Tags {
		labels = append(labels, AllureLabel{Name: "tag", Value: strings.TrimPrefix(tag, "@")})
	}

	var details AllureStatusDetails
	if entry.Error != nil {
		details.Message = *entry.Error
	}

	steps := make([]AllureStep, 0, len(detail.Steps))
	for _, s := range detail.Steps {
		steps = append(steps, buildAllureStep(s))
	}

	return AllureResult{
		UUID:          uuid.NewString(),
		HistoryID:     fnv32aHash(entry.SourceFile + ":" + entry.Name),
		FullName:      entry.Feature + ": " + entry.Name,
		Name:          entry.Name,
		Status:        mapAllureStatus(entry.Status),
		Stage:         "finished",
		Start:         start,
		Stop:          stop,
		Labels:        labels,
		StatusDetails: details,
		Steps:         steps,
		Attachments:   []AllureAttachment{},
	}
}

func buildAllureStep(s Step) AllureStep {
	var start, stop int64
	if s.StartTime != nil {
		start = s.StartTime.UnixMilli()
	}
	if s.EndTime != nil {
		stop = s.EndTime.UnixMilli()
	}
	step := AllureStep{
		Name:        strings.TrimSpace(s.Keyword + " " + s.Text),
		Status:      mapAllureStatus(s.Status),
		Stage:       "finished",
		Start:       start,
		Stop:        stop,
		Attachments: []AllureAttachment{},
	}
	if s.Error != nil {
		step.StatusDetails.Message = s.Error.Message
	}
	for _, a := range s.Attachments {
		step.Attachments = append(step.Attachments, AllureAttachment{
			Name:   a.Name,
			Source: allureSource(a.Path),
			Type:   a.ContentType,
		})
	}
	return step
}

// allureSource flattens an asset path into a unique file name.
func allureSource(path string) string {
	return strings.ReplaceAll(strings.TrimPrefix(filepath.ToSlash(path), "assets/"), "/", "-")
}

func copyAttachments(reportDir, allureDir string, steps []Step) {
	for _, s := range steps {
		for _, a := range s.Attachments {
			copyFile(filepath.Join(reportDir, filepath.FromSlash(a.Path)), filepath.Join(allureDir, allureSource(a.Path)))
		}
	}
}

// copyFile copies src to dst. Missing sources are ignored.
func copyFile(src, dst string) {
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		logger.Warn("Failed to create %s: %v", dst, err)
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		logger.Warn("Failed to copy %s to %s: %v", src, dst, err)
	}
}

func mapAllureStatus(s Status) string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusUndefined:
		return "broken"
	}
	return "unknown"
}

func fnv32aHash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

func writeAllureCategories(allureDir string) error {
	categories := []AllureCategory{
		{Name: "Element not found", MatchedStatuses: []string{"failed"}, MessageRegex: "(?is).*not found.*"},
		{Name: "Element state", MatchedStatuses: []string{"failed"}, MessageRegex: "(?is).*(not visible|still visible|not clickable|not enabled|not disabled|not selected).*"},
		{Name: "Text mismatch", MatchedStatuses: []string{"failed"}, MessageRegex: "(?is).*expected .*got.*"},
		{Name: "Table mismatch", MatchedStatuses: []string{"failed"}, MessageRegex: "(?is).*(table|column|row).*"},
		{Name: "Image mismatch", MatchedStatuses: []string{"failed"}, MessageRegex: "(?is).*(baseline|pixels differ).*"},
		{Name: "Timeout", MatchedStatuses: []string{"failed", "broken"}, MessageRegex: "(?is).*(timeout|timed out|deadline).*"},
		{Name: "Driver connection", MatchedStatuses: []string{"failed", "broken"}, MessageRegex: "(?is).*(unreachable|connection|session).*"},
		{Name: "Undefined steps", MatchedStatuses: []string{"broken"}, MessageRegex: ".*"},
	}
	data, err := json.MarshalIndent(categories, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	if err := os.WriteFile(filepath.Join(allureDir, "categories.json"), data, 0o644); err != nil {
		return fmt.Errorf("write categories.json: %w", err)
	}
	return nil
}

func writeAllureEnvironment(allureDir string, index *Index) error {
	props := map[string]string{
		"environment":    index.Environment.Name,
		"baseUrl":        index.Environment.BaseURL,
		"target":         index.Environment.Target,
		"browser":        index.Environment.Browser,
		"platform":       index.Environment.Platform,
		"runner.version": index.Runner.Version,
		"runner.driver":  index.Runner.Driver,
		"run.id":         index.RunID,
	}
	keys := make([]string, 0, len(props))
	for k, v := range props {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, props[k])
	}
	if err := os.WriteFile(filepath.Join(allureDir, "environment.properties"), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write environment.properties: %w", err)
	}
	return nil
}
