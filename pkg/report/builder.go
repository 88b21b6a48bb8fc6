package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ScenarioSource describes a scenario before it runs.
type ScenarioSource struct {
	Feature    string
	SourceFile string
	Line       int64
	Name       string
	Tags       []string
	Steps      []StepSource
}

// StepSource describes a step before it runs.
type StepSource struct {
	Keyword   string
	Text      string
	Line      int64
	DataTable [][]string
	DocString string
}

// BuilderConfig contains the run-level report fields.
type BuilderConfig struct {
	RunID         string
	Environment   Environment
	CI            *CI
	RunnerVersion string
	DriverName    string
}

// BuildSkeleton creates the initial report structure with every scenario
// and step pending. Call it after validation, before execution starts.
func BuildSkeleton(scenarios []ScenarioSource, cfg BuilderConfig) (*Index, []ScenarioDetail) {
	now := time.Now()
	index := &Index{
		Version:     Version,
		RunID:       cfg.RunID,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Environment: cfg.Environment,
		CI:          cfg.CI,
		Runner: RunnerInfo{
			Version: cfg.RunnerVersion,
			Driver:  cfg.DriverName,
		},
		Summary:   Summary{Total: len(scenarios), Pending: len(scenarios)},
		Scenarios: make([]ScenarioEntry, len(scenarios)),
	}
	details := make([]ScenarioDetail, len(scenarios))

	for i, sc := range scenarios {
		id := ScenarioID(i)
		steps := make([]Step, len(sc.Steps))
		for j, st := range sc.Steps {
			steps[j] = Step{
				ID:        fmt.Sprintf("%s-step-%03d", id, j),
				Index:     j,
				Keyword:   strings.TrimSpace(st.Keyword),
				Text:      st.Text,
				Line:      st.Line,
				Status:    StatusPending,
				DataTable: st.DataTable,
				DocString: st.DocString,
			}
		}
		index.Scenarios[i] = ScenarioEntry{
			Index:      i,
			ID:         id,
			Name:       sc.Name,
			Feature:    sc.Feature,
			SourceFile: sc.SourceFile,
			Line:       sc.Line,
			Tags:       sc.Tags,
			DataFile:   filepath.ToSlash(filepath.Join("scenarios", id+".json")),
			AssetsDir:  filepath.ToSlash(filepath.Join("assets", id)),
			Status:     StatusPending,
			Steps:      StepSummary{Total: len(steps), Pending: len(steps)},
		}
		details[i] = ScenarioDetail{
			ID:         id,
			Name:       sc.Name,
			Feature:    sc.Feature,
			SourceFile: sc.SourceFile,
			Line:       sc.Line,
			Tags:       sc.Tags,
			Attempt:    1,
			Steps:      steps,
		}
	}
	return index, details
}

// ScenarioID returns the ID of the scenario at position i.
func ScenarioID(i int) string {
	return fmt.Sprintf("scenario-%03d", i)
}

// WriteSkeleton writes report.json, every scenario file and report.html
// with pending status.
func WriteSkeleton(outputDir string, index *Index, details []ScenarioDetail) error {
	for _, d := range details {
		if err := atomicWriteJSON(filepath.Join(outputDir, "scenarios", d.ID+".json"), d); err != nil {
			return fmt.Errorf("write scenario %s: %w", d.ID, err)
		}
		if err := ensureDir(filepath.Join(outputDir, "assets", d.ID)); err != nil {
			return err
		}
	}
	if err := atomicWriteJSON(filepath.Join(outputDir, "report.json"), index); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := GenerateHTML(outputDir, HTMLConfig{}); err != nil {
		return fmt.Errorf("generate html: %w", err)
	}
	return nil
}
