package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// atomicWriteJSON writes v as indented JSON through a temp file and rename,
// so pollers never read a partial file.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// ReadReport loads report.json and the detail file of every scenario, in
// index order. A scenario whose detail file is missing gets an empty detail
// built from its index entry.
func ReadReport(reportDir string) (*Index, []ScenarioDetail, error) {
	var index Index
	if err := readJSON(filepath.Join(reportDir, "report.json"), &index); err != nil {
		return nil, nil, fmt.Errorf("read index: %w", err)
	}
	details := make([]ScenarioDetail, len(index.Scenarios))
	for i, entry := range index.Scenarios {
		var d ScenarioDetail
		err := readJSON(filepath.Join(reportDir, entry.DataFile), &d)
		switch {
		case err == nil:
		case os.IsNotExist(err):
			d = ScenarioDetail{ID: entry.ID, Name: entry.Name, Feature: entry.Feature, SourceFile: entry.SourceFile, Line: entry.Line}
		default:
			return nil, nil, fmt.Errorf("read scenario %s: %w", entry.ID, err)
		}
		details[i] = d
	}
	return &index, details, nil
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
