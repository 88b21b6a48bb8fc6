package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"gopkg.in/yaml.v3"
)

// CommonSection is the environment-independent section of a data file.
const CommonSection = "common"

// TestData is the merged content of data/*.yaml. Top-level keys are
// environment names plus "common".
type TestData struct {
	sections map[string]map[string]interface{}
}

// LoadTestData merges every .yaml/.yml file in dir. Later files (by name)
// override earlier ones key by key. A missing dir yields empty data.
func LoadTestData(dir string) (*TestData, error) {
	d := &TestData{sections: map[string]map[string]interface{}{}}
	if dir == "" {
		return d, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return d, nil
		}
		return nil, core.ErrInvalidConfig.WithMessagef("failed to read data dir %s", dir).WithCause(err)
	}

	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := os.ReadFile(file) //#nosec G304 -- workspace data file
		if err != nil {
			return nil, core.ErrInvalidConfig.WithMessagef("failed to read %s", file).WithCause(err)
		}
		var doc map[string]map[string]interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, core.ErrInvalidConfig.WithMessagef("invalid YAML in %s", file).WithCause(err)
		}
		for section, values := range doc {
			section = strings.ToLower(section)
			if d.sections[section] == nil {
				d.sections[section] = map[string]interface{}{}
			}
			mergeData(d.sections[section], values)
		}
	}
	return d, nil
}

// mergeData copies src into dst. Maps present on both sides are merged
// recursively; any other value in src replaces the one in dst.
func mergeData(dst, src map[string]interface{}) {
	for k, v := range src {
		if next, ok := v.(map[string]interface{}); ok {
			if prev, ok := dst[k].(map[string]interface{}); ok {
				merged := make(map[string]interface{}, len(prev)+len(next))
				mergeData(merged, prev)
				mergeData(merged, next)
				dst[k] = merged
				continue
			}
		}
		dst[k] = v
	}
}

// Lookup resolves key in <env> then common. Dotted keys walk nested maps.
func (d *TestData) Lookup(key, env string) (string, bool) {
	for _, section := range []string{strings.ToLower(env), CommonSection} {
		if v, ok := walk(d.sections[section], strings.Split(key, ".")); ok {
			return stringify(v), true
		}
	}
	return "", false
}

// Resolve is Lookup falling back to the key itself.
func (d *TestData) Resolve(key, env string) string {
	if v, ok := d.Lookup(key, env); ok {
		return v
	}
	return key
}

func walk(m map[string]interface{}, path []string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[path[0]]
	if !ok {
		return nil, false
	}
	if len(path) == 1 {
		return v, true
	}
	switch next := v.(type) {
	case map[string]interface{}:
		return walk(next, path[1:])
	default:
		return nil, false
	}
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
