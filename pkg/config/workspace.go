package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/mitchellh/go-homedir"
)

const (
	envHome = "GHERKIN_RUNNER_HOME"

	// FileName is the workspace configuration file looked up by FindRoot.
	FileName = "gherkin-runner.yaml"
)

var (
	rootOnce sync.Once
	rootDir  string
)

// GetRoot returns the workspace root directory.
//
// Resolution order:
//  1. $GHERKIN_RUNNER_HOME environment variable
//  2. Nearest ancestor of the working directory containing gherkin-runner.yaml
//  3. Current working directory
func GetRoot() string {
	rootOnce.Do(func() {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		rootDir = FindRoot(cwd)
	})
	return rootDir
}

// FindRoot applies the root resolution order starting from dir.
func FindRoot(dir string) string {
	if env := os.Getenv(envHome); env != "" {
		if expanded, err := homedir.Expand(env); err == nil {
			return expanded
		}
		return env
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	for d := abs; ; d = filepath.Dir(d) {
		if fileExists(filepath.Join(d, FileName)) || fileExists(filepath.Join(d, altFileName)) {
			return d
		}
		if filepath.Dir(d) == d {
			break
		}
	}
	return abs
}

// ResetRoot resets the cached root directory (for testing).
func ResetRoot() {
	rootOnce = sync.Once{}
	rootDir = ""
}

// ResolvePath expands ~ and makes p absolute relative to root.
func ResolvePath(root, p string) string {
	if p == "" {
		return ""
	}
	if expanded, err := homedir.Expand(p); err == nil {
		p = expanded
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

const altFileName = "gherkin-runner.yml"

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
