package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
)

func TestGetRoot_EnvVar(t *testing.T) {
	ResetRoot()
	t.Setenv("GHERKIN_RUNNER_HOME", "/custom/path")

	got := GetRoot()
	if got != "/custom/path" {
		t.Errorf("GetRoot() = %q, want %q", got, "/custom/path")
	}
}

func TestGetRoot_Cached(t *testing.T) {
	ResetRoot()
	t.Setenv("GHERKIN_RUNNER_HOME", "/first")

	first := GetRoot()

	// Changing the env does not affect the cached value
	t.Setenv("GHERKIN_RUNNER_HOME", "/second")
	second := GetRoot()

	if first != second {
		t.Errorf("GetRoot() not cached: first=%q, second=%q", first, second)
	}
}

func TestFindRoot_AncestorWithConfig(t *testing.T) {
	t.Setenv("GHERKIN_RUNNER_HOME", "")

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("target: browser\n"), 0644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "features", "login")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	got := FindRoot(nested)
	want, _ := filepath.Abs(root)
	if got != want {
		t.Errorf("FindRoot() = %q, want %q", got, want)
	}
}

func TestFindRoot_FallbackToDir(t *testing.T) {
	t.Setenv("GHERKIN_RUNNER_HOME", "")

	dir := t.TempDir()
	got := FindRoot(dir)
	want, _ := filepath.Abs(dir)
	// A config file above the temp dir would change the answer; none is expected.
	if got != want {
		t.Errorf("FindRoot() = %q, want %q", got, want)
	}
}

func TestResolvePath(t *testing.T) {
	home, err := homedir.Dir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"empty", "", ""},
		{"relative", "pages", filepath.Join("/ws", "pages")},
		{"absolute", "/etc/pages", "/etc/pages"},
		{"home", "~/baselines", filepath.Join(home, "baselines")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolvePath("/ws", tt.path); got != tt.want {
				t.Errorf("ResolvePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
