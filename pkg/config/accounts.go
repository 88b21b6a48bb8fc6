package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"gopkg.in/yaml.v3"
)

// Account is a flat set of credential fields (username, password, ...).
type Account map[string]string

type accountEntry struct {
	Fields       map[string]string
	Environments map[string]map[string]string
}

// UnmarshalYAML splits the reserved environments block from plain fields.
func (e *accountEntry) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return err
	}
	e.Fields = make(map[string]string)
	for key, value := range raw {
		if key == "environments" {
			if err := value.Decode(&e.Environments); err != nil {
				return fmt.Errorf("environments: %w", err)
			}
			continue
		}
		var s string
		if err := value.Decode(&s); err != nil {
			return fmt.Errorf("field %q must be a scalar: %w", key, err)
		}
		e.Fields[key] = s
	}
	return nil
}

// Accounts holds the aliases declared in accounts.yaml.
type Accounts struct {
	entries map[string]accountEntry
}

// LoadAccounts reads an accounts file. A missing file yields an empty set.
func LoadAccounts(path string) (*Accounts, error) {
	a := &Accounts{entries: map[string]accountEntry{}}
	if path == "" {
		return a, nil
	}

	data, err := os.ReadFile(path) //#nosec G304 -- workspace accounts file
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return a, nil
		}
		return nil, core.ErrInvalidConfig.WithMessagef("failed to read %s", path).WithCause(err)
	}

	var file struct {
		Accounts map[string]accountEntry `yaml:"accounts"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, core.ErrInvalidConfig.WithMessagef("invalid YAML in %s", path).WithCause(err)
	}
	if file.Accounts != nil {
		a.entries = file.Accounts
	}
	return a, nil
}

// Aliases returns the declared account aliases, sorted.
func (a *Accounts) Aliases() []string {
	names := make([]string, 0, len(a.entries))
	for name := range a.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the account for alias with env overrides applied and
// ${VAR} references expanded.
func (a *Accounts) Get(alias, env string) (Account, error) {
	entry, ok := a.entries[alias]
	if !ok {
		return nil, core.ErrAccountNotFound.WithMessagef("account %q not found", alias).
			WithDetails(map[string]interface{}{"alias": alias})
	}

	acc := make(Account, len(entry.Fields))
	for k, v := range entry.Fields {
		acc[k] = v
	}
	for name, overrides := range entry.Environments {
		if !strings.EqualFold(name, env) {
			continue
		}
		for k, v := range overrides {
			acc[k] = v
		}
	}
	for k, v := range acc {
		acc[k] = ExpandEnvRefs(v)
	}
	return acc, nil
}

// Field returns a single account field.
func (a *Accounts) Field(alias, field, env string) (string, error) {
	acc, err := a.Get(alias, env)
	if err != nil {
		return "", err
	}
	v, ok := acc[field]
	if !ok {
		return "", core.ErrAccountNotFound.WithMessagef("account %q has no field %q", alias, field).
			WithDetails(map[string]interface{}{"alias": alias, "field": field})
	}
	return v, nil
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvRefs replaces ${NAME} with the process environment value. Bare
// $NAME is left alone so secrets containing '$' survive.
func ExpandEnvRefs(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return envRefPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envRefPattern.FindStringSubmatch(m)[1])
	})
}
