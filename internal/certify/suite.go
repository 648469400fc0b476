package certify

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolgate/internal/config"
)

//go:embed suites/core.yaml
var coreSuiteYAML []byte

var builtinSuites = map[string][]byte{
	"core": coreSuiteYAML,
}

// Suite is a versioned collection of certification categories.
type Suite struct {
	Name       string     `yaml:"name"`
	Version    string     `yaml:"version"`
	Categories []Category `yaml:"categories"`
}

// Category groups related cases that share one pipeline: a fresh
// ledger, a fresh engine built from the category config, and whatever
// history earlier cases in the category left behind.
type Category struct {
	Name   string    `yaml:"name"`
	Ledger string    `yaml:"ledger,omitempty"` // "broken" makes every pre-log fail
	Config yaml.Node `yaml:"config,omitempty"`
	Cases  []Case    `yaml:"cases"`
}

// BuildConfig overlays the category's config fragment on the defaults,
// the same way loading a config file does.
func (c *Category) BuildConfig() (*config.Config, error) {
	cfg := config.Default()
	if !c.Config.IsZero() {
		if err := c.Config.Decode(cfg); err != nil {
			return nil, fmt.Errorf("category %q config: %w", c.Name, err)
		}
	}
	return cfg, nil
}

// Case is one tool call pushed through the category's pipeline.
type Case struct {
	Name    string         `yaml:"name"`
	Tool    string         `yaml:"tool"`
	User    string         `yaml:"user,omitempty"`
	Args    map[string]any `yaml:"args,omitempty"`
	Confirm string         `yaml:"confirm,omitempty"` // yes (default), no, stall
	Expect  Expect         `yaml:"expect"`
}

// Expect declares what the call and its ledger entry must look like.
// Entry and ReasonContains are checked against the row the call wrote;
// NoEntry asserts the call wrote nothing.
type Expect struct {
	Success        bool   `yaml:"success"`
	ErrorContains  string `yaml:"error_contains,omitempty"`
	OutputContains string `yaml:"output_contains,omitempty"`
	Entry          string `yaml:"entry,omitempty"`
	ReasonContains string `yaml:"reason_contains,omitempty"`
	NoEntry        bool   `yaml:"no_entry,omitempty"`
}

// LoadSuite loads a built-in certification suite by name.
func LoadSuite(name string) (*Suite, error) {
	data, ok := builtinSuites[name]
	if !ok {
		return nil, fmt.Errorf("unknown certification suite: %q", name)
	}

	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse suite %q: %w", name, err)
	}

	return &s, nil
}

// ListSuites returns sorted names of all built-in certification suites.
func ListSuites() []string {
	names := make([]string, 0, len(builtinSuites))
	for name := range builtinSuites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
