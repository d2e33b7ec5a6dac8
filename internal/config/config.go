// Package config loads the bridgels configuration file: grammar
// search paths and per-language settings, capture-name mapping, bridge
// server definitions, and the auto-install flag. Deep grammar discovery and
// on-disk validation are the out-of-scope collaborator's job; this package
// only owns the struct shape and YAML decoding.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bridgels/bridgels/internal/bridgerr"
)

// QueryPaths names the query files a grammar needs for highlighting, local
// variable resolution, and injection detection.
type QueryPaths struct {
	Highlights string `yaml:"highlights"`
	Locals     string `yaml:"locals"`
	Injections string `yaml:"injections"`
}

// GrammarConfig describes one host or embeddable language's grammar.
type GrammarConfig struct {
	Language    string            `yaml:"language"`
	LibraryPath string            `yaml:"library_path"`
	AutoInstall bool              `yaml:"auto_install"`
	Filetypes   []string          `yaml:"filetypes"`
	Queries     QueryPaths        `yaml:"queries"`
	Captures    map[string]string `yaml:"captures"`
}

// Duration wraps time.Duration so YAML can carry Go duration strings
// ("10s", "1m30s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// BridgeConfig describes one downstream language server this process may
// spawn and forward requests to.
type BridgeConfig struct {
	ServerName    string         `yaml:"server_name"`
	Command       string         `yaml:"command"`
	Args          []string       `yaml:"args"`
	Languages     []string       `yaml:"languages"`
	WorkspaceType string         `yaml:"workspace_type"`
	InitOptions   map[string]any `yaml:"init_options"`
	Timeout       Duration       `yaml:"timeout"`
}

// Config is the top-level configuration structure.
type Config struct {
	GrammarSearchPaths []string                   `yaml:"grammar_search_paths"`
	Grammars           []GrammarConfig            `yaml:"grammars"`
	Bridges            []BridgeConfig             `yaml:"bridges"`
	CaptureWildcard    map[string]string          `yaml:"capture_wildcard"`
	byLanguage         map[string]*GrammarConfig  // indexed lazily
	bridgesByLanguage  map[string][]*BridgeConfig // indexed lazily
}

const (
	// WorkspaceFlat is a temporary directory with a single file named by
	// the language's extension.
	WorkspaceFlat = "flat"
	// WorkspaceMinimalProject is a tiny buildable project skeleton.
	WorkspaceMinimalProject = "minimal_project"
)

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bridgerr.Wrap(bridgerr.InvalidConfig, "reading config file", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, bridgerr.Wrap(bridgerr.InvalidConfig, "parsing config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.index()
	return &cfg, nil
}

// Validate checks structural requirements that would otherwise surface as
// confusing failures much later (spawn time, first request).
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Grammars))
	for _, g := range c.Grammars {
		if g.Language == "" {
			return bridgerr.New(bridgerr.InvalidConfig, "grammar entry missing language")
		}
		if seen[g.Language] {
			return bridgerr.New(bridgerr.InvalidConfig, fmt.Sprintf("duplicate grammar for language %q", g.Language))
		}
		seen[g.Language] = true
	}
	for _, b := range c.Bridges {
		if b.ServerName == "" {
			return bridgerr.New(bridgerr.InvalidConfig, "bridge entry missing server_name")
		}
		if b.Command == "" {
			return bridgerr.New(bridgerr.InvalidConfig, fmt.Sprintf("bridge %q missing command", b.ServerName))
		}
		switch b.WorkspaceType {
		case "", WorkspaceFlat, WorkspaceMinimalProject:
		default:
			return bridgerr.New(bridgerr.InvalidConfig, fmt.Sprintf("bridge %q has unknown workspace_type %q", b.ServerName, b.WorkspaceType))
		}
	}
	return nil
}

func (c *Config) index() {
	c.byLanguage = make(map[string]*GrammarConfig, len(c.Grammars))
	for i := range c.Grammars {
		g := &c.Grammars[i]
		c.byLanguage[g.Language] = g
	}
	c.bridgesByLanguage = make(map[string][]*BridgeConfig)
	for i := range c.Bridges {
		b := &c.Bridges[i]
		for _, lang := range b.Languages {
			c.bridgesByLanguage[lang] = append(c.bridgesByLanguage[lang], b)
		}
	}
}

// GrammarFor returns the configured grammar for language, if any.
func (c *Config) GrammarFor(language string) (GrammarConfig, bool) {
	if c.byLanguage == nil {
		c.index()
	}
	g, ok := c.byLanguage[language]
	if !ok {
		return GrammarConfig{}, false
	}
	return *g, true
}

// BridgesFor returns every configured bridge server that supports language.
func (c *Config) BridgesFor(language string) []BridgeConfig {
	if c.bridgesByLanguage == nil {
		c.index()
	}
	bs := c.bridgesByLanguage[language]
	out := make([]BridgeConfig, len(bs))
	for i, b := range bs {
		out[i] = *b
	}
	return out
}

// CaptureName resolves a grammar's raw capture name to a semantic-token
// type, falling back to the wildcard table, then the raw name itself.
func (c *Config) CaptureName(g GrammarConfig, raw string) string {
	if mapped, ok := g.Captures[raw]; ok {
		return mapped
	}
	if mapped, ok := c.CaptureWildcard[raw]; ok {
		return mapped
	}
	return raw
}
