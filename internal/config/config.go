// Package config loads and validates site configuration from site.yaml.
//
// A missing configuration file is not an error: every field has a usable
// default, so a bare content/ directory builds without any setup. Values
// can be overridden through TERN_* environment variables, which are applied
// after an optional .env file has been loaded.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tern/internal/source"
)

// FileName is the configuration file expected at the site root.
const FileName = "site.yaml"

// Duration wraps time.Duration so YAML values like "250ms" or "2m" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// CacheConfig controls the persistent stage cache.
type CacheConfig struct {
	// Path names a SQLite database file for cross-build cache persistence.
	// Empty keeps the cache in memory only.
	Path string `yaml:"path,omitempty"`
}

// ScriptsConfig controls the Lua scripting host.
type ScriptsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// StylesConfig controls stylesheet compilation.
type StylesConfig struct {
	Enabled bool `yaml:"enabled"`
	Minify  bool `yaml:"minify"`
}

// HighlightConfig controls code block syntax highlighting.
type HighlightConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LineNumbers bool   `yaml:"line_numbers"`
	Style       string `yaml:"style,omitempty"`
}

// LogConfig controls the logger installed by the CLI.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WatchConfig controls the rebuild-on-change loop.
type WatchConfig struct {
	Debounce         Duration `yaml:"debounce"`
	FullRebuildEvery Duration `yaml:"full_rebuild_every,omitempty"`
	MetricsAddr      string   `yaml:"metrics_addr,omitempty"`
}

// Config is the full site configuration.
type Config struct {
	Title    string            `yaml:"title"`
	BaseURL  string            `yaml:"base_url"`
	Aliases  map[string]string `yaml:"aliases,omitempty"`
	Params   map[string]any    `yaml:"params,omitempty"`
	Output   string            `yaml:"output"`
	Workers  int               `yaml:"workers"`
	FailFast bool              `yaml:"fail_fast"`
	Drafts   bool              `yaml:"drafts"`

	Cache       CacheConfig     `yaml:"cache,omitempty"`
	Scripts     ScriptsConfig   `yaml:"scripts"`
	Styles      StylesConfig    `yaml:"styles"`
	Highlight   HighlightConfig `yaml:"highlight"`
	VerifyLinks bool            `yaml:"verify_links"`
	Log         LogConfig       `yaml:"log"`
	Watch       WatchConfig     `yaml:"watch,omitempty"`

	// SiteDir is the resolved site root, set by the loader rather than the file.
	SiteDir string `yaml:"-"`

	// Warnings collects non-fatal findings from loading, such as unknown keys.
	Warnings []string `yaml:"-"`
}

// Default returns the configuration used when site.yaml is absent.
func Default() *Config {
	return &Config{
		Title:   "Untitled Site",
		BaseURL: "/",
		Output:  "public",
		Workers: 0, // resolved to GOMAXPROCS at build time
		Scripts: ScriptsConfig{Enabled: true},
		Styles:  StylesConfig{Enabled: true, Minify: true},
		Highlight: HighlightConfig{
			Enabled:     true,
			LineNumbers: false,
			Style:       "github",
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Watch: WatchConfig{
			Debounce: Duration(250 * time.Millisecond),
		},
	}
}

// knownKeys are the recognized top-level site.yaml keys. Anything else is
// reported as a warning so typos like "alias:" do not silently vanish.
var knownKeys = map[string]struct{}{
	"title": {}, "base_url": {}, "aliases": {}, "params": {},
	"output": {}, "workers": {}, "fail_fast": {}, "drafts": {},
	"cache": {}, "scripts": {}, "styles": {}, "highlight": {},
	"verify_links": {}, "log": {}, "watch": {},
}

// Load reads the configuration for the site rooted at siteDir.
//
// A missing site.yaml yields Default(). Environment variables referenced as
// ${VAR} inside the file are expanded before decoding, and TERN_* variables
// override individual fields afterwards.
func Load(siteDir string) (*Config, error) {
	cfg, err := LoadFile(siteDir, filepath.Join(siteDir, FileName))
	if err != nil && errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		cfg.SiteDir = siteDir
		applyEnv(cfg)
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// LoadFile reads an explicit configuration file for the site rooted at
// siteDir, for callers keeping site.yaml outside the site root. Unlike
// Load, a missing file is an error.
func LoadFile(siteDir, path string) (*Config, error) {
	// Pick up a .env next to the site if present. Missing files are fine.
	_ = godotenv.Load(filepath.Join(siteDir, ".env"))

	cfg := Default()
	cfg.SiteDir = siteDir

	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	expanded := os.ExpandEnv(string(data))

	// Lenient pass first so unrecognized keys can be reported.
	var loose map[string]any
	if err := yaml.Unmarshal([]byte(expanded), &loose); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	var unknown []string
	for key := range loose {
		if _, ok := knownKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown key %q in %s", key, name))
	}

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides individual fields from TERN_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TERN_TITLE"); v != "" {
		cfg.Title = v
	}
	if v := os.Getenv("TERN_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("TERN_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("TERN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("TERN_FAIL_FAST"); v != "" {
		cfg.FailFast = isTruthy(v)
	}
	if v := os.Getenv("TERN_DRAFTS"); v != "" {
		cfg.Drafts = isTruthy(v)
	}
	if v := os.Getenv("TERN_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("TERN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TERN_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Validate rejects values that would misbehave deep inside a build.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.Output == "" {
		return fmt.Errorf("output directory must not be empty")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch debounce must not be negative")
	}
	for name := range c.Aliases {
		if strings.ContainsAny(name, "/@ ") {
			return fmt.Errorf("alias name %q must not contain '/', '@' or spaces", name)
		}
	}
	return nil
}

// OutputDir resolves the output directory against the site root.
func (c *Config) OutputDir() string {
	if filepath.IsAbs(c.Output) {
		return c.Output
	}
	return filepath.Join(c.SiteDir, c.Output)
}

// NormalizedBaseURL returns the base URL path with a leading slash and no
// trailing slash (except for the bare root "/").
func (c *Config) NormalizedBaseURL() string {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		return "/"
	}
	// Strip scheme and host if a full URL was given; only the path matters
	// for alias resolution and link checking.
	if i := strings.Index(base, "://"); i >= 0 {
		rest := base[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			base = rest[j:]
		} else {
			base = "/"
		}
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	if len(base) > 1 {
		base = strings.TrimRight(base, "/")
	}
	return base
}

// ResolvedAliases returns the alias table with the implicit root alias ""
// bound to the base URL, so "@/path" links resolve against the site root.
func (c *Config) ResolvedAliases() map[string]string {
	out := make(map[string]string, len(c.Aliases)+1)
	for k, v := range c.Aliases {
		out[k] = v
	}
	out[""] = c.NormalizedBaseURL()
	return out
}

// FP fingerprints the render-affecting configuration. Fields that only steer
// the build machinery (workers, fail_fast, logging) are excluded so changing
// them does not invalidate cached stage outputs.
func (c *Config) FP() uint64 {
	var b strings.Builder
	b.WriteString("title=")
	b.WriteString(c.Title)
	b.WriteString(";base_url=")
	b.WriteString(c.NormalizedBaseURL())
	b.WriteString(";drafts=")
	b.WriteString(strconv.FormatBool(c.Drafts))
	b.WriteString(";highlight=")
	b.WriteString(strconv.FormatBool(c.Highlight.Enabled))
	b.WriteString(",")
	b.WriteString(strconv.FormatBool(c.Highlight.LineNumbers))
	b.WriteString(",")
	b.WriteString(c.Highlight.Style)
	b.WriteString(";styles=")
	b.WriteString(strconv.FormatBool(c.Styles.Enabled))
	b.WriteString(",")
	b.WriteString(strconv.FormatBool(c.Styles.Minify))
	b.WriteString(";scripts=")
	b.WriteString(strconv.FormatBool(c.Scripts.Enabled))

	aliasNames := make([]string, 0, len(c.Aliases))
	for name := range c.Aliases {
		aliasNames = append(aliasNames, name)
	}
	sort.Strings(aliasNames)
	for _, name := range aliasNames {
		b.WriteString(";alias:")
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(c.Aliases[name])
	}

	paramKeys := make([]string, 0, len(c.Params))
	for key := range c.Params {
		paramKeys = append(paramKeys, key)
	}
	sort.Strings(paramKeys)
	for _, key := range paramKeys {
		b.WriteString(";param:")
		b.WriteString(key)
		b.WriteString("=")
		fmt.Fprintf(&b, "%v", c.Params[key])
	}

	return source.FingerprintString(b.String())
}
