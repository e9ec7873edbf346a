// Package config loads retext configuration from TOML.
//
//	[resolver]
//	step_method = "MoveNext"
//	conventions = ["<%s>d__", "<%s>c__", "%sStateMachine", "%sEnumerator"]
//	capabilities = ["step.iterator", "step.async"]
//
//	[rewrite]
//	mode = "auto"
//
//	[discovery]
//	roots = ["Mods"]
//	workers = 4
//	patch_dir = "Patches"
//	extensions = [".xml", ".yaml", ".yml"]
//
//	[log]
//	level = "info"
//	format = "text"
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/pboyd/retext/apis"
	"github.com/pboyd/retext/discovery"
	"github.com/pboyd/retext/internal/logging"
	"github.com/pboyd/retext/resolver"
	"github.com/pboyd/retext/rewrite"
)

// Config is the full configuration.
type Config struct {
	Resolver  Resolver  `toml:"resolver"`
	Rewrite   Rewrite   `toml:"rewrite"`
	Discovery Discovery `toml:"discovery"`
	Log       Log       `toml:"log"`

	// Path is the file the configuration was loaded from (set at load time).
	Path string `toml:"-"`
}

type Resolver struct {
	StepMethod   string   `toml:"step_method"`
	Conventions  []string `toml:"conventions"`
	Capabilities []string `toml:"capabilities"`
}

type Rewrite struct {
	Mode string `toml:"mode"`
}

type Discovery struct {
	Roots      []string `toml:"roots"`
	Workers    int      `toml:"workers"`
	PatchDir   string   `toml:"patch_dir"`
	Extensions []string `toml:"extensions"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	caps := make([]string, len(resolver.DefaultCapabilities))
	for i, c := range resolver.DefaultCapabilities {
		caps[i] = string(c)
	}
	return &Config{
		Resolver: Resolver{
			StepMethod:   resolver.DefaultStepMethod,
			Conventions:  slices.Clone(resolver.DefaultConventions),
			Capabilities: caps,
		},
		Rewrite: Rewrite{Mode: rewrite.ModeAuto.String()},
		Discovery: Discovery{
			PatchDir:   discovery.DefaultPatchDir,
			Extensions: slices.Clone(discovery.DefaultExtensions),
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Option changes a Config.
type Option func(*Config)

// WithWorkers sets the discovery pool size.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Discovery.Workers = n
	}
}

// WithLog sets the log level and format. Empty values keep the current
// setting.
func WithLog(level, format string) Option {
	return func(c *Config) {
		if level != "" {
			c.Log.Level = level
		}
		if format != "" {
			c.Log.Format = format
		}
	}
}

// WithRewriteMode sets the rewrite mode.
func WithRewriteMode(mode string) Option {
	return func(c *Config) {
		c.Rewrite.Mode = mode
	}
}

// WithRoots sets the discovery roots.
func WithRoots(roots ...string) Option {
	return func(c *Config) {
		c.Discovery.Roots = roots
	}
}

// Apply applies opts in order and returns c.
func (c *Config) Apply(opts ...Option) *Config {
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks every value.
func (c *Config) Validate() error {
	var errs []error

	if c.Resolver.StepMethod == "" {
		errs = append(errs, errors.New("resolver.step_method is empty"))
	}
	for _, conv := range c.Resolver.Conventions {
		if strings.Count(conv, "%s") != 1 || strings.Count(conv, "%") != 1 {
			errs = append(errs, fmt.Errorf("resolver.conventions: %q must contain exactly one %%s", conv))
		}
	}
	for _, capability := range c.Resolver.Capabilities {
		if capability == "" {
			errs = append(errs, errors.New("resolver.capabilities: empty capability"))
		}
	}
	if _, err := rewrite.ParseMode(c.Rewrite.Mode); err != nil {
		errs = append(errs, fmt.Errorf("rewrite.mode: %w", err))
	}
	if c.Discovery.Workers < 0 {
		errs = append(errs, fmt.Errorf("discovery.workers: %d is negative", c.Discovery.Workers))
	}
	for _, ext := range c.Discovery.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("discovery.extensions: %q must start with a dot", ext))
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if !logging.ValidFormat(c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Logger builds the configured logger writing to stderr.
func (c *Config) Logger() *slog.Logger {
	return logging.New(c.Log.Level, c.Log.Format, os.Stderr)
}

// ResolverOptions converts the resolver section.
func (c *Config) ResolverOptions(log *slog.Logger) []resolver.Option {
	caps := make([]apis.Capability, len(c.Resolver.Capabilities))
	for i, capability := range c.Resolver.Capabilities {
		caps[i] = apis.Capability(capability)
	}
	return []resolver.Option{
		resolver.WithStepMethod(c.Resolver.StepMethod),
		resolver.WithConventions(c.Resolver.Conventions...),
		resolver.WithCapabilities(caps...),
		resolver.WithLogger(log),
	}
}

// RewriteOptions converts the rewrite section. The mode has been checked
// by Validate; an invalid one falls back to auto.
func (c *Config) RewriteOptions(log *slog.Logger) []rewrite.Option {
	mode, _ := rewrite.ParseMode(c.Rewrite.Mode)
	return []rewrite.Option{
		rewrite.WithMode(mode),
		rewrite.WithLogger(log),
	}
}

// DiscoveryOptions converts the discovery section.
func (c *Config) DiscoveryOptions(log *slog.Logger) discovery.Options {
	return discovery.Options{
		Workers:    c.Discovery.Workers,
		PatchDir:   c.Discovery.PatchDir,
		Extensions: slices.Clone(c.Discovery.Extensions),
		Logger:     log,
	}
}
