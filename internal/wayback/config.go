package wayback

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/sigman78/wayback-rewrite/internal/rewrite"
)

// Config holds all runtime configuration for the rewriter.
type Config struct {
	// Prefix is the replay service URL every rewritten reference starts with.
	Prefix string `yaml:"prefix"`

	DefaultRulesDisabled    bool     `yaml:"defaultRulesDisabled"`
	UnescapeAttributeValues bool     `yaml:"unescapeAttributeValues"`
	CaseSensitiveValues     bool     `yaml:"caseSensitiveValues"`
	Rules                   []string `yaml:"rules"`

	Batch BatchConfig `yaml:"batch"`
}

// BatchConfig configures rewriting a whole downloaded mirror.
type BatchConfig struct {
	Index        string  `yaml:"index"`  // CDX JSON index file
	Input        string  `yaml:"input"`  // mirror directory
	Output       string  `yaml:"output"` // rewritten copy
	Threads      int     `yaml:"threads"`
	PrettyPath   bool    `yaml:"prettyPath"`
	StopOnError  bool    `yaml:"stopOnError"`
	MaxPerSecond float64 `yaml:"maxPerSecond"` // 0 means unlimited
	// DryRun rewrites into memory and writes nothing but the report.
	DryRun bool `yaml:"dryRun"`

	// Storage overrides the output directory when set.
	Storage Storage `yaml:"-"`
	// Progress draws a progress bar on stderr.
	Progress bool `yaml:"-"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Prefix:                  "http://localhost:8080/wayback/",
		UnescapeAttributeValues: true,
		Batch: BatchConfig{
			Threads: 3,
		},
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a rewrite.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Prefix) == "" {
		errs = append(errs, errors.New("prefix must not be empty"))
	}
	if c.Batch.Threads <= 0 {
		errs = append(errs, errors.New("batch.threads must be greater than 0"))
	}
	if c.Batch.MaxPerSecond < 0 {
		errs = append(errs, errors.New("batch.maxPerSecond must not be negative"))
	}
	if _, err := rewrite.ParseRules(c.Rules); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// EngineOptions maps the config onto rewrite engine options.
func (c *Config) EngineOptions(logger *zerolog.Logger) rewrite.Options {
	return rewrite.Options{
		Rules:                c.Rules,
		DefaultRulesDisabled: c.DefaultRulesDisabled,
		DisableUnescape:      !c.UnescapeAttributeValues,
		CaseSensitiveValues:  c.CaseSensitiveValues,
		Logger:               logger,
	}
}

// NewEngine builds a rewrite engine from the config.
func (c *Config) NewEngine(logger *zerolog.Logger) (*rewrite.Engine, error) {
	return rewrite.NewEngine(c.EngineOptions(logger))
}
